package store

import (
	"errors"
	"fmt"
	"unicode"

	"golang.org/x/crypto/bcrypt"

	auth "github.com/goliatone/go-storefront-auth"
)

// DefaultHashCost is the bcrypt cost for production hashes
const DefaultHashCost = 12

// PasswordOptions is the password policy enforced on create and reset
type PasswordOptions struct {
	RequiredLength         int  `yaml:"required_length"`
	RequireDigit           bool `yaml:"require_digit"`
	RequireLowercase       bool `yaml:"require_lowercase"`
	RequireUppercase       bool `yaml:"require_uppercase"`
	RequireNonAlphanumeric bool `yaml:"require_non_alphanumeric"`
}

// DefaultPasswordOptions requires eight characters from every class
func DefaultPasswordOptions() PasswordOptions {
	return PasswordOptions{
		RequiredLength:         8,
		RequireDigit:           true,
		RequireLowercase:       true,
		RequireUppercase:       true,
		RequireNonAlphanumeric: true,
	}
}

// Check returns every policy rule password violates
func (p PasswordOptions) Check(password string) auth.StoreErrors {
	var errs auth.StoreErrors

	if len([]rune(password)) < p.RequiredLength {
		errs = append(errs, auth.StoreError{
			Code:        auth.StoreErrPasswordTooShort,
			Description: fmt.Sprintf("passwords must be at least %d characters", p.RequiredLength),
		})
	}

	var digit, lower, upper, other bool
	for _, r := range password {
		switch {
		case unicode.IsDigit(r):
			digit = true
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case !unicode.IsLetter(r):
			other = true
		}
	}

	if p.RequireNonAlphanumeric && !other {
		errs = append(errs, auth.StoreError{Code: auth.StoreErrPasswordRequiresNonAlphanumeric, Description: "passwords must have at least one non alphanumeric character"})
	}
	if p.RequireDigit && !digit {
		errs = append(errs, auth.StoreError{Code: auth.StoreErrPasswordRequiresDigit, Description: "passwords must have at least one digit"})
	}
	if p.RequireLowercase && !lower {
		errs = append(errs, auth.StoreError{Code: auth.StoreErrPasswordRequiresLower, Description: "passwords must have at least one lowercase letter"})
	}
	if p.RequireUppercase && !upper {
		errs = append(errs, auth.StoreError{Code: auth.StoreErrPasswordRequiresUpper, Description: "passwords must have at least one uppercase letter"})
	}

	return errs
}

// HashPassword will generate a password hash
func HashPassword(password string, cost int) (string, error) {
	if password == "" {
		return "", auth.ErrNoEmptyString
	}
	if cost == 0 {
		cost = DefaultHashCost
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	return string(h), err
}

// ComparePasswordAndHash will validate the given cleartext
// password matches the hashed password
func ComparePasswordAndHash(password, hash string) error {
	if hash == "" {
		return auth.ErrMismatchedHashAndPassword
	}
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return auth.ErrMismatchedHashAndPassword
		}
		return err
	}
	return nil
}
