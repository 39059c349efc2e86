package auth

import (
	"errors"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
)

// RegisterPayload is the registration form
type RegisterPayload struct {
	Username  string `form:"username" json:"username"`
	Email     string `form:"email" json:"email"`
	Password  string `form:"password" json:"password"`
	FirstName string `form:"first_name" json:"first_name"`
	LastName  string `form:"last_name" json:"last_name"`
}

// Validate will run validation rules
func (r RegisterPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 256)),
		validation.Field(&r.Email, validation.Length(3, 256), is.Email),
		validation.Field(&r.Password, validation.Required, validation.Length(1, 128)),
		validation.Field(&r.FirstName, validation.Length(0, 128)),
		validation.Field(&r.LastName, validation.Length(0, 128)),
	)
}

// InvitationQuery is read from the invitation link
type InvitationQuery struct {
	Email          string `query:"email" form:"email" json:"email"`
	Token          string `query:"token" form:"token" json:"token"`
	OrganizationID string `query:"organizationId" form:"organization_id" json:"organization_id,omitempty"`
}

// InvitationPayload accepts an invitation
type InvitationPayload struct {
	Email          string `form:"email" json:"email"`
	Token          string `form:"token" json:"token"`
	OrganizationID string `form:"organization_id" json:"organization_id,omitempty"`
	Username       string `form:"username" json:"username"`
	Password       string `form:"password" json:"password"`
	FirstName      string `form:"first_name" json:"first_name"`
	LastName       string `form:"last_name" json:"last_name"`
}

// Validate will run validation rules
func (r InvitationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Username, validation.Required, validation.Length(3, 256)),
		validation.Field(&r.Password, validation.Required),
	)
}

// LoginPayload is the local login form
type LoginPayload struct {
	Username   string `form:"username" json:"username"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
	ReturnURL  string `form:"return_url" json:"return_url,omitempty"`
}

// Normalize trims the identifier
func (r *LoginPayload) Normalize() {
	r.Username = strings.TrimSpace(r.Username)
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required),
		validation.Field(&r.Password, validation.Required),
	)
}

// ForgotPasswordPayload carries an email or a username
type ForgotPasswordPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(1, 256)),
	)
}

// ForgotPasswordCodePayload is the SMS code entry
type ForgotPasswordCodePayload struct {
	UserID string `form:"user_id" json:"user_id"`
	Code   string `form:"code" json:"code"`
}

// Validate will run validation rules
func (r ForgotPasswordCodePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.UserID, validation.Required, is.UUID),
		validation.Field(&r.Code, validation.Required, validation.Length(6, 6), is.Digit),
	)
}

// ResetPasswordPayload is the final password entry
type ResetPasswordPayload struct {
	Token           string `form:"token" query:"token" json:"token"`
	Email           string `form:"email" query:"email" json:"email"`
	Username        string `form:"username" query:"username" json:"username"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will run validation rules
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

// ChangePasswordPayload is the in session password change
type ChangePasswordPayload struct {
	OldPassword     string `form:"old_password" json:"old_password"`
	NewPassword     string `form:"new_password" json:"new_password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

// Validate will run validation rules
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.OldPassword, validation.Required),
		validation.Field(&r.NewPassword, validation.Required),
		validation.Field(
			&r.ConfirmPassword,
			validation.Required,
			validation.By(ValidateStringEquals(r.NewPassword)),
		),
	)
}

// ForgotUsernamePayload requests a username reminder
type ForgotUsernamePayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will run validation rules
func (r ForgotUsernamePayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

// ConfirmEmailQuery is read from the confirmation link
type ConfirmEmailQuery struct {
	UserID string `query:"userId" json:"user_id"`
	Code   string `query:"code" json:"code"`
}

// ValidateStringEquals will check that both values match
func ValidateStringEquals(str string) validation.RuleFunc {
	return func(value any) error {
		s, _ := value.(string)
		if s != str {
			return errors.New("values must match")
		}
		return nil
	}
}
