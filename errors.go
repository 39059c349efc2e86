package auth

import (
	"errors"
	"strings"
)

// ErrUserNotFound is returned by the credential store lookups
var ErrUserNotFound = errors.New("user not found")

// ErrUnableToFindSession is the error when our request has no cookie
var ErrUnableToFindSession = errors.New("unable to find session")

// ErrUnableToDecodeSession unable to decode JWT from session cookie
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrNoEmptyString is returned when hashing an empty password
var ErrNoEmptyString = errors.New("password can't be an empty string")

// ErrMismatchedHashAndPassword is returned for wrong passwords
var ErrMismatchedHashAndPassword = errors.New("incorrect password")

// ErrProviderNotConfigured is returned when no external authenticator is set
var ErrProviderNotConfigured = errors.New("external login provider not configured")

// IsNotFound reports lookups that found nothing
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound)
}

// StoreErrorCode is the credential store native error vocabulary
type StoreErrorCode string

const (
	StoreErrDefault                         StoreErrorCode = "DefaultError"
	StoreErrConcurrencyFailure              StoreErrorCode = "ConcurrencyFailure"
	StoreErrPasswordMismatch                StoreErrorCode = "PasswordMismatch"
	StoreErrInvalidToken                    StoreErrorCode = "InvalidToken"
	StoreErrLoginAlreadyAssociated          StoreErrorCode = "LoginAlreadyAssociated"
	StoreErrInvalidUserName                 StoreErrorCode = "InvalidUserName"
	StoreErrInvalidEmail                    StoreErrorCode = "InvalidEmail"
	StoreErrDuplicateUserName               StoreErrorCode = "DuplicateUserName"
	StoreErrDuplicateEmail                  StoreErrorCode = "DuplicateEmail"
	StoreErrUserAlreadyHasPassword          StoreErrorCode = "UserAlreadyHasPassword"
	StoreErrPasswordTooShort                StoreErrorCode = "PasswordTooShort"
	StoreErrPasswordRequiresNonAlphanumeric StoreErrorCode = "PasswordRequiresNonAlphanumeric"
	StoreErrPasswordRequiresDigit           StoreErrorCode = "PasswordRequiresDigit"
	StoreErrPasswordRequiresLower           StoreErrorCode = "PasswordRequiresLower"
	StoreErrPasswordRequiresUpper           StoreErrorCode = "PasswordRequiresUpper"
)

// StoreError is a single structured rejection from the credential store
type StoreError struct {
	Code        StoreErrorCode
	Description string
}

func (e StoreError) Error() string {
	if e.Description == "" {
		return string(e.Code)
	}
	return string(e.Code) + ": " + e.Description
}

// StoreErrors is the ordered list of rejections for one operation
type StoreErrors []StoreError

func (e StoreErrors) Error() string {
	parts := make([]string, 0, len(e))
	for _, se := range e {
		parts = append(parts, se.Error())
	}
	return "credential store: " + strings.Join(parts, "; ")
}

// NewStoreError builds a single entry StoreErrors
func NewStoreError(code StoreErrorCode, description string) StoreErrors {
	return StoreErrors{{Code: code, Description: description}}
}

// AsStoreErrors unwraps structured store rejections from err
func AsStoreErrors(err error) (StoreErrors, bool) {
	if err == nil {
		return nil, false
	}

	var list StoreErrors
	if errors.As(err, &list) {
		return list, true
	}

	var single StoreError
	if errors.As(err, &single) {
		return StoreErrors{single}, true
	}

	return nil, false
}
