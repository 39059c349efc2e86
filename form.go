package auth

import (
	"sort"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
)

// FormErrorCode is the UI stable error vocabulary
type FormErrorCode string

const (
	FormErrUnknown                         FormErrorCode = "unknown-error"
	FormErrConcurrencyFailure              FormErrorCode = "concurrency-failure"
	FormErrPasswordMismatch                FormErrorCode = "password-mismatch"
	FormErrInvalidToken                    FormErrorCode = "invalid-token"
	FormErrLoginAlreadyAssociated          FormErrorCode = "login-already-associated"
	FormErrInvalidUserName                 FormErrorCode = "invalid-user-name"
	FormErrInvalidEmail                    FormErrorCode = "invalid-email"
	FormErrDuplicateUserName               FormErrorCode = "duplicate-user-name"
	FormErrDuplicateEmail                  FormErrorCode = "duplicate-email"
	FormErrUserAlreadyHasPassword          FormErrorCode = "user-already-has-password"
	FormErrPasswordTooShort                FormErrorCode = "password-too-short"
	FormErrPasswordRequiresNonAlphanumeric FormErrorCode = "password-requires-non-alphanumeric"
	FormErrPasswordRequiresDigit           FormErrorCode = "password-requires-digit"
	FormErrPasswordRequiresLower           FormErrorCode = "password-requires-lower"
	FormErrPasswordRequiresUpper           FormErrorCode = "password-requires-upper"
	FormErrValidation                      FormErrorCode = "validation-error"
	FormErrInvalidURL                      FormErrorCode = "invalid-url"
	FormErrUserNotFound                    FormErrorCode = "user-not-found"
	FormErrInvitationAlreadyUsed           FormErrorCode = "invitation-already-used"
	FormErrOperationFailed                 FormErrorCode = "operation-failed"
	FormErrGatewayFailure                  FormErrorCode = "gateway-failure"
	FormErrLoginFailed                     FormErrorCode = "login-failed"
	FormErrUserRejected                    FormErrorCode = "user-login-rejected"
	FormErrUserCannotLoginInStore          FormErrorCode = "user-cannot-login-in-store"
	FormErrUserSuspended                   FormErrorCode = "user-is-suspended"
	FormErrPasswordsDoNotMatch             FormErrorCode = "passwords-do-not-match"
	FormErrExternalLoginFailed             FormErrorCode = "external-login-failed"
	FormErrImpersonationDenied             FormErrorCode = "impersonation-denied"
)

// storeErrorCodes maps every StoreErrorCode to its form code.
var storeErrorCodes = map[StoreErrorCode]FormErrorCode{
	StoreErrDefault:                         FormErrUnknown,
	StoreErrConcurrencyFailure:              FormErrConcurrencyFailure,
	StoreErrPasswordMismatch:                FormErrPasswordMismatch,
	StoreErrInvalidToken:                    FormErrInvalidToken,
	StoreErrLoginAlreadyAssociated:          FormErrLoginAlreadyAssociated,
	StoreErrInvalidUserName:                 FormErrInvalidUserName,
	StoreErrInvalidEmail:                    FormErrInvalidEmail,
	StoreErrDuplicateUserName:               FormErrDuplicateUserName,
	StoreErrDuplicateEmail:                  FormErrDuplicateEmail,
	StoreErrUserAlreadyHasPassword:          FormErrUserAlreadyHasPassword,
	StoreErrPasswordTooShort:                FormErrPasswordTooShort,
	StoreErrPasswordRequiresNonAlphanumeric: FormErrPasswordRequiresNonAlphanumeric,
	StoreErrPasswordRequiresDigit:           FormErrPasswordRequiresDigit,
	StoreErrPasswordRequiresLower:           FormErrPasswordRequiresLower,
	StoreErrPasswordRequiresUpper:           FormErrPasswordRequiresUpper,
}

// TranslateStoreCode maps a store native code, unknown codes become unknown-error
func TranslateStoreCode(code StoreErrorCode) FormErrorCode {
	if fc, ok := storeErrorCodes[code]; ok {
		return fc
	}
	return FormErrUnknown
}

// FormError is one user facing error entry
type FormError struct {
	Code        FormErrorCode `json:"code"`
	Description string        `json:"description"`
	Field       string        `json:"field,omitempty"`
}

// Form round trips the submitted model and the ordered errors
type Form struct {
	Model  any         `json:"model,omitempty"`
	Errors []FormError `json:"errors,omitempty"`
}

// NewForm snapshots model before any validation runs
func NewForm(model any) *Form {
	return &Form{Model: model}
}

// AddError appends a flow error
func (f *Form) AddError(code FormErrorCode, description string) *Form {
	f.Errors = append(f.Errors, FormError{Code: code, Description: description})
	return f
}

// AddStoreErrors translates err into form errors. Errors that do not
// carry store codes become a single unknown-error entry.
func (f *Form) AddStoreErrors(err error) *Form {
	if err == nil {
		return f
	}

	list, ok := AsStoreErrors(err)
	if !ok {
		return f.AddError(FormErrUnknown, "an unexpected error occurred")
	}

	for _, se := range list {
		f.Errors = append(f.Errors, FormError{
			Code:        TranslateStoreCode(se.Code),
			Description: se.Description,
		})
	}
	return f
}

// AddValidationErrors flattens ozzo validation errors sorted by field
func (f *Form) AddValidationErrors(err error) *Form {
	if err == nil {
		return f
	}

	verrs, ok := err.(validation.Errors)
	if !ok {
		return f.AddError(FormErrValidation, err.Error())
	}

	fields := make([]string, 0, len(verrs))
	for field := range verrs {
		fields = append(fields, field)
	}
	sort.Strings(fields)

	for _, field := range fields {
		f.Errors = append(f.Errors, FormError{
			Code:        FormErrValidation,
			Field:       field,
			Description: field + ": " + verrs[field].Error(),
		})
	}
	return f
}

// HasErrors is true once any error was recorded
func (f *Form) HasErrors() bool {
	return f != nil && len(f.Errors) > 0
}

// HasCode checks for a specific error code
func (f *Form) HasCode(code FormErrorCode) bool {
	if f == nil {
		return false
	}
	for _, e := range f.Errors {
		if e.Code == code {
			return true
		}
	}
	return false
}

// Codes lists error codes in order
func (f *Form) Codes() []string {
	if f == nil {
		return nil
	}
	out := make([]string, 0, len(f.Errors))
	for _, e := range f.Errors {
		out = append(out, string(e.Code))
	}
	return out
}

// CodeString joins codes, handy for logs
func (f *Form) CodeString() string {
	return strings.Join(f.Codes(), ",")
}
