package social

import (
	"errors"
	"fmt"
)

var (
	ErrUnknownProvider = errors.New("social: unknown provider")
	ErrInvalidState    = errors.New("social: invalid state")
	ErrStateExpired    = errors.New("social: state expired")
	ErrDeclined        = errors.New("social: authorization declined")
	ErrRedeem          = errors.New("social: code redemption failed")
	ErrIdentity        = errors.New("social: identity lookup failed")
)

// APIError is a non success answer from a provider endpoint
type APIError struct {
	Provider string
	Op       string
	Status   int
	Code     string
	Message  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = e.Code
	}
	if msg == "" {
		msg = "request failed"
	}
	if e.Status > 0 {
		return fmt.Sprintf("%s %s: %d %s", e.Provider, e.Op, e.Status, msg)
	}
	return fmt.Sprintf("%s %s: %s", e.Provider, e.Op, msg)
}
