package auth

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/goliatone/go-storefront-auth/storefront"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Config holds session options
type Config interface {
	GetSigningKey() string
	GetContextKey() string
	GetTokenExpiration() int
	GetExtendedTokenDuration() int
	GetIssuer() string
	GetAudience() []string
	GetRejectedRouteKey() string
	GetCookieSecure() bool
}

// CredentialStore is the system of record for identities, password
// verification, lockout and token issuance.
type CredentialStore interface {
	CreateUser(ctx context.Context, user *User, password string) (*User, error)
	UpdateUser(ctx context.Context, user *User) error

	FindByName(ctx context.Context, username string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	FindByID(ctx context.Context, id string) (*User, error)
	FindByLogin(ctx context.Context, provider, providerKey string) (*User, error)

	PasswordSignIn(ctx context.Context, username, password string, lockoutOnFailure bool) (LoginOutcome, error)
	ExternalLoginSignIn(ctx context.Context, provider, providerKey string, bypassTwoFactor bool) (LoginOutcome, error)
	AddExternalLogin(ctx context.Context, user *User, info ExternalLoginInfo) error

	GenerateToken(ctx context.Context, user *User, purpose TokenPurpose) (string, error)
	VerifyToken(ctx context.Context, user *User, purpose TokenPurpose, token string) (bool, error)

	ResetPassword(ctx context.Context, user *User, token, newPassword string) error
	ChangePassword(ctx context.Context, user *User, oldPassword, newPassword string) error
	ConfirmEmail(ctx context.Context, user *User, token string) error
}

// ExternalAccountCreator is implemented by stores able to create an
// account together with its first external login atomically. Without it
// provisioning falls back to CreateUser then AddExternalLogin.
type ExternalAccountCreator interface {
	CreateUserWithLogin(ctx context.Context, user *User, info ExternalLoginInfo) (*User, error)
}

// SessionWriter establishes or terminates the caller's session.
type SessionWriter interface {
	SignIn(ctx context.Context, user *User, persistent bool) error
	SignOut(ctx context.Context) error
}

// ExternalAuthenticator runs the provider side of an external login.
type ExternalAuthenticator interface {
	Challenge(ctx context.Context, provider, callbackURL, returnURL string) (string, error)
	Complete(ctx context.Context, code, state string) (*ExternalLoginInfo, string, error)
}

// ImpersonationAuthorizer decides if operator may act as target.
type ImpersonationAuthorizer interface {
	CanImpersonate(ctx context.Context, operator, target *User) (bool, error)
}

// FlowRecorder observes terminal flow outcomes
type FlowRecorder interface {
	RecordFlow(flow, outcome string)
}

// RequestContext is the explicit per request state handed to every flow.
type RequestContext struct {
	Store    storefront.Store
	Language string
	// BaseURL is scheme and host of the current request, used when
	// the store does not declare its own host.
	BaseURL string
	// User is the authenticated principal, nil for anonymous callers.
	User *User
	// Persistent is true when the current session was issued with
	// remember me.
	Persistent bool
	Session    SessionWriter
}

// IsAuthenticated reports if the caller carries a registered user
func (rc RequestContext) IsAuthenticated() bool {
	return rc.User != nil
}

type noopFlowRecorder struct{}

func (noopFlowRecorder) RecordFlow(string, string) {}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	slog.Error("AUTH " + fmt.Sprintf(format, args...))
}

func (d defLogger) Warn(format string, args ...any) {
	slog.Warn("AUTH " + fmt.Sprintf(format, args...))
}

func (d defLogger) Info(format string, args ...any) {
	slog.Info("AUTH " + fmt.Sprintf(format, args...))
}

func (d defLogger) Debug(format string, args ...any) {
	slog.Debug("AUTH " + fmt.Sprintf(format, args...))
}
