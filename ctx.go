package auth

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

// fiber locals set by the session middleware
const (
	sessionUserKey   = "auth.user"
	sessionClaimsKey = "auth.claims"
)

type principalKey struct{}

// WithContext returns a copy of ctx carrying user as the session principal
func WithContext(ctx context.Context, user *User) context.Context {
	return context.WithValue(ctx, principalKey{}, user)
}

// FromContext returns the principal stored by WithContext
func FromContext(ctx context.Context) (*User, bool) {
	u, ok := ctx.Value(principalKey{}).(*User)
	return u, ok && u != nil
}

// CurrentUser returns the session principal of the request, if any
func CurrentUser(c *fiber.Ctx) (*User, bool) {
	u, ok := c.Locals(sessionUserKey).(*User)
	return u, ok && u != nil
}

// CurrentClaims returns the session claims of the request, if any
func CurrentClaims(c *fiber.Ctx) (*SessionClaims, bool) {
	claims, ok := c.Locals(sessionClaimsKey).(*SessionClaims)
	return claims, ok && claims != nil
}
