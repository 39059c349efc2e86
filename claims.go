package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// SessionClaims is the payload of the session cookie
type SessionClaims struct {
	jwt.RegisteredClaims
	UID           string `json:"uid,omitempty"`
	Username      string `json:"usr,omitempty"`
	StoreID       string `json:"sid,omitempty"`
	SecurityStamp string `json:"sst,omitempty"`
	Persistent    bool   `json:"per,omitempty"`
	OperatorID    string `json:"oid,omitempty"`
	OperatorName  string `json:"onm,omitempty"`
}

// UserID returns the user ID
func (c *SessionClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject
}

// IsImpersonated is true for sessions opened on behalf of a user
func (c *SessionClaims) IsImpersonated() bool {
	return c.OperatorID != ""
}

// Expires returns the expiration time
func (c *SessionClaims) Expires() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

func newSessionClaims(user *User, issuer string, audience []string, now time.Time, ttl time.Duration, persistent bool) *SessionClaims {
	return &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   user.ID.String(),
			Audience:  audience,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		UID:           user.ID.String(),
		Username:      user.Username,
		StoreID:       user.StoreID,
		SecurityStamp: user.SecurityStamp,
		Persistent:    persistent,
		OperatorID:    user.OperatorID,
		OperatorName:  user.OperatorName,
	}
}
