package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	// ErrTokenExpired is returned for session tokens past their expiry
	ErrTokenExpired = errors.New("session token expired")
	// ErrTokenMalformed covers bad signatures, issuers and audiences
	ErrTokenMalformed = errors.New("session token malformed")
)

// TokenService signs and validates the HS256 session cookie value
type TokenService struct {
	key      []byte
	issuer   string
	audience jwt.ClaimStrings
	logger   Logger
	now      func() time.Time
}

func NewTokenService(signingKey []byte, issuer string, audience []string, logger Logger) *TokenService {
	if logger == nil {
		logger = defLogger{}
	}
	return &TokenService{
		key:      signingKey,
		issuer:   issuer,
		audience: audience,
		logger:   logger,
		now:      time.Now,
	}
}

// Generate issues a session token for user valid for ttl
func (ts *TokenService) Generate(user *User, ttl time.Duration, persistent bool) (string, error) {
	claims := newSessionClaims(user, ts.issuer, ts.audience, ts.now(), ttl, persistent)
	claims.ID = uuid.NewString()
	return ts.SignClaims(claims)
}

// SignClaims signs already built claims
func (ts *TokenService) SignClaims(claims *SessionClaims) (string, error) {
	if claims == nil {
		return "", errors.New("session token: nil claims")
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(ts.key)
	if err != nil {
		return "", fmt.Errorf("session token: sign: %w", err)
	}
	return raw, nil
}

func (ts *TokenService) parserOptions() []jwt.ParserOption {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(ts.now),
	}
	if ts.issuer != "" {
		opts = append(opts, jwt.WithIssuer(ts.issuer))
	}
	if len(ts.audience) > 0 {
		opts = append(opts, jwt.WithAudience(ts.audience...))
	}
	return opts
}

// Validate verifies tokenString and returns its claims
func (ts *TokenService) Validate(tokenString string) (*SessionClaims, error) {
	claims := &SessionClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return ts.key, nil
	}, ts.parserOptions()...)

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		ts.logger.Debug("session token rejected: %v", err)
		return nil, fmt.Errorf("%w: %v", ErrTokenMalformed, err)
	case !token.Valid:
		return nil, ErrUnableToDecodeSession
	}
	return claims, nil
}
