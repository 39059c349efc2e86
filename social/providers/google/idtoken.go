package google

import (
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/MicahParks/keyfunc/v2"
	"github.com/golang-jwt/jwt/v5"
)

// JWKSURL publishes the Google signing keys
const JWKSURL = "https://www.googleapis.com/oauth2/v3/certs"

var issuers = []string{"accounts.google.com", "https://accounts.google.com"}

var (
	ErrIssuer = errors.New("google: id_token issuer mismatch")
	ErrNonce  = errors.New("google: id_token nonce mismatch")
)

type idClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Nonce         string `json:"nonce"`
}

func (c *idClaims) userInfo() userInfo {
	return userInfo{
		Subject:       c.Subject,
		Email:         c.Email,
		EmailVerified: c.EmailVerified,
		Name:          c.Name,
		GivenName:     c.GivenName,
		FamilyName:    c.FamilyName,
	}
}

// IDTokenVerifier checks id_tokens offline against the published keys
type IDTokenVerifier struct {
	keys     jwt.Keyfunc
	clientID string
	now      func() time.Time
}

// NewIDTokenVerifier loads the key set at jwksURL and refreshes it in the
// background, unknown key ids trigger a rate limited refresh.
func NewIDTokenVerifier(jwksURL, clientID string) (*IDTokenVerifier, error) {
	if jwksURL == "" {
		jwksURL = JWKSURL
	}
	jwks, err := keyfunc.Get(jwksURL, keyfunc.Options{
		RefreshInterval:   time.Hour,
		RefreshRateLimit:  5 * time.Minute,
		RefreshTimeout:    10 * time.Second,
		RefreshUnknownKID: true,
	})
	if err != nil {
		return nil, fmt.Errorf("google: jwks: %w", err)
	}
	return NewIDTokenVerifierWithKeyfunc(jwks.Keyfunc, clientID), nil
}

func NewIDTokenVerifierWithKeyfunc(keys jwt.Keyfunc, clientID string) *IDTokenVerifier {
	return &IDTokenVerifier{keys: keys, clientID: clientID, now: time.Now}
}

// Verify validates signature, audience, issuer and expiry. A non empty
// nonce must match the token nonce.
func (v *IDTokenVerifier) Verify(raw, nonce string) (*idClaims, error) {
	claims := &idClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, v.keys,
		jwt.WithValidMethods([]string{"RS256"}),
		jwt.WithAudience(v.clientID),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(issuers, claims.Issuer) {
		return nil, ErrIssuer
	}
	if nonce != "" && claims.Nonce != nonce {
		return nil, ErrNonce
	}
	return claims, nil
}
