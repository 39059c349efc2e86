package social

import (
	"context"
	"strings"
	"time"

	auth "github.com/goliatone/go-storefront-auth"
)

// Provider speaks the authorization code grant with one identity
// provider. Redirect URIs are passed per call since each store has its
// own callback URL.
type Provider interface {
	Name() string
	DisplayName() string
	AuthorizeURL(req AuthorizeRequest) string
	Redeem(ctx context.Context, grant Grant) (*Token, error)
	Identity(ctx context.Context, token *Token) (*Identity, error)
}

// AuthorizeRequest is the front channel leg of a login
type AuthorizeRequest struct {
	State         string
	RedirectURI   string
	CodeChallenge string
	Nonce         string
	Prompt        string
}

// Grant is the back channel leg
type Grant struct {
	Code         string
	RedirectURI  string
	CodeVerifier string
	Nonce        string
}

// Token is a redeemed grant. Nonce is carried over from the grant so an
// id_token can be matched against the request that started the login.
type Token struct {
	AccessToken string
	IDToken     string
	Scopes      []string
	Expiry      time.Time
	Nonce       string
}

// Identity is the subject a provider vouches for
type Identity struct {
	Subject       string
	Email         string
	EmailVerified bool
	GivenName     string
	FamilyName    string
	Name          string
	Nickname      string
}

// Claims lists the non empty attributes as login claims. Unverified
// emails are left out unless trustEmail is set.
func (id *Identity) Claims(trustEmail bool) []auth.Claim {
	var claims []auth.Claim
	add := func(claimType, value string) {
		if value = strings.TrimSpace(value); value != "" {
			claims = append(claims, auth.Claim{Type: claimType, Value: value})
		}
	}

	if id.EmailVerified || trustEmail {
		add(auth.ClaimEmail, id.Email)
	}
	add(auth.ClaimGivenName, id.GivenName)
	add(auth.ClaimFamilyName, id.FamilyName)
	add(auth.ClaimName, id.Name)
	add(auth.ClaimNickname, id.Nickname)
	return claims
}
