package social

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-storefront-auth"
)

const callbackURL = "https://shop.example.com/account/externallogincallback"

type fakeProvider struct {
	identity  *Identity
	redeemErr error
	authorize AuthorizeRequest
	grant     Grant
}

func (p *fakeProvider) Name() string        { return "google" }
func (p *fakeProvider) DisplayName() string { return "Google" }

func (p *fakeProvider) AuthorizeURL(req AuthorizeRequest) string {
	p.authorize = req
	return "https://idp.example.com/auth?" + url.Values{"state": {req.State}}.Encode()
}

func (p *fakeProvider) Redeem(_ context.Context, grant Grant) (*Token, error) {
	p.grant = grant
	if p.redeemErr != nil {
		return nil, p.redeemErr
	}
	return &Token{AccessToken: "access", Nonce: grant.Nonce}, nil
}

func (p *fakeProvider) Identity(context.Context, *Token) (*Identity, error) {
	return p.identity, nil
}

func newAuthenticator(t *testing.T, p Provider) *Authenticator {
	t.Helper()
	sealer, err := NewAEADSealer("secret", time.Minute)
	require.NoError(t, err)
	return NewAuthenticator(sealer, WithProvider(p))
}

func challenge(t *testing.T, a *Authenticator) string {
	t.Helper()
	location, err := a.Challenge(context.Background(), "Google", callbackURL, "/account/orders")
	require.NoError(t, err)

	parsed, err := url.Parse(location)
	require.NoError(t, err)
	return parsed.Query().Get("state")
}

func TestAuthenticatorRoundTrip(t *testing.T) {
	p := &fakeProvider{identity: &Identity{
		Subject:       "1234",
		Email:         "ada@example.com",
		EmailVerified: true,
		Name:          "Ada Lovelace",
		GivenName:     "Ada",
		FamilyName:    "Lovelace",
	}}
	a := newAuthenticator(t, p)
	a.Prompt = "select_account"
	assert.Equal(t, []string{"google"}, a.Providers())

	state := challenge(t, a)
	assert.Equal(t, callbackURL, p.authorize.RedirectURI)
	assert.Equal(t, "select_account", p.authorize.Prompt)
	assert.NotEmpty(t, p.authorize.Nonce)

	info, returnURL, err := a.Complete(context.Background(), "auth-code", state)
	require.NoError(t, err)
	assert.Equal(t, "/account/orders", returnURL)

	assert.Equal(t, "auth-code", p.grant.Code)
	assert.Equal(t, callbackURL, p.grant.RedirectURI)
	assert.Equal(t, p.authorize.Nonce, p.grant.Nonce)
	assert.Equal(t, s256(p.grant.CodeVerifier), p.authorize.CodeChallenge)

	assert.Equal(t, "google", info.Provider)
	assert.Equal(t, "1234", info.ProviderKey)
	assert.Equal(t, "Google", info.DisplayName)
	assert.Equal(t, "ada@example.com", info.FindClaim(auth.ClaimEmail))
	assert.Equal(t, "Ada", info.FindClaim(auth.ClaimGivenName))
	assert.Equal(t, "Lovelace", info.FindClaim(auth.ClaimFamilyName))
	assert.Empty(t, info.FindClaim(auth.ClaimNickname))
}

func TestAuthenticatorUnverifiedEmail(t *testing.T) {
	p := &fakeProvider{identity: &Identity{Subject: "1234", Email: "ada@example.com"}}
	a := newAuthenticator(t, p)

	info, _, err := a.Complete(context.Background(), "code", challenge(t, a))
	require.NoError(t, err)
	assert.Empty(t, info.Claims)

	a.TrustUnverifiedEmail = true
	info, _, err = a.Complete(context.Background(), "code", challenge(t, a))
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", info.FindClaim(auth.ClaimEmail))
}

func TestAuthenticatorFailures(t *testing.T) {
	p := &fakeProvider{redeemErr: errors.New("bad code")}
	a := newAuthenticator(t, p)

	_, err := a.Challenge(context.Background(), "github", callbackURL, "/")
	assert.ErrorIs(t, err, ErrUnknownProvider)

	state := challenge(t, a)

	_, returnURL, err := a.Complete(context.Background(), "", state)
	assert.ErrorIs(t, err, ErrDeclined)
	assert.Equal(t, "/account/orders", returnURL)

	_, _, err = a.Complete(context.Background(), "code", state)
	assert.ErrorIs(t, err, ErrRedeem)

	_, _, err = a.Complete(context.Background(), "code", "forged")
	assert.ErrorIs(t, err, ErrInvalidState)

	p.redeemErr = nil
	p.identity = &Identity{}
	_, _, err = a.Complete(context.Background(), "code", state)
	assert.ErrorIs(t, err, ErrIdentity)
}
