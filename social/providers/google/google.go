// Package google signs customers in with their Google account. Identities
// come from the verified id_token when a verifier is configured and from
// the userinfo endpoint otherwise.
package google

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/goliatone/go-storefront-auth/social"
)

const (
	AuthorizeURL = "https://accounts.google.com/o/oauth2/v2/auth"
	TokenURL     = "https://oauth2.googleapis.com/token"
	UserInfoURL  = "https://openidconnect.googleapis.com/v1/userinfo"
)

type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthorizeURL string
	TokenURL     string
	UserInfoURL  string
	HTTPClient   *http.Client
	Verifier     *IDTokenVerifier
}

type Provider struct {
	client      *social.Client
	userInfoURL string
	verifier    *IDTokenVerifier
}

var _ social.Provider = (*Provider)(nil)

func New(cfg Config) *Provider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"openid", "email", "profile"}
	}
	return &Provider{
		client: &social.Client{
			Provider:     "google",
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			Scopes:       scopes,
			AuthorizeURL: or(cfg.AuthorizeURL, AuthorizeURL),
			TokenURL:     or(cfg.TokenURL, TokenURL),
			HTTP:         cfg.HTTPClient,
		},
		userInfoURL: or(cfg.UserInfoURL, UserInfoURL),
		verifier:    cfg.Verifier,
	}
}

func (p *Provider) Name() string        { return "google" }
func (p *Provider) DisplayName() string { return "Google" }

func (p *Provider) AuthorizeURL(req social.AuthorizeRequest) string {
	extra := url.Values{"response_type": {"code"}}
	if req.Nonce != "" {
		extra.Set("nonce", req.Nonce)
	}
	return p.client.AuthorizationURL(req, extra)
}

func (p *Provider) Redeem(ctx context.Context, grant social.Grant) (*social.Token, error) {
	return p.client.Redeem(ctx, grant, url.Values{"grant_type": {"authorization_code"}})
}

// userInfo is shared by the userinfo reply and the id_token claims
type userInfo struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
}

func (u userInfo) identity() *social.Identity {
	return &social.Identity{
		Subject:       u.Subject,
		Email:         u.Email,
		EmailVerified: u.EmailVerified,
		Name:          u.Name,
		GivenName:     u.GivenName,
		FamilyName:    u.FamilyName,
	}
}

func (p *Provider) Identity(ctx context.Context, token *social.Token) (*social.Identity, error) {
	if p.verifier != nil && token.IDToken != "" {
		claims, err := p.verifier.Verify(token.IDToken, token.Nonce)
		if err != nil {
			return nil, &social.APIError{Provider: "google", Op: "id_token", Message: err.Error()}
		}
		return claims.userInfo().identity(), nil
	}

	var info userInfo
	if err := p.client.GetJSON(ctx, "userinfo", p.userInfoURL, token, nil, decodeError, &info); err != nil {
		return nil, err
	}
	return info.identity(), nil
}

// decodeError understands both the OAuth error body and the Google API
// error envelope
func decodeError(body []byte) (string, string) {
	var reply struct {
		Error            json.RawMessage `json:"error"`
		ErrorDescription string          `json:"error_description"`
	}
	if json.Unmarshal(body, &reply) != nil || len(reply.Error) == 0 {
		return "", ""
	}

	var code string
	if json.Unmarshal(reply.Error, &code) == nil {
		return code, reply.ErrorDescription
	}

	var envelope struct {
		Message string `json:"message"`
		Status  string `json:"status"`
	}
	if json.Unmarshal(reply.Error, &envelope) == nil {
		return envelope.Status, envelope.Message
	}
	return "", ""
}

func or(v, fallback string) string {
	if v != "" {
		return v
	}
	return fallback
}
