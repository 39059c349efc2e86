// Package github signs customers in with their GitHub account.
package github

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/goliatone/go-storefront-auth/social"
)

const (
	AuthorizeURL = "https://github.com/login/oauth/authorize"
	TokenURL     = "https://github.com/login/oauth/access_token"
	APIURL       = "https://api.github.com"
)

type Config struct {
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthorizeURL string
	TokenURL     string
	APIURL       string
	HTTPClient   *http.Client
}

type Provider struct {
	client *social.Client
	api    string
}

var _ social.Provider = (*Provider)(nil)

func New(cfg Config) *Provider {
	scopes := cfg.Scopes
	if len(scopes) == 0 {
		scopes = []string{"read:user", "user:email"}
	}
	p := &Provider{
		client: &social.Client{
			Provider:       "github",
			ClientID:       cfg.ClientID,
			ClientSecret:   cfg.ClientSecret,
			Scopes:         scopes,
			AuthorizeURL:   cfg.AuthorizeURL,
			TokenURL:       cfg.TokenURL,
			HTTP:           cfg.HTTPClient,
			ScopeSeparator: ",",
		},
		api: strings.TrimRight(cfg.APIURL, "/"),
	}
	if p.client.AuthorizeURL == "" {
		p.client.AuthorizeURL = AuthorizeURL
	}
	if p.client.TokenURL == "" {
		p.client.TokenURL = TokenURL
	}
	if p.api == "" {
		p.api = APIURL
	}
	return p
}

func (p *Provider) Name() string        { return "github" }
func (p *Provider) DisplayName() string { return "GitHub" }

// AuthorizeURL ignores the nonce, GitHub is not an OpenID provider
func (p *Provider) AuthorizeURL(req social.AuthorizeRequest) string {
	return p.client.AuthorizationURL(req, nil)
}

func (p *Provider) Redeem(ctx context.Context, grant social.Grant) (*social.Token, error) {
	return p.client.Redeem(ctx, grant, nil)
}

type account struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type address struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

var apiHeader = http.Header{"Accept": {"application/vnd.github+json"}}

// Identity reads the account and its primary address. When the address
// list is not readable the public profile email is used, unverified.
func (p *Provider) Identity(ctx context.Context, token *social.Token) (*social.Identity, error) {
	var acct account
	if err := p.client.GetJSON(ctx, "user", p.api+"/user", token, apiHeader, decodeError, &acct); err != nil {
		return nil, err
	}

	id := &social.Identity{
		Subject:  strconv.FormatInt(acct.ID, 10),
		Name:     acct.Name,
		Nickname: acct.Login,
		Email:    acct.Email,
	}
	// only a display name is exposed, split on the first space
	first, last, _ := strings.Cut(strings.TrimSpace(acct.Name), " ")
	id.GivenName, id.FamilyName = first, strings.TrimSpace(last)

	var addresses []address
	if err := p.client.GetJSON(ctx, "emails", p.api+"/user/emails", token, apiHeader, decodeError, &addresses); err == nil {
		if a, ok := pickAddress(addresses); ok {
			id.Email, id.EmailVerified = a.Email, a.Verified
		}
	}
	return id, nil
}

func pickAddress(addresses []address) (address, bool) {
	for _, a := range addresses {
		if a.Primary {
			return a, true
		}
	}
	for _, a := range addresses {
		if a.Verified {
			return a, true
		}
	}
	return address{}, false
}

func decodeError(body []byte) (string, string) {
	var reply struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(body, &reply) == nil {
		return "", reply.Message
	}
	return "", ""
}
