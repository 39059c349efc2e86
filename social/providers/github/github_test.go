package github

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/goliatone/go-storefront-auth/social"
)

const callback = "https://shop.example.com/account/externallogincallback"

func TestAuthorizeURL(t *testing.T) {
	p := New(Config{ClientID: "client-id", Scopes: []string{"read:user"}})

	parsed, err := url.Parse(p.AuthorizeURL(social.AuthorizeRequest{
		State:         "state-token",
		RedirectURI:   callback,
		CodeChallenge: "challenge",
		Nonce:         "ignored",
	}))
	require.NoError(t, err)

	q := parsed.Query()
	assert.Equal(t, "github.com", parsed.Host)
	assert.Equal(t, "client-id", q.Get("client_id"))
	assert.Equal(t, "state-token", q.Get("state"))
	assert.Equal(t, "read:user", q.Get("scope"))
	assert.Equal(t, "S256", q.Get("code_challenge_method"))
	assert.Empty(t, q.Get("nonce"))
	assert.Empty(t, q.Get("response_type"))
}

func newServer(t *testing.T, emails http.HandlerFunc) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/login/oauth/access_token":
			assert.Equal(t, "application/json", r.Header.Get("Accept"))
			body, _ := io.ReadAll(r.Body)
			form, err := url.ParseQuery(string(body))
			assert.NoError(t, err)
			if form.Get("code") != "auth-code" {
				// grant failures come back with 200
				_, _ = w.Write([]byte(`{"error":"bad_verification_code","error_description":"The code passed is incorrect or expired."}`))
				return
			}
			_, _ = w.Write([]byte(`{"access_token":"gho_token","token_type":"bearer","scope":"read:user,user:email"}`))
		case "/user":
			assert.Equal(t, "Bearer gho_token", r.Header.Get("Authorization"))
			assert.Equal(t, "application/vnd.github+json", r.Header.Get("Accept"))
			_ = json.NewEncoder(w).Encode(map[string]any{
				"id":    583231,
				"login": "octocat",
				"name":  "Mona Lisa Octocat",
				"email": "public@example.com",
			})
		case "/user/emails":
			emails(w, r)
		default:
			http.NotFound(w, r)
		}
	}))
}

func provider(server *httptest.Server) *Provider {
	return New(Config{
		ClientID:     "client-id",
		ClientSecret: "client-secret",
		TokenURL:     server.URL + "/login/oauth/access_token",
		APIURL:       server.URL,
		HTTPClient:   server.Client(),
	})
}

func TestRedeemAndIdentity(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`[
			{"email":"old@example.com","primary":false,"verified":true},
			{"email":"mona@example.com","primary":true,"verified":true}
		]`))
	})
	defer server.Close()
	p := provider(server)

	token, err := p.Redeem(context.Background(), social.Grant{Code: "auth-code", RedirectURI: callback})
	require.NoError(t, err)
	assert.Equal(t, []string{"read:user", "user:email"}, token.Scopes)

	id, err := p.Identity(context.Background(), token)
	require.NoError(t, err)
	assert.Equal(t, "583231", id.Subject)
	assert.Equal(t, "octocat", id.Nickname)
	assert.Equal(t, "Mona", id.GivenName)
	assert.Equal(t, "Lisa Octocat", id.FamilyName)
	assert.Equal(t, "mona@example.com", id.Email)
	assert.True(t, id.EmailVerified)
}

func TestIdentityFallsBackToPublicEmail(t *testing.T) {
	server := newServer(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"message":"Not Found"}`))
	})
	defer server.Close()

	id, err := provider(server).Identity(context.Background(), &social.Token{AccessToken: "gho_token"})
	require.NoError(t, err)
	assert.Equal(t, "public@example.com", id.Email)
	assert.False(t, id.EmailVerified)
}

func TestRedeemErrorWithOKStatus(t *testing.T) {
	server := newServer(t, nil)
	defer server.Close()

	_, err := provider(server).Redeem(context.Background(), social.Grant{Code: "stale", RedirectURI: callback})

	var apiErr *social.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, http.StatusOK, apiErr.Status)
	assert.Equal(t, "bad_verification_code", apiErr.Code)
	assert.Equal(t, "The code passed is incorrect or expired.", apiErr.Message)
}

func TestIdentityUserError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
	}))
	defer server.Close()

	p := New(Config{APIURL: server.URL, HTTPClient: server.Client()})
	_, err := p.Identity(context.Background(), &social.Token{AccessToken: "revoked"})

	var apiErr *social.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "user", apiErr.Op)
	assert.Equal(t, http.StatusUnauthorized, apiErr.Status)
	assert.Equal(t, "Bad credentials", apiErr.Message)
}
