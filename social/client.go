package social

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const maxResponseBytes = 1 << 20

// Client holds the app registration with one provider and performs the
// HTTP exchanges every authorization code provider shares.
type Client struct {
	Provider     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	AuthorizeURL string
	TokenURL     string
	HTTP         *http.Client
	// ScopeSeparator splits the granted scope string, space when empty
	ScopeSeparator string
}

func (c *Client) httpClient() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 10 * time.Second}
}

// AuthorizationURL builds the provider redirect. extra is merged last.
func (c *Client) AuthorizationURL(req AuthorizeRequest, extra url.Values) string {
	q := url.Values{}
	q.Set("client_id", c.ClientID)
	q.Set("redirect_uri", req.RedirectURI)
	q.Set("state", req.State)
	if len(c.Scopes) > 0 {
		q.Set("scope", strings.Join(c.Scopes, " "))
	}
	if req.CodeChallenge != "" {
		q.Set("code_challenge", req.CodeChallenge)
		q.Set("code_challenge_method", "S256")
	}
	if req.Prompt != "" {
		q.Set("prompt", req.Prompt)
	}
	for k, vs := range extra {
		q[k] = vs
	}
	return c.AuthorizeURL + "?" + q.Encode()
}

type tokenReply struct {
	AccessToken      string `json:"access_token"`
	IDToken          string `json:"id_token"`
	ExpiresIn        int64  `json:"expires_in"`
	Scope            string `json:"scope"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// Redeem trades the code at the token endpoint. Some providers answer
// grant failures with 200 and an error field, both shapes are errors.
func (c *Client) Redeem(ctx context.Context, grant Grant, extra url.Values) (*Token, error) {
	form := url.Values{}
	form.Set("client_id", c.ClientID)
	form.Set("client_secret", c.ClientSecret)
	form.Set("code", grant.Code)
	form.Set("redirect_uri", grant.RedirectURI)
	if grant.CodeVerifier != "" {
		form.Set("code_verifier", grant.CodeVerifier)
	}
	for k, vs := range extra {
		form[k] = vs
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	status, body, err := c.send(req)
	if err != nil {
		return nil, err
	}

	var reply tokenReply
	if err := json.Unmarshal(body, &reply); err != nil {
		return nil, &APIError{Provider: c.Provider, Op: "token", Status: status, Message: "unreadable token response"}
	}
	if status != http.StatusOK || reply.Error != "" {
		return nil, &APIError{Provider: c.Provider, Op: "token", Status: status, Code: reply.Error, Message: reply.ErrorDescription}
	}
	if reply.AccessToken == "" {
		return nil, &APIError{Provider: c.Provider, Op: "token", Status: status, Message: "no access token issued"}
	}

	token := &Token{AccessToken: reply.AccessToken, IDToken: reply.IDToken, Nonce: grant.Nonce}
	sep := c.ScopeSeparator
	if sep == "" {
		sep = " "
	}
	for _, s := range strings.Split(reply.Scope, sep) {
		if s = strings.TrimSpace(s); s != "" {
			token.Scopes = append(token.Scopes, s)
		}
	}
	if reply.ExpiresIn > 0 {
		token.Expiry = time.Now().Add(time.Duration(reply.ExpiresIn) * time.Second)
	}
	return token, nil
}

// ErrorDecoder extracts code and message from a failed API response
type ErrorDecoder func(body []byte) (code, message string)

// GetJSON calls a bearer protected endpoint and decodes the reply into out
func (c *Client) GetJSON(ctx context.Context, op, endpoint string, token *Token, header http.Header, decodeErr ErrorDecoder, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	for k, vs := range header {
		req.Header[k] = vs
	}
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)

	status, body, err := c.send(req)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		apiErr := &APIError{Provider: c.Provider, Op: op, Status: status}
		if decodeErr != nil {
			apiErr.Code, apiErr.Message = decodeErr(body)
		}
		if apiErr.Code == "" && apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(body))
		}
		return apiErr
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%s %s: decode: %w", c.Provider, op, err)
	}
	return nil
}

func (c *Client) send(req *http.Request) (int, []byte, error) {
	resp, err := c.httpClient().Do(req)
	if err != nil {
		return 0, nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	return resp.StatusCode, body, err
}
