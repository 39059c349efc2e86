package social

import (
	"context"
	"fmt"
	"sort"
	"strings"

	auth "github.com/goliatone/go-storefront-auth"
)

// Authenticator runs the browser side of an external login against the
// registered providers.
type Authenticator struct {
	providers map[string]Provider
	sealer    StateSealer
	logger    auth.Logger
	// TrustUnverifiedEmail forwards provider emails the provider did not
	// verify.
	TrustUnverifiedEmail bool
	// Prompt is forwarded on every authorization request when set
	Prompt string
}

var _ auth.ExternalAuthenticator = (*Authenticator)(nil)

type Option func(*Authenticator)

// WithProvider registers p under its lower cased name
func WithProvider(p Provider) Option {
	return func(a *Authenticator) {
		if p != nil {
			a.providers[strings.ToLower(p.Name())] = p
		}
	}
}

func WithLogger(logger auth.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

func NewAuthenticator(sealer StateSealer, opts ...Option) *Authenticator {
	a := &Authenticator{
		providers: map[string]Provider{},
		sealer:    sealer,
		logger:    nopLogger{},
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Providers lists the registered provider names, sorted
func (a *Authenticator) Providers() []string {
	names := make([]string, 0, len(a.providers))
	for name := range a.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Challenge returns the provider authorization URL. The callback and
// return URLs travel sealed in the state.
func (a *Authenticator) Challenge(_ context.Context, providerName, callbackURL, returnURL string) (string, error) {
	p, ok := a.providers[strings.ToLower(providerName)]
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownProvider, providerName)
	}

	verifier, err := randomString(32)
	if err != nil {
		return "", err
	}
	nonce, err := randomString(16)
	if err != nil {
		return "", err
	}

	sealed, err := a.sealer.Seal(FlowState{
		Provider:    p.Name(),
		RedirectURI: callbackURL,
		ReturnURL:   returnURL,
		Verifier:    verifier,
		Nonce:       nonce,
	})
	if err != nil {
		return "", fmt.Errorf("social: seal state: %w", err)
	}

	a.logger.Debug("social: challenge %s, callback %s", p.Name(), callbackURL)
	return p.AuthorizeURL(AuthorizeRequest{
		State:         sealed,
		RedirectURI:   callbackURL,
		CodeChallenge: s256(verifier),
		Nonce:         nonce,
		Prompt:        a.Prompt,
	}), nil
}

// Complete redeems the code and returns the provider identity with the
// return URL recorded at challenge time. An empty code means the user
// declined at the provider.
func (a *Authenticator) Complete(ctx context.Context, code, sealed string) (*auth.ExternalLoginInfo, string, error) {
	state, err := a.sealer.Open(sealed)
	if err != nil {
		return nil, "", err
	}
	if code == "" {
		return nil, state.ReturnURL, ErrDeclined
	}

	p, ok := a.providers[strings.ToLower(state.Provider)]
	if !ok {
		return nil, state.ReturnURL, fmt.Errorf("%w: %q", ErrUnknownProvider, state.Provider)
	}

	token, err := p.Redeem(ctx, Grant{
		Code:         code,
		RedirectURI:  state.RedirectURI,
		CodeVerifier: state.Verifier,
		Nonce:        state.Nonce,
	})
	if err != nil {
		return nil, state.ReturnURL, fmt.Errorf("%w: %w", ErrRedeem, err)
	}

	id, err := p.Identity(ctx, token)
	if err != nil {
		return nil, state.ReturnURL, fmt.Errorf("%w: %w", ErrIdentity, err)
	}
	if id == nil || id.Subject == "" {
		return nil, state.ReturnURL, fmt.Errorf("%w: %s returned no subject", ErrIdentity, p.Name())
	}

	a.logger.Debug("social: %s subject %s resolved", p.Name(), id.Subject)
	return &auth.ExternalLoginInfo{
		Provider:    p.Name(),
		ProviderKey: id.Subject,
		DisplayName: p.DisplayName(),
		Claims:      id.Claims(a.TrustUnverifiedEmail),
	}, state.ReturnURL, nil
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}
