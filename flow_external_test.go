package auth_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-storefront-auth"
)

func TestExternalLoginChallenge(t *testing.T) {
	h := newHarness(t)

	out := h.orch.ExternalLogin(context.Background(), h.rc, "google", "https://evil.example.com")
	require.True(t, out.IsRedirect())
	assert.Equal(t, "https://idp.example.com/authorize?state=sealed", out.Redirect)
	assert.Equal(t, "google", h.external.gotProvider)
	assert.Equal(t, "http://localhost:8080/account/externallogincallback", h.external.gotCallback)
	assert.Equal(t, "/", h.external.gotReturn)
}

func TestExternalLoginChallengeFailure(t *testing.T) {
	h := newHarness(t)
	h.external.err = errors.New("unknown provider")

	out := h.orch.ExternalLogin(context.Background(), h.rc, "myspace", "")
	assert.Equal(t, auth.ViewLogin, out.View)
	requireCodes(t, out, auth.FormErrExternalLoginFailed)
}

func TestExternalCallbackProvisionsAnonymousCaller(t *testing.T) {
	h := newHarness(t)
	h.external.info = &auth.ExternalLoginInfo{
		Provider:    "google",
		ProviderKey: "key",
		Claims:      []auth.Claim{{Type: auth.ClaimEmail, Value: "e@x.com"}},
	}
	h.external.returnURL = "/account/orders"

	out := h.orch.ExternalLoginCallback(context.Background(), h.rc, "code", "state")

	require.True(t, out.IsRedirect(), out.Form.CodeString())
	assert.Equal(t, "/account/orders", out.Redirect)

	created, err := h.store.FindByName(context.Background(), "google--key")
	require.NoError(t, err)
	assert.Equal(t, "unknown", created.FirstName)
	assert.Equal(t, "e@x.com", created.Email)
	assert.Equal(t, "main", created.StoreID)
	assert.False(t, created.HasPassword())

	linked, err := h.store.FindByLogin(context.Background(), "google", "key")
	require.NoError(t, err)
	assert.Equal(t, created.ID, linked.ID)

	assert.Equal(t, 1, h.bus.count(auth.EventUserLogin))
	assert.Zero(t, h.bus.count(auth.EventUserRegistered))
	assert.Equal(t, []signIn{{Username: "google--key", Persistent: false}}, h.session.signIns)
}

func TestExternalCallbackFirstNameFallback(t *testing.T) {
	tests := []struct {
		name   string
		claims []auth.Claim
		want   string
	}{
		{
			name: "given name wins",
			claims: []auth.Claim{
				{Type: auth.ClaimNickname, Value: "jd"},
				{Type: auth.ClaimGivenName, Value: "Jane"},
			},
			want: "Jane",
		},
		{
			name:   "display name",
			claims: []auth.Claim{{Type: auth.ClaimName, Value: "Jane Doe"}},
			want:   "Jane Doe",
		},
		{
			name:   "nickname",
			claims: []auth.Claim{{Type: auth.ClaimGivenName}, {Type: auth.ClaimNickname, Value: "jd"}},
			want:   "jd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			h.external.info = &auth.ExternalLoginInfo{Provider: "github", ProviderKey: "42", Claims: tt.claims}

			out := h.orch.ExternalLoginCallback(context.Background(), h.rc, "code", "state")
			require.True(t, out.IsRedirect(), out.Form.CodeString())

			created, err := h.store.FindByName(context.Background(), "github--42")
			require.NoError(t, err)
			assert.Equal(t, tt.want, created.FirstName)
		})
	}
}

func TestExternalCallbackLinksAuthenticatedCaller(t *testing.T) {
	h := newHarness(t)
	jane := h.store.seed(auth.User{Username: "jane", StoreID: "main"}, testPassword)
	h.external.info = &auth.ExternalLoginInfo{Provider: "google", ProviderKey: "g-1"}

	out := h.orch.ExternalLoginCallback(context.Background(), h.as(jane), "code", "state")
	require.True(t, out.IsRedirect(), out.Form.CodeString())

	assert.Zero(t, h.store.creates)
	linked, err := h.store.FindByLogin(context.Background(), "google", "g-1")
	require.NoError(t, err)
	assert.Equal(t, jane.ID, linked.ID)

	require.Len(t, h.bus.events, 1)
	assert.Equal(t, "jane", h.bus.events[0].(auth.UserLoginEvent).User.Username)
}

func TestExternalCallbackExistingLink(t *testing.T) {
	h := newHarness(t)
	jane := h.store.seed(auth.User{Username: "jane", StoreID: "main"}, testPassword)
	require.NoError(t, h.store.AddExternalLogin(context.Background(), jane, auth.ExternalLoginInfo{Provider: "google", ProviderKey: "g-1"}))
	h.external.info = &auth.ExternalLoginInfo{Provider: "google", ProviderKey: "g-1"}

	out := h.orch.ExternalLoginCallback(context.Background(), h.rc, "code", "state")
	require.True(t, out.IsRedirect())
	assert.Equal(t, "/", out.Redirect)
	assert.Zero(t, h.store.creates)
	assert.Equal(t, 1, h.bus.count(auth.EventUserLogin))
}

func TestExternalCallbackRetriesAfterLinkFailure(t *testing.T) {
	h := newHarness(t)
	h.external.info = &auth.ExternalLoginInfo{Provider: "google", ProviderKey: "key"}
	h.store.linkErr = errors.New("database is locked")

	failed := h.orch.ExternalLoginCallback(context.Background(), h.rc, "code", "state")
	assert.False(t, failed.IsRedirect())
	assert.Equal(t, auth.ViewLogin, failed.View)
	assert.Zero(t, h.store.creates)
	_, err := h.store.FindByName(context.Background(), "google--key")
	assert.ErrorIs(t, err, auth.ErrUserNotFound)

	retried := h.orch.ExternalLoginCallback(context.Background(), h.rc, "code", "state")
	require.True(t, retried.IsRedirect(), retried.Form.CodeString())
	assert.Equal(t, 1, h.store.creates)
	assert.Equal(t, []signIn{{Username: "google--key"}}, h.session.signIns)
}

func TestExternalCallbackProvisionsWithoutAtomicStore(t *testing.T) {
	h := newHarness(t)
	orch := auth.NewOrchestrator(plainStore{h.store}, nil).WithExternalAuthenticator(h.external)
	h.external.info = &auth.ExternalLoginInfo{Provider: "github", ProviderKey: "42"}

	out := orch.ExternalLoginCallback(context.Background(), h.rc, "code", "state")
	require.True(t, out.IsRedirect(), out.Form.CodeString())

	linked, err := h.store.FindByLogin(context.Background(), "github", "42")
	require.NoError(t, err)
	assert.Equal(t, "github--42", linked.Username)
}

func TestExternalCallbackFailures(t *testing.T) {
	t.Run("no login info", func(t *testing.T) {
		h := newHarness(t)
		h.external.err = errors.New("state expired")

		out := h.orch.ExternalLoginCallback(context.Background(), h.rc, "code", "state")
		assert.Equal(t, auth.ViewLogin, out.View)
		requireCodes(t, out, auth.FormErrExternalLoginFailed)
		assert.Empty(t, h.session.signIns)
	})

	t.Run("linked account suspended", func(t *testing.T) {
		h := newHarness(t)
		owner := h.store.seed(auth.User{Username: "owner", StoreID: "main", Suspended: true}, testPassword)
		require.NoError(t, h.store.AddExternalLogin(context.Background(), owner, auth.ExternalLoginInfo{Provider: "google", ProviderKey: "g-1"}))
		h.external.info = &auth.ExternalLoginInfo{Provider: "google", ProviderKey: "g-1"}

		out := h.orch.ExternalLoginCallback(context.Background(), h.rc, "code", "state")
		assert.Equal(t, auth.ViewLogin, out.View)
		requireCodes(t, out, auth.FormErrUserSuspended)
		assert.Equal(t, http.StatusForbidden, out.Status)
		assert.Empty(t, h.bus.events)
		assert.Empty(t, h.session.signIns)
	})

	t.Run("provisioned name taken", func(t *testing.T) {
		h := newHarness(t)
		h.store.seed(auth.User{Username: "google--key", StoreID: "main"}, testPassword)
		h.external.info = &auth.ExternalLoginInfo{Provider: "google", ProviderKey: "key"}

		out := h.orch.ExternalLoginCallback(context.Background(), h.rc, "code", "state")
		assert.Equal(t, auth.ViewLogin, out.View)
		requireCodes(t, out, auth.FormErrDuplicateUserName)
		assert.Empty(t, h.bus.events)
	})

	t.Run("not configured", func(t *testing.T) {
		h := newHarness(t)
		orch := auth.NewOrchestrator(h.store, nil)

		out := orch.ExternalLoginCallback(context.Background(), h.rc, "code", "state")
		requireCodes(t, out, auth.FormErrExternalLoginFailed)
	})
}
