package social

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newSealer(t *testing.T, secret string) *AEADSealer {
	t.Helper()
	s, err := NewAEADSealer(secret, 10*time.Minute)
	require.NoError(t, err)
	return s
}

func TestSealerRoundTrip(t *testing.T) {
	s := newSealer(t, "secret")

	sealed, err := s.Seal(FlowState{
		Provider:    "google",
		RedirectURI: "https://shop.example.com/de/de-DE/account/externallogincallback",
		ReturnURL:   "/account",
		Verifier:    "verifier",
		Nonce:       "nonce",
	})
	require.NoError(t, err)
	assert.NotContains(t, sealed, "google")

	state, err := s.Open(sealed)
	require.NoError(t, err)
	assert.Equal(t, "google", state.Provider)
	assert.Equal(t, "/account", state.ReturnURL)
	assert.Equal(t, "verifier", state.Verifier)
	assert.Equal(t, "nonce", state.Nonce)
}

func TestSealerExpiry(t *testing.T) {
	s := newSealer(t, "secret")
	issued := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return issued }

	sealed, err := s.Seal(FlowState{Provider: "google"})
	require.NoError(t, err)

	s.now = func() time.Time { return issued.Add(11 * time.Minute) }
	_, err = s.Open(sealed)
	assert.ErrorIs(t, err, ErrStateExpired)
}

func TestSealerRejectsTampering(t *testing.T) {
	s := newSealer(t, "secret")
	sealed, err := s.Seal(FlowState{Provider: "google"})
	require.NoError(t, err)

	swap := "A"
	if sealed[20] == 'A' {
		swap = "B"
	}
	for name, input := range map[string]string{
		"flipped":  sealed[:20] + swap + sealed[21:],
		"encoding": "!!!",
		"short":    "AAAA",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := s.Open(input)
			assert.ErrorIs(t, err, ErrInvalidState)
		})
	}

	_, err = newSealer(t, "rotated").Open(sealed)
	assert.ErrorIs(t, err, ErrInvalidState)

	_, err = NewAEADSealer("", time.Minute)
	assert.Error(t, err)
}

func TestS256(t *testing.T) {
	// RFC 7636 appendix B
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", s256("dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"))

	v, err := randomString(32)
	require.NoError(t, err)
	assert.Len(t, v, 43)
}
