package social

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

// FlowState is everything the callback needs to finish a login. It
// travels through the provider in the state parameter.
type FlowState struct {
	Provider    string `json:"p"`
	RedirectURI string `json:"cb"`
	ReturnURL   string `json:"r,omitempty"`
	Verifier    string `json:"v"`
	Nonce       string `json:"n"`
	Expires     int64  `json:"exp"`
}

// StateSealer makes FlowState opaque and tamper evident
type StateSealer interface {
	Seal(state FlowState) (string, error)
	Open(sealed string) (FlowState, error)
}

var stateContext = []byte("storefront-auth/oauth-state")

// AEADSealer seals with AES-256-GCM. The key is derived from a secret so
// rotating the secret drops every login in flight.
type AEADSealer struct {
	aead cipher.AEAD
	ttl  time.Duration
	now  func() time.Time
}

var _ StateSealer = (*AEADSealer)(nil)

func NewAEADSealer(secret string, ttl time.Duration) (*AEADSealer, error) {
	if secret == "" {
		return nil, fmt.Errorf("social: state secret is required")
	}
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}

	key := sha256.Sum256([]byte(secret))
	block, err := aes.NewCipher(key[:])
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &AEADSealer{aead: aead, ttl: ttl, now: time.Now}, nil
}

func (s *AEADSealer) Seal(state FlowState) (string, error) {
	state.Expires = s.now().Add(s.ttl).Unix()
	plain, err := json.Marshal(state)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, s.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	out := s.aead.Seal(nonce, nonce, plain, stateContext)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

func (s *AEADSealer) Open(sealed string) (FlowState, error) {
	var state FlowState

	raw, err := base64.RawURLEncoding.DecodeString(sealed)
	if err != nil || len(raw) < s.aead.NonceSize() {
		return state, ErrInvalidState
	}
	n := s.aead.NonceSize()
	plain, err := s.aead.Open(nil, raw[:n], raw[n:], stateContext)
	if err != nil {
		return state, ErrInvalidState
	}
	if err := json.Unmarshal(plain, &state); err != nil {
		return state, ErrInvalidState
	}
	if s.now().Unix() > state.Expires {
		return state, ErrStateExpired
	}
	return state, nil
}

func randomString(n int) (string, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// s256 is the PKCE code challenge of verifier
func s256(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}
