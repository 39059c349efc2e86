// Package csrf guards state changing requests with stateless tokens.
//
// A client is identified by a random binding cookie. Tokens are an HMAC
// over the binding id, an issue time and a random salt, so any instance
// holding the key can validate them without shared storage.
package csrf

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/gofiber/fiber/v2"
)

var (
	ErrTokenMissing  = errors.New("csrf: token missing")
	ErrTokenMismatch = errors.New("csrf: token mismatch")
	ErrTokenExpired  = errors.New("csrf: token expired")
)

const (
	DefaultContextKey  = "csrf"
	DefaultFormField   = "_token"
	DefaultHeaderName  = "X-CSRF-Token"
	DefaultCookieName  = "csrf_sid"
	DefaultExpiration  = 24 * time.Hour
	minSecureKeyLength = 32
	saltLength         = 16
)

type Config struct {
	// Next skips the middleware when it returns true
	Next func(c *fiber.Ctx) bool

	// ExemptPaths are store relative paths never validated
	ExemptPaths []string

	// ContextKey is the locals key the issued token is stored under
	ContextKey string
	FormField  string
	HeaderName string
	CookieName string

	CookieSecure bool
	Expiration   time.Duration

	// SecureKey signs tokens and must be at least 32 bytes. A random
	// key is generated when empty, which only works on a single instance.
	SecureKey []byte

	ErrorHandler fiber.ErrorHandler
}

func (cfg Config) withDefaults() Config {
	if cfg.ContextKey == "" {
		cfg.ContextKey = DefaultContextKey
	}
	if cfg.FormField == "" {
		cfg.FormField = DefaultFormField
	}
	if cfg.HeaderName == "" {
		cfg.HeaderName = DefaultHeaderName
	}
	if cfg.CookieName == "" {
		cfg.CookieName = DefaultCookieName
	}
	if cfg.Expiration <= 0 {
		cfg.Expiration = DefaultExpiration
	}
	if cfg.ErrorHandler == nil {
		cfg.ErrorHandler = rejectRequest
	}
	if len(cfg.SecureKey) == 0 {
		cfg.SecureKey = randomBytes(minSecureKeyLength)
	} else if len(cfg.SecureKey) < minSecureKeyLength {
		panic(fmt.Sprintf("csrf: secure key must be at least %d bytes, got %d", minSecureKeyLength, len(cfg.SecureKey)))
	}
	return cfg
}

// Signer issues and checks tokens for one key
type Signer struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewSigner(key []byte, ttl time.Duration) *Signer {
	return &Signer{key: key, ttl: ttl, now: time.Now}
}

// Issue returns a token bound to clientID
func (s *Signer) Issue(clientID string) string {
	raw := make([]byte, 8+saltLength, 8+saltLength+sha256.Size)
	binary.BigEndian.PutUint64(raw, uint64(s.now().Unix()))
	copy(raw[8:], randomBytes(saltLength))
	raw = append(raw, s.mac(clientID, raw)...)
	return base64.RawURLEncoding.EncodeToString(raw)
}

// Check validates a token presented by clientID
func (s *Signer) Check(clientID, token string) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != 8+saltLength+sha256.Size {
		return ErrTokenMismatch
	}

	body, sum := raw[:8+saltLength], raw[8+saltLength:]
	if !hmac.Equal(sum, s.mac(clientID, body)) {
		return ErrTokenMismatch
	}

	issued := time.Unix(int64(binary.BigEndian.Uint64(body)), 0)
	if s.now().After(issued.Add(s.ttl)) {
		return ErrTokenExpired
	}
	return nil
}

func (s *Signer) mac(clientID string, body []byte) []byte {
	h := hmac.New(sha256.New, s.key)
	h.Write([]byte(clientID))
	h.Write([]byte{0})
	h.Write(body)
	return h.Sum(nil)
}

// New returns the middleware. Every request gets a fresh token in
// locals, unsafe methods outside ExemptPaths must present one.
func New(config ...Config) fiber.Handler {
	var cfg Config
	if len(config) > 0 {
		cfg = config[0]
	}
	cfg = cfg.withDefaults()
	signer := NewSigner(cfg.SecureKey, cfg.Expiration)

	return func(c *fiber.Ctx) error {
		if cfg.Next != nil && cfg.Next(c) {
			return c.Next()
		}

		clientID := c.Cookies(cfg.CookieName)
		if clientID == "" {
			clientID = base64.RawURLEncoding.EncodeToString(randomBytes(16))
			c.Cookie(&fiber.Cookie{
				Name:     cfg.CookieName,
				Value:    clientID,
				Path:     "/",
				HTTPOnly: true,
				Secure:   cfg.CookieSecure,
				SameSite: fiber.CookieSameSiteLaxMode,
			})
		}

		c.Locals(cfg.ContextKey, signer.Issue(clientID))

		if safeMethod(c.Method()) || slices.Contains(cfg.ExemptPaths, c.Path()) {
			return c.Next()
		}

		token := c.Get(cfg.HeaderName)
		if token == "" {
			token = c.FormValue(cfg.FormField)
		}
		if token == "" {
			return cfg.ErrorHandler(c, ErrTokenMissing)
		}
		if err := signer.Check(clientID, token); err != nil {
			return cfg.ErrorHandler(c, err)
		}
		return c.Next()
	}
}

func safeMethod(method string) bool {
	switch method {
	case fiber.MethodGet, fiber.MethodHead, fiber.MethodOptions, fiber.MethodTrace:
		return true
	}
	return false
}

func rejectRequest(c *fiber.Ctx, err error) error {
	if errors.Is(err, ErrTokenMissing) {
		return c.Status(fiber.StatusBadRequest).SendString(err.Error())
	}
	return c.Status(fiber.StatusForbidden).SendString(err.Error())
}

func randomBytes(n int) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("csrf: read random: %v", err))
	}
	return b
}
