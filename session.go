package auth

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
)

// SessionManager issues the session cookie and restores the principal
// on every request.
type SessionManager struct {
	cfg                    Config
	tokens                 *TokenService
	cookieDuration         time.Duration
	extendedCookieDuration time.Duration
	Logger                 Logger
}

// NewSessionManager builds a cookie session around cfg
func NewSessionManager(cfg Config) *SessionManager {
	cookieDuration := 24 * time.Hour
	if cfg.GetTokenExpiration() > 0 {
		cookieDuration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	extendedCookieDuration := cookieDuration
	if cfg.GetExtendedTokenDuration() > 0 {
		extendedCookieDuration = time.Duration(cfg.GetExtendedTokenDuration()) * time.Hour
	}

	logger := Logger(defLogger{})
	return &SessionManager{
		cfg:                    cfg,
		tokens:                 NewTokenService([]byte(cfg.GetSigningKey()), cfg.GetIssuer(), cfg.GetAudience(), logger),
		cookieDuration:         cookieDuration,
		extendedCookieDuration: extendedCookieDuration,
		Logger:                 logger,
	}
}

func (m *SessionManager) WithLogger(logger Logger) *SessionManager {
	if logger != nil {
		m.Logger = logger
		m.tokens.logger = logger
	}
	return m
}

func (m SessionManager) GetCookieDuration() time.Duration {
	return m.cookieDuration
}

func (m SessionManager) GetExtendedCookieDuration() time.Duration {
	return m.extendedCookieDuration
}

// Tokens exposes the token service backing the cookie
func (m *SessionManager) Tokens() *TokenService {
	return m.tokens
}

// Writer binds a SessionWriter to the current request
func (m *SessionManager) Writer(c *fiber.Ctx) SessionWriter {
	return &fiberSession{c: c, m: m}
}

// Middleware restores the session principal from the cookie. Requests
// without a valid session continue anonymously.
func (m *SessionManager) Middleware(users CredentialStore) fiber.Handler {
	return func(c *fiber.Ctx) error {
		raw := c.Cookies(m.cfg.GetContextKey())
		if raw == "" {
			return c.Next()
		}

		claims, err := m.tokens.Validate(raw)
		if err != nil {
			m.Logger.Debug("session: dropping cookie: %v", err)
			m.cookieDel(c, m.cfg.GetContextKey())
			return c.Next()
		}

		user, err := users.FindByID(c.UserContext(), claims.UserID())
		if err != nil {
			if !IsNotFound(err) {
				m.Logger.Error("session: load user %s: %v", claims.UserID(), err)
			}
			m.cookieDel(c, m.cfg.GetContextKey())
			return c.Next()
		}

		if user.SecurityStamp != claims.SecurityStamp {
			m.Logger.Info("session: stamp changed for %s, signing out", user.Username)
			m.cookieDel(c, m.cfg.GetContextKey())
			return c.Next()
		}

		// operator provenance travels with the session, not the record
		user.OperatorID = claims.OperatorID
		user.OperatorName = claims.OperatorName

		c.Locals(sessionUserKey, user)
		c.Locals(sessionClaimsKey, claims)
		c.SetUserContext(WithContext(c.UserContext(), user))
		return c.Next()
	}
}

// Login issues a session for user
func (m *SessionManager) Login(c *fiber.Ctx, user *User, persistent bool) error {
	if user == nil {
		return errors.New("session: nil user")
	}

	duration := m.cookieDuration
	if persistent {
		duration = m.extendedCookieDuration
	}

	token, err := m.tokens.Generate(user, duration, persistent)
	if err != nil {
		m.Logger.Error("session: sign token for %s: %v", user.Username, err)
		return err
	}

	m.setCookieToken(c, token, duration, persistent)
	c.Locals(sessionUserKey, user)
	return nil
}

// Logout deletes the session cookie
func (m *SessionManager) Logout(c *fiber.Ctx) {
	m.cookieDel(c, m.cfg.GetContextKey())
	c.Locals(sessionUserKey, nil)
	c.Locals(sessionClaimsKey, nil)
}

// SetRedirect remembers the rejected route
func (m *SessionManager) SetRedirect(c *fiber.Ctx) {
	rejectedRoute := m.cfg.GetRejectedRouteKey()

	m.Logger.Debug("setting redirect cookie %s to %s", rejectedRoute, c.OriginalURL())

	c.Cookie(&fiber.Cookie{
		Name:     rejectedRoute,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   m.cfg.GetCookieSecure(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

// GetRedirect returns and clears the rejected route
func (m *SessionManager) GetRedirect(c *fiber.Ctx, def string) string {
	rejectedRoute := m.cfg.GetRejectedRouteKey()
	r := c.Cookies(rejectedRoute)
	if r == "" {
		return def
	}
	m.cookieDel(c, rejectedRoute)
	return r
}

// setCookieToken writes a session cookie for non persistent logins and
// a dated cookie otherwise.
func (m *SessionManager) setCookieToken(c *fiber.Ctx, val string, duration time.Duration, persistent bool) {
	cookie := &fiber.Cookie{
		Name:     m.cfg.GetContextKey(),
		Value:    val,
		HTTPOnly: true,
		Secure:   m.cfg.GetCookieSecure(),
		SameSite: fiber.CookieSameSiteLaxMode,
	}
	if persistent {
		cookie.Expires = time.Now().Add(duration)
	} else {
		cookie.SessionOnly = true
	}
	c.Cookie(cookie)
}

func (m *SessionManager) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   m.cfg.GetCookieSecure(),
		SameSite: fiber.CookieSameSiteLaxMode,
	})
}

type fiberSession struct {
	c *fiber.Ctx
	m *SessionManager
}

func (s *fiberSession) SignIn(_ context.Context, user *User, persistent bool) error {
	return s.m.Login(s.c, user, persistent)
}

func (s *fiberSession) SignOut(_ context.Context) error {
	s.m.Logout(s.c)
	return nil
}
