package auth

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/gofiber/fiber/v2"

	"github.com/goliatone/go-storefront-auth/storefront"
)

// ChallengePolicy answers unauthenticated and forbidden requests. API
// callers get a status code, browsers a store qualified redirect.
type ChallengePolicy struct {
	APIPrefixes      []string
	LoginPath        string
	AccessDeniedPath string
	ReturnURLParam   string
	URLs             storefront.URLBuilder
	Session          *SessionManager
	Logger           Logger
}

// NewChallengePolicy returns a policy with the account defaults
func NewChallengePolicy(urls storefront.URLBuilder, session *SessionManager) *ChallengePolicy {
	if urls == nil {
		urls = storefront.PathURLBuilder{}
	}
	return &ChallengePolicy{
		APIPrefixes:      []string{"/api/"},
		LoginPath:        "/account/login",
		AccessDeniedPath: "/account/accessdenied",
		ReturnURLParam:   "ReturnUrl",
		URLs:             urls,
		Session:          session,
		Logger:           defLogger{},
	}
}

// IsAPIRequest tests the store relative path against the API prefixes
func (p *ChallengePolicy) IsAPIRequest(c *fiber.Ctx) bool {
	path := c.Path() + "/"
	for _, prefix := range p.APIPrefixes {
		if strings.HasPrefix(path, strings.TrimSuffix(prefix, "/")+"/") {
			return true
		}
	}
	return false
}

// Challenge handles unauthenticated access
func (p *ChallengePolicy) Challenge(c *fiber.Ctx) error {
	if p.IsAPIRequest(c) {
		return c.SendStatus(http.StatusUnauthorized)
	}
	if p.Session != nil {
		p.Session.SetRedirect(c)
	}
	return p.redirect(c, p.LoginPath)
}

// Forbid handles access denied
func (p *ChallengePolicy) Forbid(c *fiber.Ctx) error {
	if p.IsAPIRequest(c) {
		return c.SendStatus(http.StatusForbidden)
	}
	return p.redirect(c, p.AccessDeniedPath)
}

// RedirectURI is the default challenge location with its path replaced
// by the store and language qualified equivalent.
func (p *ChallengePolicy) RedirectURI(c *fiber.Ctx, path string) string {
	target := &url.URL{Path: path}
	target.RawQuery = url.Values{p.ReturnURLParam: {c.OriginalURL()}}.Encode()

	store, language := storefront.FromCtx(c)
	target.Path = p.URLs.BuildURL(store, language, target.Path)

	return target.String()
}

func (p *ChallengePolicy) redirect(c *fiber.Ctx, path string) error {
	location := p.RedirectURI(c, path)

	p.Logger.Debug("challenge: %s %s redirected to %s", c.Method(), c.OriginalURL(), location)

	statusCode := http.StatusSeeOther
	if c.Method() == fiber.MethodGet {
		statusCode = http.StatusFound
	}
	return c.Redirect(location, statusCode)
}

// RequireAuthenticated trips the challenge for anonymous callers
func (p *ChallengePolicy) RequireAuthenticated() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if _, ok := CurrentUser(c); !ok {
			return p.Challenge(c)
		}
		return c.Next()
	}
}

// RequirePermission trips the challenge for anonymous callers and
// forbids callers without permission.
func (p *ChallengePolicy) RequirePermission(permission string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		user, ok := CurrentUser(c)
		if !ok {
			return p.Challenge(c)
		}
		if !user.HasRole(RoleAdministrator) && !user.HasPermission(permission) {
			return p.Forbid(c)
		}
		return c.Next()
	}
}

// ErrorHandler routes fiber 401 and 403 errors through the policy
func (p *ChallengePolicy) ErrorHandler(next fiber.ErrorHandler) fiber.ErrorHandler {
	if next == nil {
		next = fiber.DefaultErrorHandler
	}
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			switch fe.Code {
			case http.StatusUnauthorized:
				return p.Challenge(c)
			case http.StatusForbidden:
				return p.Forbid(c)
			}
		}
		return next(c, err)
	}
}
