package auth

import (
	"net/http"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-print"

	"github.com/goliatone/go-storefront-auth/storefront"
)

// AccountRoutes are the store relative account endpoints
type AccountRoutes struct {
	Account                   string
	Register                  string
	ConfirmInvitation         string
	ConfirmEmail              string
	Impersonate               string
	Login                     string
	Logout                    string
	ExternalLogin             string
	ExternalLoginCallback     string
	ForgotPassword            string
	ForgotPasswordByCode      string
	ResetPassword             string
	ResetPasswordConfirmation string
	ChangePassword            string
	ForgotUsername            string
	AccessDenied              string
}

// DefaultAccountRoutes returns the storefront account surface
func DefaultAccountRoutes() AccountRoutes {
	return AccountRoutes{
		Account:                   "/account",
		Register:                  "/account/register",
		ConfirmInvitation:         "/account/confirminvitation",
		ConfirmEmail:              "/account/confirmemail",
		Impersonate:               "/account/impersonate/:userId",
		Login:                     "/account/login",
		Logout:                    "/account/logout",
		ExternalLogin:             "/account/externallogin",
		ExternalLoginCallback:     "/account/externallogincallback",
		ForgotPassword:            "/account/forgotpassword",
		ForgotPasswordByCode:      "/account/forgotpasswordbycode",
		ResetPassword:             "/account/resetpassword",
		ResetPasswordConfirmation: "/account/resetpassword/confirmation",
		ChangePassword:            "/account/password",
		ForgotUsername:            "/account/forgotusername",
		AccessDenied:              "/account/accessdenied",
	}
}

// AccountController adapts the orchestrator to fiber
type AccountController struct {
	Orchestrator *Orchestrator
	Session      *SessionManager
	Challenge    *ChallengePolicy
	Routes       AccountRoutes
	// CSRFContextKey is the locals key holding the anti forgery token
	CSRFContextKey string
	Logger         Logger
	Debug          bool
}

// NewAccountController wires the account endpoints
func NewAccountController(o *Orchestrator, session *SessionManager, challenge *ChallengePolicy) *AccountController {
	return &AccountController{
		Orchestrator:   o,
		Session:        session,
		Challenge:      challenge,
		Routes:         DefaultAccountRoutes(),
		CSRFContextKey: "csrf",
		Logger:         defLogger{},
	}
}

// Register mounts the routes. csrf guards every POST.
func (a *AccountController) Register(r fiber.Router, csrf fiber.Handler) {
	if csrf == nil {
		csrf = func(c *fiber.Ctx) error { return c.Next() }
	}
	authenticated := a.Challenge.RequireAuthenticated()

	r.Get(a.Routes.Account, authenticated, a.AccountShow).Name("account.get")

	r.Get(a.Routes.Register, a.RegisterShow).Name("register.get")
	r.Post(a.Routes.Register, csrf, a.RegisterPost).Name("register.post")

	r.Get(a.Routes.ConfirmInvitation, a.InvitationShow).Name("invitation.get")
	r.Post(a.Routes.ConfirmInvitation, csrf, a.InvitationPost).Name("invitation.post")

	r.Get(a.Routes.ConfirmEmail, a.ConfirmEmail).Name("confirm-email.get")

	r.Get(a.Routes.Impersonate, authenticated, a.Impersonate).Name("impersonate.get")

	r.Get(a.Routes.Login, a.LoginShow).Name("sign-in.get")
	r.Post(a.Routes.Login, csrf, a.LoginPost).Name("sign-in.post")
	r.Get(a.Routes.Logout, a.Logout).Name("sign-out.get")

	r.Get(a.Routes.ExternalLogin, a.ExternalLogin).Name("external-login.get")
	r.Get(a.Routes.ExternalLoginCallback, a.ExternalLoginCallback).Name("external-login-callback.get")

	r.Get(a.Routes.ForgotPassword, a.ForgotPasswordShow).Name("pwd-forgot.get")
	r.Post(a.Routes.ForgotPassword, csrf, a.ForgotPasswordPost).Name("pwd-forgot.post")
	r.Post(a.Routes.ForgotPasswordByCode, csrf, a.ForgotPasswordByCode).Name("pwd-forgot-code.post")

	r.Get(a.Routes.ResetPasswordConfirmation, a.ResetPasswordConfirmation).Name("pwd-reset-done.get")
	r.Get(a.Routes.ResetPassword, a.ResetPasswordShow).Name("pwd-reset.get")
	r.Post(a.Routes.ResetPassword, csrf, a.ResetPasswordPost).Name("pwd-reset.post")

	r.Post(a.Routes.ChangePassword, authenticated, csrf, a.ChangePassword).Name("pwd-change.post")

	r.Get(a.Routes.ForgotUsername, a.ForgotUsernameShow).Name("username-forgot.get")
	r.Post(a.Routes.ForgotUsername, csrf, a.ForgotUsernamePost).Name("username-forgot.post")

	r.Get(a.Routes.AccessDenied, a.AccessDenied).Name("access-denied.get")
}

// RequestContext builds the explicit flow context of c
func (a *AccountController) RequestContext(c *fiber.Ctx) RequestContext {
	store, language := storefront.FromCtx(c)
	user, _ := CurrentUser(c)
	rc := RequestContext{
		Store:    store,
		Language: language,
		BaseURL:  c.BaseURL(),
		User:     user,
		Session:  a.Session.Writer(c),
	}
	if claims, ok := CurrentClaims(c); ok {
		rc.Persistent = claims.Persistent
	}
	return rc
}

func (a *AccountController) AccountShow(c *fiber.Ctx) error {
	changed := c.QueryBool("passwordChanged")
	return a.respond(c, a.Orchestrator.Account(c.UserContext(), a.RequestContext(c), changed))
}

func (a *AccountController) RegisterShow(c *fiber.Ctx) error {
	return a.respond(c, a.Orchestrator.ShowRegister(c.UserContext(), a.RequestContext(c)))
}

func (a *AccountController) RegisterPost(c *fiber.Ctx) error {
	payload := new(RegisterPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	a.dump("REGISTER", payload.redacted())
	return a.respond(c, a.Orchestrator.Register(c.UserContext(), a.RequestContext(c), *payload))
}

func (a *AccountController) InvitationShow(c *fiber.Ctx) error {
	q := new(InvitationQuery)
	if err := c.QueryParser(q); err != nil {
		return a.badRequest(c, err)
	}
	return a.respond(c, a.Orchestrator.ShowInvitation(c.UserContext(), a.RequestContext(c), *q))
}

func (a *AccountController) InvitationPost(c *fiber.Ctx) error {
	payload := new(InvitationPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	a.dump("INVITATION", payload.redacted())
	return a.respond(c, a.Orchestrator.AcceptInvitation(c.UserContext(), a.RequestContext(c), *payload))
}

func (a *AccountController) ConfirmEmail(c *fiber.Ctx) error {
	q := new(ConfirmEmailQuery)
	if err := c.QueryParser(q); err != nil {
		return a.badRequest(c, err)
	}
	return a.respond(c, a.Orchestrator.ConfirmEmail(c.UserContext(), a.RequestContext(c), *q))
}

func (a *AccountController) Impersonate(c *fiber.Ctx) error {
	return a.respond(c, a.Orchestrator.Impersonate(c.UserContext(), a.RequestContext(c), c.Params("userId")))
}

func (a *AccountController) LoginShow(c *fiber.Ctx) error {
	returnURL := c.Query("ReturnUrl", c.Query("returnUrl"))
	return a.respond(c, a.Orchestrator.ShowLogin(c.UserContext(), a.RequestContext(c), returnURL))
}

func (a *AccountController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	if payload.ReturnURL == "" {
		payload.ReturnURL = a.Session.GetRedirect(c, "")
	}
	a.dump("LOGIN", payload.redacted())
	return a.respond(c, a.Orchestrator.Login(c.UserContext(), a.RequestContext(c), *payload))
}

func (a *AccountController) Logout(c *fiber.Ctx) error {
	return a.respond(c, a.Orchestrator.Logout(c.UserContext(), a.RequestContext(c)))
}

func (a *AccountController) ExternalLogin(c *fiber.Ctx) error {
	provider := c.Query("provider", c.Query("authType"))
	returnURL := c.Query("returnUrl", c.Query("ReturnUrl"))
	return a.respond(c, a.Orchestrator.ExternalLogin(c.UserContext(), a.RequestContext(c), provider, returnURL))
}

func (a *AccountController) ExternalLoginCallback(c *fiber.Ctx) error {
	if e := c.Query("error"); e != "" {
		a.Logger.Warn("external callback: provider returned %s: %s", e, c.Query("error_description"))
	}
	return a.respond(c, a.Orchestrator.ExternalLoginCallback(c.UserContext(), a.RequestContext(c), c.Query("code"), c.Query("state")))
}

func (a *AccountController) ForgotPasswordShow(c *fiber.Ctx) error {
	return a.respond(c, a.Orchestrator.ShowForgotPassword(c.UserContext(), a.RequestContext(c)))
}

func (a *AccountController) ForgotPasswordPost(c *fiber.Ctx) error {
	payload := new(ForgotPasswordPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	return a.respond(c, a.Orchestrator.ForgotPassword(c.UserContext(), a.RequestContext(c), *payload))
}

func (a *AccountController) ForgotPasswordByCode(c *fiber.Ctx) error {
	payload := new(ForgotPasswordCodePayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	return a.respond(c, a.Orchestrator.VerifyForgotPasswordCode(c.UserContext(), a.RequestContext(c), *payload))
}

func (a *AccountController) ResetPasswordShow(c *fiber.Ctx) error {
	q := new(ResetPasswordPayload)
	if err := c.QueryParser(q); err != nil {
		return a.badRequest(c, err)
	}
	return a.respond(c, a.Orchestrator.ShowResetPassword(c.UserContext(), a.RequestContext(c), *q))
}

func (a *AccountController) ResetPasswordPost(c *fiber.Ctx) error {
	payload := new(ResetPasswordPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	return a.respond(c, a.Orchestrator.ResetPassword(c.UserContext(), a.RequestContext(c), *payload))
}

func (a *AccountController) ResetPasswordConfirmation(c *fiber.Ctx) error {
	return a.respond(c, a.Orchestrator.ShowResetPasswordConfirmation(c.UserContext(), a.RequestContext(c)))
}

func (a *AccountController) ChangePassword(c *fiber.Ctx) error {
	payload := new(ChangePasswordPayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	return a.respond(c, a.Orchestrator.ChangePassword(c.UserContext(), a.RequestContext(c), *payload))
}

func (a *AccountController) ForgotUsernameShow(c *fiber.Ctx) error {
	return a.respond(c, a.Orchestrator.ShowForgotUsername(c.UserContext(), a.RequestContext(c)))
}

func (a *AccountController) ForgotUsernamePost(c *fiber.Ctx) error {
	payload := new(ForgotUsernamePayload)
	if err := c.BodyParser(payload); err != nil {
		return a.badRequest(c, err)
	}
	return a.respond(c, a.Orchestrator.ForgotUsername(c.UserContext(), a.RequestContext(c), *payload))
}

func (a *AccountController) AccessDenied(c *fiber.Ctx) error {
	return a.respond(c, RenderView(ViewAccessDenied, nil).WithStatus(http.StatusForbidden))
}

// respond renders outcome as HTML, or JSON when the caller asks for it
func (a *AccountController) respond(c *fiber.Ctx, out Outcome) error {
	if out.IsRedirect() {
		statusCode := http.StatusSeeOther
		if c.Method() == fiber.MethodGet {
			statusCode = http.StatusFound
		}
		return c.Redirect(out.Redirect, statusCode)
	}

	status := out.Status
	if status == 0 {
		status = http.StatusOK
	}

	if wantsJSON(c) {
		return c.Status(status).JSON(fiber.Map{
			"view":   out.View,
			"errors": out.Form.Errors,
			"model":  out.Form.Model,
			"data":   out.Data,
		})
	}

	store, language := storefront.FromCtx(c)
	return c.Status(status).Render(out.View, fiber.Map{
		"form":       out.Form,
		"data":       out.Data,
		"store":      store,
		"language":   language,
		"csrf_token": c.Locals(a.CSRFContextKey),
	})
}

func (a *AccountController) badRequest(c *fiber.Ctx, err error) error {
	a.Logger.Warn("%s %s: bad request: %v", c.Method(), c.Path(), err)
	form := NewForm(nil).AddError(FormErrValidation, "malformed request")
	return a.respond(c, RenderView(ViewError, form).WithStatus(http.StatusBadRequest))
}

func (a *AccountController) dump(label string, payload any) {
	if !a.Debug {
		return
	}
	a.Logger.Debug("======= AUTH %s ======\n%s", label, print.MaybePrettyJSON(payload))
}

func wantsJSON(c *fiber.Ctx) bool {
	return strings.Contains(c.Get(fiber.HeaderAccept), fiber.MIMEApplicationJSON)
}
