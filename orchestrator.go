package auth

import (
	"context"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goliatone/go-storefront-auth/storefront"
)

// Views rendered by the account flows
const (
	ViewRegister                   = "register"
	ViewLogin                      = "login"
	ViewLockedOut                  = "lockout"
	ViewError                      = "error"
	ViewAccount                    = "account"
	ViewConfirmInvitation          = "confirm_invitation"
	ViewConfirmEmail               = "confirm_email"
	ViewForgotPassword             = "forgot_password"
	ViewForgotPasswordConfirmation = "forgot_password_confirmation"
	ViewForgotPasswordCode         = "forgot_password_code"
	ViewResetPassword              = "reset_password"
	ViewResetPasswordConfirmation  = "reset_password_confirmation"
	ViewForgotUsername             = "forgot_username"
	ViewForgotUsernameConfirmation = "forgot_username_confirmation"
	ViewAccessDenied               = "access_denied"
)

// ResetGateway selects how password reset secrets are delivered
type ResetGateway string

const (
	ResetGatewayEmail ResetGateway = "Email"
	ResetGatewayPhone ResetGateway = "Phone"
)

// Paths are store relative, the URL builder qualifies them
type Paths struct {
	Home                      string
	Account                   string
	Login                     string
	TwoFactor                 string
	ResetPassword             string
	ResetPasswordConfirmation string
	ConfirmEmail              string
	ExternalLoginCallback     string
}

// DefaultPaths returns the account routes
func DefaultPaths() Paths {
	return Paths{
		Home:                      "/",
		Account:                   "/account",
		Login:                     "/account/login",
		TwoFactor:                 "/account/loginwith2fa",
		ResetPassword:             "/account/resetpassword",
		ResetPasswordConfirmation: "/account/resetpassword/confirmation",
		ConfirmEmail:              "/account/confirmemail",
		ExternalLoginCallback:     "/account/externallogincallback",
	}
}

// OutcomeKind tells the transport how to answer
type OutcomeKind int

const (
	OutcomeView OutcomeKind = iota
	OutcomeRedirect
)

// Outcome is the terminal decision of a flow step
type Outcome struct {
	Kind     OutcomeKind
	View     string
	Redirect string
	Status   int
	Form     *Form
	Data     map[string]any
}

// RenderView builds a 200 view outcome
func RenderView(view string, form *Form) Outcome {
	if form == nil {
		form = NewForm(nil)
	}
	return Outcome{Kind: OutcomeView, View: view, Status: http.StatusOK, Form: form}
}

// RedirectTo builds a redirect outcome
func RedirectTo(location string) Outcome {
	return Outcome{Kind: OutcomeRedirect, Redirect: location, Status: http.StatusFound}
}

// WithStatus overrides the response status
func (o Outcome) WithStatus(status int) Outcome {
	o.Status = status
	return o
}

// WithData attaches view data
func (o Outcome) WithData(key string, val any) Outcome {
	if o.Data == nil {
		o.Data = map[string]any{}
	}
	o.Data[key] = val
	return o
}

// IsRedirect reports redirect outcomes
func (o Outcome) IsRedirect() bool {
	return o.Kind == OutcomeRedirect
}

// Orchestrator sequences the credential store, eligibility gates,
// notification gateway and event bus for every account flow. It keeps
// no per request state.
type Orchestrator struct {
	store                 CredentialStore
	gateway               NotificationGateway
	bus                   EventBus
	external              ExternalAuthenticator
	authorizer            ImpersonationAuthorizer
	urls                  storefront.URLBuilder
	recorder              FlowRecorder
	rules                 []EligibilityRule
	paths                 Paths
	resetGateway          ResetGateway
	sendEmailConfirmation bool
	firstNameClaims       []string
	lastNameClaims        []string
	logger                Logger
	now                   func() time.Time
}

// NewOrchestrator creates an orchestrator around a credential store
func NewOrchestrator(store CredentialStore, urls storefront.URLBuilder) *Orchestrator {
	if urls == nil {
		urls = storefront.PathURLBuilder{}
	}
	return &Orchestrator{
		store:           store,
		gateway:         noopGateway{},
		bus:             noopEventBus{},
		authorizer:      PermissionAuthorizer{Permission: PermissionImpersonate},
		urls:            urls,
		recorder:        noopFlowRecorder{},
		rules:           DefaultEligibilityRules(),
		paths:           DefaultPaths(),
		resetGateway:    ResetGatewayEmail,
		firstNameClaims: []string{ClaimGivenName, ClaimName, ClaimNickname},
		lastNameClaims:  []string{ClaimFamilyName},
		logger:          defLogger{},
		now:             time.Now,
	}
}

func (o *Orchestrator) WithNotificationGateway(g NotificationGateway) *Orchestrator {
	o.gateway = normalizeGateway(g)
	return o
}

func (o *Orchestrator) WithEventBus(b EventBus) *Orchestrator {
	o.bus = normalizeEventBus(b)
	return o
}

func (o *Orchestrator) WithExternalAuthenticator(e ExternalAuthenticator) *Orchestrator {
	o.external = e
	return o
}

func (o *Orchestrator) WithImpersonationAuthorizer(a ImpersonationAuthorizer) *Orchestrator {
	if a != nil {
		o.authorizer = a
	}
	return o
}

func (o *Orchestrator) WithFlowRecorder(r FlowRecorder) *Orchestrator {
	if r == nil {
		r = noopFlowRecorder{}
	}
	o.recorder = r
	return o
}

func (o *Orchestrator) WithEligibilityRules(rules ...EligibilityRule) *Orchestrator {
	o.rules = rules
	return o
}

func (o *Orchestrator) WithPaths(p Paths) *Orchestrator {
	o.paths = p
	return o
}

func (o *Orchestrator) WithResetGateway(g ResetGateway) *Orchestrator {
	switch g {
	case ResetGatewayPhone:
		o.resetGateway = ResetGatewayPhone
	default:
		o.resetGateway = ResetGatewayEmail
	}
	return o
}

// WithEmailConfirmation sends the confirmation link after registration
func (o *Orchestrator) WithEmailConfirmation(enabled bool) *Orchestrator {
	o.sendEmailConfirmation = enabled
	return o
}

// WithFirstNameClaims sets the ordered fallback for provider first names
func (o *Orchestrator) WithFirstNameClaims(claimTypes ...string) *Orchestrator {
	o.firstNameClaims = claimTypes
	return o
}

func (o *Orchestrator) WithLogger(logger Logger) *Orchestrator {
	if logger != nil {
		o.logger = logger
	}
	return o
}

func (o *Orchestrator) WithClock(now func() time.Time) *Orchestrator {
	if now != nil {
		o.now = now
	}
	return o
}

// Paths exposes the configured account routes
func (o *Orchestrator) Paths() Paths {
	return o.paths
}

// StoreURL qualifies a store relative path with the store and language segments
func (o *Orchestrator) StoreURL(rc RequestContext, path string) string {
	return o.urls.BuildURL(rc.Store, rc.Language, path)
}

// absoluteURL builds a callback link on the current store host
func (o *Orchestrator) absoluteURL(rc RequestContext, path string, query url.Values) string {
	base := strings.TrimRight(rc.BaseURL, "/")
	if rc.Store.Host != "" {
		scheme := "https"
		if u, err := url.Parse(rc.BaseURL); err == nil && u.Scheme != "" {
			scheme = u.Scheme
		}
		base = scheme + "://" + rc.Store.Host
	}

	link := base + o.StoreURL(rc, path)
	if len(query) > 0 {
		link += "?" + query.Encode()
	}
	return link
}

// SanitizeReturnURL keeps only local paths
func (o *Orchestrator) SanitizeReturnURL(rc RequestContext, returnURL string) string {
	home := o.StoreURL(rc, o.paths.Home)
	if returnURL == "" {
		return home
	}

	u, err := url.Parse(returnURL)
	if err != nil || u.IsAbs() || u.Host != "" || !strings.HasPrefix(u.Path, "/") || strings.HasPrefix(returnURL, "//") || strings.Contains(returnURL, "\\") {
		return home
	}
	return returnURL
}

func (o *Orchestrator) publish(ctx context.Context, event DomainEvent) {
	o.bus.Publish(ctx, event)
}

func (o *Orchestrator) publishRegistered(ctx context.Context, rc RequestContext, user *User, source any) {
	o.publish(ctx, UserRegisteredEvent{
		Context: newEventContext(rc, o.now()),
		User:    *user,
		Source:  source,
	})
}

func (o *Orchestrator) publishLogin(ctx context.Context, rc RequestContext, user *User, source any) {
	o.publish(ctx, UserLoginEvent{
		Context: newEventContext(rc, o.now()),
		User:    *user,
		Source:  source,
	})
}

// send delivers n and recovers gateway panics into a failed result.
func (o *Orchestrator) send(ctx context.Context, rc RequestContext, n Notification) (res NotificationResult) {
	n.StoreID = rc.Store.ID
	n.StoreName = rc.Store.Name
	n.Language = rc.Language

	defer func() {
		if r := recover(); r != nil {
			o.logger.Error("notification %s to %s panicked: %v", n.Type, n.Recipient, r)
			res = NotificationResult{ErrorMessage: "notification gateway failure"}
		}
	}()

	res = o.gateway.Send(ctx, n)
	if !res.IsSuccess && res.ErrorMessage == "" {
		res.ErrorMessage = "notification gateway failure"
	}
	return res
}

func (o *Orchestrator) record(flow string, out Outcome) Outcome {
	label := "ok"
	switch {
	case out.Form.HasErrors():
		label = out.Form.Errors[0].Code.String()
	case out.IsRedirect():
		label = "redirect"
	}
	o.recorder.RecordFlow(flow, label)
	return out
}

// resolveByEmailOrName looks up by email then by username, first match wins
func (o *Orchestrator) resolveByEmailOrName(ctx context.Context, key string) (*User, error) {
	user, err := o.store.FindByEmail(ctx, key)
	if err == nil {
		return user, nil
	}
	if !IsNotFound(err) {
		return nil, err
	}
	return o.store.FindByName(ctx, key)
}

// resolveByNameOrEmail looks up by username then by email, first match wins
func (o *Orchestrator) resolveByNameOrEmail(ctx context.Context, username, email string) (*User, error) {
	if username != "" {
		user, err := o.store.FindByName(ctx, username)
		if err == nil {
			return user, nil
		}
		if !IsNotFound(err) {
			return nil, err
		}
	}
	if email == "" {
		return nil, ErrUserNotFound
	}
	return o.store.FindByEmail(ctx, email)
}

func (o *Orchestrator) unexpected(flow string, view string, form *Form, err error) Outcome {
	o.logger.Error("%s: unexpected error: %v", flow, err)
	form.AddError(FormErrUnknown, "an unexpected error occurred")
	return RenderView(view, form)
}

func (c FormErrorCode) String() string { return string(c) }

func describe(code FormErrorCode) string {
	return strings.ReplaceAll(string(code), "-", " ")
}
