package auth

import (
	"context"
	"net/http"
	"net/url"
)

func (r LoginPayload) redacted() LoginPayload {
	r.Password = ""
	return r
}

// ShowLogin renders the login form
func (o *Orchestrator) ShowLogin(_ context.Context, _ RequestContext, returnURL string) Outcome {
	return RenderView(ViewLogin, NewForm(LoginPayload{ReturnURL: returnURL}))
}

// Login verifies local credentials, gates the session on eligibility and
// signs the user in. No session is issued before every gate passes.
func (o *Orchestrator) Login(ctx context.Context, rc RequestContext, in LoginPayload) Outcome {
	in.Normalize()
	form := NewForm(in.redacted())

	if err := in.Validate(); err != nil {
		form.AddValidationErrors(err)
		return o.record("login", RenderView(ViewLogin, form))
	}

	outcome, err := o.store.PasswordSignIn(ctx, in.Username, in.Password, true)
	if err != nil {
		return o.record("login", o.unexpected("login", ViewLogin, form, err))
	}

	switch outcome.Kind {
	case LoginSucceeded:
		return o.record("login", o.completeLogin(ctx, rc, in, form))
	case LoginLockedOut:
		return o.record("login", RenderView(ViewLockedOut, form))
	case LoginRequiresTwoFactor:
		q := url.Values{"rememberMe": {boolString(in.RememberMe)}}
		if in.ReturnURL != "" {
			q.Set("returnUrl", o.SanitizeReturnURL(rc, in.ReturnURL))
		}
		return o.record("login", RedirectTo(o.StoreURL(rc, o.paths.TwoFactor)+"?"+q.Encode()))
	case LoginRejected:
		desc := describe(FormErrUserRejected)
		if outcome.Reason != "" {
			desc = outcome.Reason
		}
		form.AddError(FormErrUserRejected, desc)
		return o.record("login", RenderView(ViewLogin, form).WithStatus(http.StatusForbidden))
	default:
		form.AddError(FormErrLoginFailed, describe(FormErrLoginFailed))
		return o.record("login", RenderView(ViewLogin, form))
	}
}

func (o *Orchestrator) completeLogin(ctx context.Context, rc RequestContext, in LoginPayload, form *Form) Outcome {
	user, err := o.store.FindByName(ctx, in.Username)
	if err != nil {
		return o.unexpected("login", ViewLogin, form, err)
	}

	if rule, ok := CheckEligibility(o.rules, user, rc.Store); !ok {
		o.logger.Info("login: %s refused by %s in store %s", user.Username, rule.Name, rc.Store.ID)
		form.AddError(rule.Code, describe(rule.Code))
		return RenderView(ViewLogin, form).WithStatus(http.StatusForbidden)
	}

	if err := rc.Session.SignIn(ctx, user, in.RememberMe); err != nil {
		return o.unexpected("login", ViewLogin, form, err)
	}

	o.publishLogin(ctx, rc, user, in.redacted())

	return RedirectTo(o.SanitizeReturnURL(rc, in.ReturnURL))
}

// Logout ends the session and sends the caller to the store home page
func (o *Orchestrator) Logout(ctx context.Context, rc RequestContext) Outcome {
	if err := rc.Session.SignOut(ctx); err != nil {
		o.logger.Error("logout: %v", err)
	}
	return o.record("logout", RedirectTo(o.StoreURL(rc, o.paths.Home)))
}

func boolString(b bool) string {
	if b {
		return "true"
	}
	return "false"
}
