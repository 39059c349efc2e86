package auth

import (
	"context"
	"errors"
	"net/http"
)

// UnknownFirstName is used when no provider claim carries a first name
const UnknownFirstName = "unknown"

// ExternalUsername is the username provisioned for a provider identity
func ExternalUsername(provider, providerKey string) string {
	return provider + "--" + providerKey
}

// ExternalLogin starts the provider challenge
func (o *Orchestrator) ExternalLogin(ctx context.Context, rc RequestContext, provider, returnURL string) Outcome {
	form := NewForm(LoginPayload{ReturnURL: returnURL})

	if o.external == nil {
		o.logger.Error("external login: %v", ErrProviderNotConfigured)
		form.AddError(FormErrExternalLoginFailed, describe(FormErrExternalLoginFailed))
		return o.record("external-login", RenderView(ViewLogin, form))
	}

	callback := o.absoluteURL(rc, o.paths.ExternalLoginCallback, nil)
	location, err := o.external.Challenge(ctx, provider, callback, o.SanitizeReturnURL(rc, returnURL))
	if err != nil {
		o.logger.Error("external login: challenge %s: %v", provider, err)
		form.AddError(FormErrExternalLoginFailed, describe(FormErrExternalLoginFailed))
		return o.record("external-login", RenderView(ViewLogin, form))
	}

	return o.record("external-login", RedirectTo(location))
}

// ExternalLoginCallback signs in by an existing link, links the identity to
// the authenticated caller, or provisions a new account for anonymous callers.
func (o *Orchestrator) ExternalLoginCallback(ctx context.Context, rc RequestContext, code, state string) Outcome {
	form := NewForm(nil)

	if o.external == nil {
		form.AddError(FormErrExternalLoginFailed, describe(FormErrExternalLoginFailed))
		return o.record("external-callback", RenderView(ViewLogin, form))
	}

	info, returnURL, err := o.external.Complete(ctx, code, state)
	if err != nil || info == nil {
		o.logger.Warn("external callback: no login info: %v", err)
		form.AddError(FormErrExternalLoginFailed, describe(FormErrExternalLoginFailed))
		return o.record("external-callback", RenderView(ViewLogin, form))
	}
	form.Model = LoginPayload{ReturnURL: returnURL}

	outcome, err := o.store.ExternalLoginSignIn(ctx, info.Provider, info.ProviderKey, false)
	if err != nil {
		return o.record("external-callback", o.unexpected("external-callback", ViewLogin, form, err))
	}

	switch outcome.Kind {
	case LoginLockedOut:
		return o.record("external-callback", RenderView(ViewLockedOut, form))
	case LoginRequiresTwoFactor:
		return o.record("external-callback", RedirectTo(o.StoreURL(rc, o.paths.TwoFactor)))
	case LoginRejected:
		form.AddError(FormErrUserRejected, outcome.Reason)
		return o.record("external-callback", RenderView(ViewLogin, form).WithStatus(http.StatusForbidden))
	case LoginFailed:
		if err := o.linkOrProvision(ctx, rc, *info); err != nil {
			if _, ok := AsStoreErrors(err); !ok {
				return o.record("external-callback", o.unexpected("external-callback", ViewLogin, form, err))
			}
			form.AddStoreErrors(err)
			return o.record("external-callback", RenderView(ViewLogin, form))
		}
	}

	user, err := o.store.FindByLogin(ctx, info.Provider, info.ProviderKey)
	if err != nil {
		return o.record("external-callback", o.unexpected("external-callback", ViewLogin, form, err))
	}

	if rule, ok := CheckEligibility(o.rules, user, rc.Store); !ok {
		o.logger.Info("external callback: %s refused by %s in store %s", user.Username, rule.Name, rc.Store.ID)
		form.AddError(rule.Code, describe(rule.Code))
		return o.record("external-callback", RenderView(ViewLogin, form).WithStatus(http.StatusForbidden))
	}

	if err := rc.Session.SignIn(ctx, user, false); err != nil {
		return o.record("external-callback", o.unexpected("external-callback", ViewLogin, form, err))
	}

	o.publishLogin(ctx, rc, user, *info)

	return o.record("external-callback", RedirectTo(o.SanitizeReturnURL(rc, returnURL)))
}

func (o *Orchestrator) linkOrProvision(ctx context.Context, rc RequestContext, info ExternalLoginInfo) error {
	if rc.IsAuthenticated() {
		return o.store.AddExternalLogin(ctx, rc.User, info)
	}

	firstName := info.FirstClaim(o.firstNameClaims...)
	if firstName == "" {
		firstName = UnknownFirstName
	}

	email := info.FindClaim(ClaimEmail)
	user := &User{
		ID:        o.newUserID(email),
		Username:  ExternalUsername(info.Provider, info.ProviderKey),
		Email:     email,
		FirstName: firstName,
		LastName:  info.FirstClaim(o.lastNameClaims...),
		FullName:  info.FindClaim(ClaimName),
		StoreID:   rc.Store.ID,
		Status:    UserStatusActive,
	}

	if creator, ok := o.store.(ExternalAccountCreator); ok {
		_, err := creator.CreateUserWithLogin(ctx, user, info)
		return err
	}

	created, err := o.store.CreateUser(ctx, user, "")
	if err != nil {
		return err
	}
	if created == nil {
		return errors.New("credential store returned no user")
	}

	if err := o.store.AddExternalLogin(ctx, created, info); err != nil {
		o.logger.Error("external login: %s created without its %s link: %v", created.Username, info.Provider, err)
		return err
	}
	return nil
}
