package auth

import (
	"context"
)

func (r InvitationPayload) redacted() InvitationPayload {
	r.Password = ""
	return r
}

// ShowInvitation validates the invitation link before any form is shown.
// Failures are terminal and render the error view.
func (o *Orchestrator) ShowInvitation(ctx context.Context, rc RequestContext, q InvitationQuery) Outcome {
	form := NewForm(q)

	fail := func(code FormErrorCode) Outcome {
		form.AddError(code, describe(code))
		return o.record("invitation", RenderView(ViewError, form))
	}

	if q.Token == "" || q.Email == "" {
		return fail(FormErrInvalidURL)
	}

	user, err := o.store.FindByEmail(ctx, q.Email)
	if err != nil {
		if IsNotFound(err) {
			return fail(FormErrUserNotFound)
		}
		return o.record("invitation", o.unexpected("invitation", ViewError, form, err))
	}

	if user.HasPassword() {
		return fail(FormErrInvitationAlreadyUsed)
	}

	ok, err := o.store.VerifyToken(ctx, user, PurposePasswordReset, q.Token)
	if err != nil {
		return o.record("invitation", o.unexpected("invitation", ViewError, form, err))
	}
	if !ok {
		return fail(FormErrInvalidToken)
	}

	model := InvitationPayload{
		Email:          user.Email,
		Token:          q.Token,
		OrganizationID: q.OrganizationID,
		Username:       user.Username,
		FirstName:      user.FirstName,
		LastName:       user.LastName,
	}
	if model.OrganizationID == "" {
		model.OrganizationID = user.OrganizationID
	}

	return o.record("invitation", RenderView(ViewConfirmInvitation, NewForm(model)))
}

// AcceptInvitation completes the profile, then sets the password through
// the invitation token. The token is only consumed once the profile is
// accepted so every failure leaves the invitation usable.
func (o *Orchestrator) AcceptInvitation(ctx context.Context, rc RequestContext, in InvitationPayload) Outcome {
	form := NewForm(in.redacted())

	if err := in.Validate(); err != nil {
		form.AddValidationErrors(err)
		return o.record("invitation", RenderView(ViewConfirmInvitation, form))
	}

	user, err := o.store.FindByEmail(ctx, in.Email)
	if err != nil {
		if IsNotFound(err) {
			form.AddError(FormErrUserNotFound, describe(FormErrUserNotFound))
			return o.record("invitation", RenderView(ViewConfirmInvitation, form))
		}
		return o.record("invitation", o.unexpected("invitation", ViewConfirmInvitation, form, err))
	}

	if user.HasPassword() {
		form.AddError(FormErrInvitationAlreadyUsed, describe(FormErrInvitationAlreadyUsed))
		return o.record("invitation", RenderView(ViewConfirmInvitation, form))
	}

	ok, err := o.store.VerifyToken(ctx, user, PurposePasswordReset, in.Token)
	if err != nil {
		return o.record("invitation", o.unexpected("invitation", ViewConfirmInvitation, form, err))
	}
	if !ok {
		form.AddError(FormErrInvalidToken, describe(FormErrInvalidToken))
		return o.record("invitation", RenderView(ViewConfirmInvitation, form))
	}

	// profile first, username clashes must not burn the token
	user.Username = in.Username
	user.FirstName = in.FirstName
	user.LastName = in.LastName
	if in.OrganizationID != "" {
		user.OrganizationID = in.OrganizationID
	}
	if err := o.store.UpdateUser(ctx, user); err != nil {
		form.AddStoreErrors(err)
		return o.record("invitation", RenderView(ViewConfirmInvitation, form))
	}

	if err := o.store.ResetPassword(ctx, user, in.Token, in.Password); err != nil {
		form.AddStoreErrors(err)
		return o.record("invitation", RenderView(ViewConfirmInvitation, form))
	}

	// the reset rotated the stamp, reload before activating
	user, err = o.store.FindByID(ctx, user.ID.String())
	if err != nil {
		return o.record("invitation", o.unexpected("invitation", ViewConfirmInvitation, form, err))
	}
	user.Status = UserStatusActive
	user.EmailConfirmed = true
	if err := o.store.UpdateUser(ctx, user); err != nil {
		return o.record("invitation", o.unexpected("invitation", ViewConfirmInvitation, form, err))
	}

	o.publishRegistered(ctx, rc, user, in.redacted())

	if err := rc.Session.SignIn(ctx, user, false); err != nil {
		return o.record("invitation", o.unexpected("invitation", ViewConfirmInvitation, form, err))
	}

	o.publishLogin(ctx, rc, user, in.redacted())

	return o.record("invitation", RedirectTo(o.StoreURL(rc, o.paths.Account)))
}
