package auth

import (
	"context"
	"net/url"
	"strings"
)

func (r ResetPasswordPayload) redacted() ResetPasswordPayload {
	r.Password = ""
	r.ConfirmPassword = ""
	return r
}

// ShowForgotPassword renders the reset request form
func (o *Orchestrator) ShowForgotPassword(_ context.Context, _ RequestContext) Outcome {
	return RenderView(ViewForgotPassword, NewForm(ForgotPasswordPayload{}))
}

// ForgotPassword issues a reset secret through the configured gateway.
// Unknown accounts yield operation-failed whatever lookup missed.
func (o *Orchestrator) ForgotPassword(ctx context.Context, rc RequestContext, in ForgotPasswordPayload) Outcome {
	in.Email = strings.TrimSpace(in.Email)
	form := NewForm(in)

	if err := in.Validate(); err != nil {
		form.AddValidationErrors(err)
		return o.record("forgot-password", RenderView(ViewForgotPassword, form))
	}

	user, err := o.resolveByEmailOrName(ctx, in.Email)
	if err != nil {
		if !IsNotFound(err) {
			o.logger.Error("forgot password: lookup: %v", err)
		}
		form.AddError(FormErrOperationFailed, describe(FormErrOperationFailed))
		return o.record("forgot-password", RenderView(ViewForgotPassword, form))
	}

	if o.resetGateway == ResetGatewayPhone {
		return o.record("forgot-password", o.forgotPasswordByPhone(ctx, rc, user, form))
	}
	return o.record("forgot-password", o.forgotPasswordByEmail(ctx, rc, user, form))
}

func (o *Orchestrator) forgotPasswordByEmail(ctx context.Context, rc RequestContext, user *User, form *Form) Outcome {
	if user.Email == "" {
		form.AddError(FormErrOperationFailed, describe(FormErrOperationFailed))
		return RenderView(ViewForgotPassword, form)
	}

	token, err := o.store.GenerateToken(ctx, user, PurposePasswordReset)
	if err != nil {
		return o.unexpected("forgot-password", ViewForgotPassword, form, err)
	}

	callback := o.absoluteURL(rc, o.paths.ResetPassword, url.Values{
		"token": {token},
		"email": {user.Email},
	})

	res := o.send(ctx, rc, Notification{
		Type:      NotificationResetPassword,
		Channel:   ChannelEmail,
		Recipient: user.Email,
		Data: map[string]any{
			"username":     user.Username,
			"first_name":   user.FirstName,
			"callback_url": callback,
		},
	})
	if !res.IsSuccess {
		form.AddError(FormErrGatewayFailure, res.ErrorMessage)
		return RenderView(ViewForgotPassword, form)
	}

	return RenderView(ViewForgotPasswordConfirmation, form)
}

func (o *Orchestrator) forgotPasswordByPhone(ctx context.Context, rc RequestContext, user *User, form *Form) Outcome {
	if user.PhoneNumber == "" {
		form.AddError(FormErrOperationFailed, describe(FormErrOperationFailed))
		return RenderView(ViewForgotPassword, form)
	}

	code, err := o.store.GenerateToken(ctx, user, PurposePasswordResetPhone)
	if err != nil {
		return o.unexpected("forgot-password", ViewForgotPassword, form, err)
	}

	res := o.send(ctx, rc, Notification{
		Type:      NotificationResetPasswordSMS,
		Channel:   ChannelSMS,
		Recipient: user.PhoneNumber,
		Data: map[string]any{
			"username": user.Username,
			"code":     code,
		},
	})
	if !res.IsSuccess {
		form.AddError(FormErrGatewayFailure, res.ErrorMessage)
		return RenderView(ViewForgotPassword, form)
	}

	return RenderView(ViewForgotPasswordCode, NewForm(ForgotPasswordCodePayload{UserID: user.ID.String()}))
}

// VerifyForgotPasswordCode trades a valid SMS code for a reset token and
// forwards to the password entry view.
func (o *Orchestrator) VerifyForgotPasswordCode(ctx context.Context, rc RequestContext, in ForgotPasswordCodePayload) Outcome {
	in.Code = strings.TrimSpace(in.Code)
	form := NewForm(ForgotPasswordCodePayload{UserID: in.UserID})

	if err := in.Validate(); err != nil {
		form.AddValidationErrors(err)
		return o.record("forgot-password-code", RenderView(ViewForgotPasswordCode, form))
	}

	user, err := o.store.FindByID(ctx, in.UserID)
	if err != nil {
		if !IsNotFound(err) {
			o.logger.Error("forgot password code: lookup: %v", err)
		}
		form.AddError(FormErrOperationFailed, describe(FormErrOperationFailed))
		return o.record("forgot-password-code", RenderView(ViewForgotPasswordCode, form))
	}
	if user.IsLockedOut(o.now()) {
		return o.record("forgot-password-code", RenderView(ViewLockedOut, form))
	}

	// wrong codes count towards the store lockout
	ok, err := o.store.VerifyToken(ctx, user, PurposePasswordResetPhone, in.Code)
	if err != nil {
		return o.record("forgot-password-code", o.unexpected("forgot-password-code", ViewForgotPasswordCode, form, err))
	}
	if !ok {
		if current, err := o.store.FindByID(ctx, in.UserID); err == nil && current.IsLockedOut(o.now()) {
			o.logger.Warn("forgot password code: %s locked out", user.Username)
			return o.record("forgot-password-code", RenderView(ViewLockedOut, form))
		}
		form.AddError(FormErrInvalidToken, describe(FormErrInvalidToken))
		return o.record("forgot-password-code", RenderView(ViewForgotPasswordCode, form))
	}

	token, err := o.store.GenerateToken(ctx, user, PurposePasswordReset)
	if err != nil {
		return o.record("forgot-password-code", o.unexpected("forgot-password-code", ViewForgotPasswordCode, form, err))
	}

	return o.record("forgot-password-code", RenderView(ViewResetPassword, NewForm(ResetPasswordPayload{
		Token:    token,
		Email:    user.Email,
		Username: user.Username,
	})))
}

// ShowResetPassword renders the password entry view for a reset link
func (o *Orchestrator) ShowResetPassword(_ context.Context, _ RequestContext, in ResetPasswordPayload) Outcome {
	form := NewForm(in.redacted())
	if in.Token == "" {
		form.AddError(FormErrInvalidURL, describe(FormErrInvalidURL))
		return o.record("reset-password", RenderView(ViewError, form))
	}
	return RenderView(ViewResetPassword, form)
}

// ResetPassword sets a new password with the held token. Unknown accounts
// are sent to the neutral confirmation page.
func (o *Orchestrator) ResetPassword(ctx context.Context, rc RequestContext, in ResetPasswordPayload) Outcome {
	in.Email = strings.TrimSpace(in.Email)
	in.Username = strings.TrimSpace(in.Username)
	form := NewForm(in.redacted())

	if err := in.Validate(); err != nil {
		form.AddValidationErrors(err)
		return o.record("reset-password", RenderView(ViewResetPassword, form))
	}

	if in.Password != in.ConfirmPassword {
		form.AddError(FormErrPasswordsDoNotMatch, describe(FormErrPasswordsDoNotMatch))
		return o.record("reset-password", RenderView(ViewResetPassword, form))
	}

	if in.Username == "" && in.Email == "" {
		form.AddError(FormErrValidation, "username or email is required")
		return o.record("reset-password", RenderView(ViewResetPassword, form))
	}

	user, err := o.resolveByNameOrEmail(ctx, in.Username, in.Email)
	if err != nil {
		if !IsNotFound(err) {
			return o.record("reset-password", o.unexpected("reset-password", ViewResetPassword, form, err))
		}
		return o.record("reset-password", RedirectTo(o.StoreURL(rc, o.paths.ResetPasswordConfirmation)))
	}

	if err := o.store.ResetPassword(ctx, user, in.Token, in.Password); err != nil {
		form.AddStoreErrors(err)
		return o.record("reset-password", RenderView(ViewResetPassword, form))
	}

	return o.record("reset-password", RenderView(ViewResetPasswordConfirmation, NewForm(nil)))
}

// ShowResetPasswordConfirmation is the neutral end of the reset flow
func (o *Orchestrator) ShowResetPasswordConfirmation(_ context.Context, _ RequestContext) Outcome {
	return RenderView(ViewResetPasswordConfirmation, NewForm(nil))
}
