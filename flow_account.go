package auth

import (
	"context"
	"net/http"
	"strings"
)

// AccountSummary is shown on the account page
type AccountSummary struct {
	Username       string `json:"username"`
	Email          string `json:"email"`
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	StoreID        string `json:"store_id"`
	EmailConfirmed bool   `json:"email_confirmed"`
	Impersonated   bool   `json:"impersonated"`
	OperatorName   string `json:"operator_name,omitempty"`
}

// Account renders the authenticated account page
func (o *Orchestrator) Account(_ context.Context, rc RequestContext, passwordChanged bool) Outcome {
	if !rc.IsAuthenticated() {
		return RedirectTo(o.StoreURL(rc, o.paths.Login))
	}
	u := rc.User
	return RenderView(ViewAccount, NewForm(ChangePasswordPayload{})).
		WithData("account", AccountSummary{
			Username:       u.Username,
			Email:          u.Email,
			FirstName:      u.FirstName,
			LastName:       u.LastName,
			StoreID:        u.StoreID,
			EmailConfirmed: u.EmailConfirmed,
			Impersonated:   u.IsImpersonated(),
			OperatorName:   u.OperatorName,
		}).
		WithData("password_changed", passwordChanged)
}

// ConfirmEmail consumes an email confirmation link
func (o *Orchestrator) ConfirmEmail(ctx context.Context, _ RequestContext, q ConfirmEmailQuery) Outcome {
	form := NewForm(ConfirmEmailQuery{UserID: q.UserID})

	if q.UserID == "" || q.Code == "" {
		form.AddError(FormErrInvalidURL, describe(FormErrInvalidURL))
		return o.record("confirm-email", RenderView(ViewError, form))
	}

	user, err := o.store.FindByID(ctx, q.UserID)
	if err != nil {
		if !IsNotFound(err) {
			o.logger.Error("confirm email: lookup: %v", err)
		}
		form.AddError(FormErrInvalidURL, describe(FormErrInvalidURL))
		return o.record("confirm-email", RenderView(ViewError, form))
	}

	if err := o.store.ConfirmEmail(ctx, user, q.Code); err != nil {
		form.AddStoreErrors(err)
		return o.record("confirm-email", RenderView(ViewError, form))
	}

	return o.record("confirm-email", RenderView(ViewConfirmEmail, form))
}

// ShowForgotUsername renders the username reminder form
func (o *Orchestrator) ShowForgotUsername(_ context.Context, _ RequestContext) Outcome {
	return RenderView(ViewForgotUsername, NewForm(ForgotUsernamePayload{}))
}

// ForgotUsername mails a reminder when the email is known. The answer is
// the same for known and unknown addresses.
func (o *Orchestrator) ForgotUsername(ctx context.Context, rc RequestContext, in ForgotUsernamePayload) Outcome {
	in.Email = strings.TrimSpace(in.Email)
	form := NewForm(in)

	if err := in.Validate(); err != nil {
		form.AddValidationErrors(err)
		return o.record("forgot-username", RenderView(ViewForgotUsername, form))
	}

	user, err := o.store.FindByEmail(ctx, in.Email)
	switch {
	case err == nil:
		res := o.send(ctx, rc, Notification{
			Type:      NotificationUsernameReminder,
			Channel:   ChannelEmail,
			Recipient: user.Email,
			Data: map[string]any{
				"username":   user.Username,
				"first_name": user.FirstName,
			},
		})
		if !res.IsSuccess {
			o.logger.Warn("forgot username: reminder for %s failed: %s", user.Username, res.ErrorMessage)
		}
	case !IsNotFound(err):
		o.logger.Error("forgot username: lookup: %v", err)
	}

	return o.record("forgot-username", RenderView(ViewForgotUsernameConfirmation, form))
}

// ChangePassword changes the password of the authenticated caller and
// re-issues the session since the stamp rotates.
func (o *Orchestrator) ChangePassword(ctx context.Context, rc RequestContext, in ChangePasswordPayload) Outcome {
	if !rc.IsAuthenticated() {
		return o.record("change-password", RedirectTo(o.StoreURL(rc, o.paths.Login)))
	}

	form := NewForm(ChangePasswordPayload{})
	view := func() Outcome {
		return o.Account(ctx, rc, false).withForm(form)
	}

	if err := in.Validate(); err != nil {
		form.AddValidationErrors(err)
		return o.record("change-password", view().WithStatus(http.StatusBadRequest))
	}

	if err := o.store.ChangePassword(ctx, rc.User, in.OldPassword, in.NewPassword); err != nil {
		form.AddStoreErrors(err)
		return o.record("change-password", view())
	}

	user, err := o.store.FindByID(ctx, rc.User.ID.String())
	if err != nil {
		return o.record("change-password", o.unexpected("change-password", ViewAccount, form, err))
	}

	// keep the session the way it was issued
	user.OperatorID = rc.User.OperatorID
	user.OperatorName = rc.User.OperatorName
	if err := rc.Session.SignIn(ctx, user, rc.Persistent); err != nil {
		return o.record("change-password", o.unexpected("change-password", ViewAccount, form, err))
	}

	return o.record("change-password", RedirectTo(o.StoreURL(rc, o.paths.Account)+"?passwordChanged=true"))
}

func (o Outcome) withForm(form *Form) Outcome {
	o.Form = form
	return o
}
