package auth

import (
	"context"
	"net/url"

	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

func (r RegisterPayload) redacted() RegisterPayload {
	r.Password = ""
	return r
}

// ShowRegister renders an empty registration form
func (o *Orchestrator) ShowRegister(_ context.Context, _ RequestContext) Outcome {
	return RenderView(ViewRegister, NewForm(RegisterPayload{}))
}

// Register creates a local account in the active store and signs it in.
func (o *Orchestrator) Register(ctx context.Context, rc RequestContext, in RegisterPayload) Outcome {
	form := NewForm(in.redacted())

	if err := in.Validate(); err != nil {
		form.AddValidationErrors(err)
		return o.record("register", RenderView(ViewRegister, form))
	}

	user := &User{
		ID:        o.newUserID(in.Email),
		Username:  in.Username,
		Email:     in.Email,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		StoreID:   rc.Store.ID,
		Status:    UserStatusActive,
	}

	if _, err := o.store.CreateUser(ctx, user, in.Password); err != nil {
		if _, ok := AsStoreErrors(err); !ok {
			return o.record("register", o.unexpected("register", ViewRegister, form, err))
		}
		form.AddStoreErrors(err)
		return o.record("register", RenderView(ViewRegister, form))
	}

	created, err := o.store.FindByName(ctx, in.Username)
	if err != nil {
		return o.record("register", o.unexpected("register", ViewRegister, form, err))
	}

	o.publishRegistered(ctx, rc, created, in.redacted())

	if err := rc.Session.SignIn(ctx, created, true); err != nil {
		return o.record("register", o.unexpected("register", ViewRegister, form, err))
	}

	o.publishLogin(ctx, rc, created, in.redacted())

	if created.Email != "" {
		res := o.send(ctx, rc, Notification{
			Type:      NotificationRegistration,
			Channel:   ChannelEmail,
			Recipient: created.Email,
			Data: map[string]any{
				"username":   created.Username,
				"first_name": created.FirstName,
				"last_name":  created.LastName,
			},
		})
		if !res.IsSuccess {
			o.logger.Warn("register: confirmation notification for %s failed: %s", created.Username, res.ErrorMessage)
		}

		if o.sendEmailConfirmation {
			o.sendConfirmationLink(ctx, rc, created)
		}
	}

	return o.record("register", RedirectTo(o.StoreURL(rc, o.paths.Account)))
}

func (o *Orchestrator) sendConfirmationLink(ctx context.Context, rc RequestContext, user *User) {
	token, err := o.store.GenerateToken(ctx, user, PurposeEmailConfirmation)
	if err != nil {
		o.logger.Error("register: email confirmation token for %s: %v", user.Username, err)
		return
	}

	callback := o.absoluteURL(rc, o.paths.ConfirmEmail, url.Values{
		"userId": {user.ID.String()},
		"code":   {token},
	})

	res := o.send(ctx, rc, Notification{
		Type:      NotificationEmailConfirmation,
		Channel:   ChannelEmail,
		Recipient: user.Email,
		Data: map[string]any{
			"username":     user.Username,
			"callback_url": callback,
		},
	})
	if !res.IsSuccess {
		o.logger.Warn("register: email confirmation for %s failed: %s", user.Username, res.ErrorMessage)
	}
}

// newUserID derives a stable id from the email when one is given
func (o *Orchestrator) newUserID(email string) uuid.UUID {
	if email == "" {
		return uuid.New()
	}
	id, err := hashid.NewUUID(NormalizeKey(email))
	if err != nil {
		return uuid.New()
	}
	return id
}
