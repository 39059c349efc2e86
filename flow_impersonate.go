package auth

import (
	"context"
	"net/http"
)

// PermissionAuthorizer allows administrators and holders of Permission
type PermissionAuthorizer struct {
	Permission string
}

// CanImpersonate implements ImpersonationAuthorizer
func (a PermissionAuthorizer) CanImpersonate(_ context.Context, operator, target *User) (bool, error) {
	if operator == nil || target == nil {
		return false, nil
	}
	if operator.ID == target.ID {
		return false, nil
	}
	if operator.HasRole(RoleAdministrator) {
		return true, nil
	}
	return a.Permission != "" && operator.HasPermission(a.Permission), nil
}

// Impersonate replaces the operator session with a non persistent session
// as the target. Operator provenance is stamped on the signed in copy of
// the target and travels in the session claims. The stored record is left
// untouched so the target's own sessions are never attributed to the
// operator.
func (o *Orchestrator) Impersonate(ctx context.Context, rc RequestContext, targetID string) Outcome {
	form := NewForm(map[string]string{"user_id": targetID})

	if !rc.IsAuthenticated() {
		return o.record("impersonate", RedirectTo(o.StoreURL(rc, o.paths.Login)))
	}
	operator := rc.User

	target, err := o.store.FindByID(ctx, targetID)
	if err != nil {
		if IsNotFound(err) {
			form.AddError(FormErrUserNotFound, describe(FormErrUserNotFound))
			return o.record("impersonate", RenderView(ViewError, form).WithStatus(http.StatusNotFound))
		}
		return o.record("impersonate", o.unexpected("impersonate", ViewError, form, err))
	}

	allowed, err := o.authorizer.CanImpersonate(ctx, operator, target)
	if err != nil {
		return o.record("impersonate", o.unexpected("impersonate", ViewError, form, err))
	}
	if !allowed {
		o.logger.Warn("impersonate: %s denied acting as %s", operator.Username, target.Username)
		form.AddError(FormErrImpersonationDenied, describe(FormErrImpersonationDenied))
		return o.record("impersonate", RenderView(ViewAccessDenied, form).WithStatus(http.StatusForbidden))
	}

	stamped := *target
	stamped.OperatorID = operator.ID.String()
	stamped.OperatorName = operator.Username

	if err := rc.Session.SignOut(ctx); err != nil {
		return o.record("impersonate", o.unexpected("impersonate", ViewError, form, err))
	}

	if err := rc.Session.SignIn(ctx, &stamped, false); err != nil {
		return o.record("impersonate", o.unexpected("impersonate", ViewError, form, err))
	}

	o.logger.Info("impersonate: %s now acting as %s", operator.Username, target.Username)

	return o.record("impersonate", RedirectTo(o.StoreURL(rc, o.paths.Home)))
}
