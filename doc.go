// Package auth orchestrates the customer identity lifecycle of a
// multi store storefront: registration, login, logout, password and
// username recovery, invitations, external provider sign in and operator
// impersonation.
//
// Orchestrator:
//   - Every flow takes a RequestContext (active store, language, session
//     and principal) and returns an Outcome that is either a redirect or a
//     view with a Form. Flows never write to the transport directly, so
//     AccountController and any other adapter render Outcomes the same way.
//   - Persistence is delegated to a CredentialStore. The store owns hashing,
//     lockout, two factor and token issuance. The orchestrator owns the
//     eligibility gate, return URL sanitizing and event ordering.
//
// Sessions:
//   - SessionManager issues the session cookie as a signed JWT carrying the
//     security stamp. The middleware restores the principal on each request
//     and drops sessions whose stamp no longer matches the stored user.
//   - ChallengePolicy turns 401 and 403 into store qualified redirects for
//     browsers and plain status codes for API callers.
//
// Events:
//   - Domain events are published only after the change they describe was
//     committed. Publishing is best effort: errors are logged and never
//     fail the flow.
package auth
