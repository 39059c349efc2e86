package auth

// LoginOutcomeKind is the terminal state of one authentication attempt
type LoginOutcomeKind int

const (
	LoginFailed LoginOutcomeKind = iota
	LoginSucceeded
	LoginLockedOut
	LoginRequiresTwoFactor
	LoginRejected
)

func (k LoginOutcomeKind) String() string {
	switch k {
	case LoginSucceeded:
		return "succeeded"
	case LoginLockedOut:
		return "locked-out"
	case LoginRequiresTwoFactor:
		return "requires-two-factor"
	case LoginRejected:
		return "rejected"
	default:
		return "failed"
	}
}

// LoginOutcome is decided by the credential store. Reason is only
// set for LoginRejected.
type LoginOutcome struct {
	Kind   LoginOutcomeKind
	Reason string
}

func OutcomeSucceeded() LoginOutcome         { return LoginOutcome{Kind: LoginSucceeded} }
func OutcomeFailed() LoginOutcome            { return LoginOutcome{Kind: LoginFailed} }
func OutcomeLockedOut() LoginOutcome         { return LoginOutcome{Kind: LoginLockedOut} }
func OutcomeRequiresTwoFactor() LoginOutcome { return LoginOutcome{Kind: LoginRequiresTwoFactor} }

// OutcomeRejected is an administrative block carrying its reason
func OutcomeRejected(reason string) LoginOutcome {
	return LoginOutcome{Kind: LoginRejected, Reason: reason}
}

func (o LoginOutcome) Succeeded() bool { return o.Kind == LoginSucceeded }
