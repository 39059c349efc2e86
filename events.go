package auth

import (
	"context"
	"time"
)

const (
	EventUserRegistered = "user.registered"
	EventUserLogin      = "user.login"
)

// DomainEvent is an immutable fact about a committed transition
type DomainEvent interface {
	EventName() string
}

// EventContext captures where the transition happened
type EventContext struct {
	StoreID    string    `json:"store_id"`
	Language   string    `json:"language"`
	OperatorID string    `json:"operator_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// UserRegisteredEvent is published once the account exists
type UserRegisteredEvent struct {
	Context EventContext `json:"context"`
	User    User         `json:"user"`
	Source  any          `json:"source,omitempty"`
}

func (UserRegisteredEvent) EventName() string { return EventUserRegistered }

// UserLoginEvent is published once the session is established
type UserLoginEvent struct {
	Context EventContext `json:"context"`
	User    User         `json:"user"`
	Source  any          `json:"source,omitempty"`
}

func (UserLoginEvent) EventName() string { return EventUserLogin }

// EventBus publishes domain events, the caller never observes the result
type EventBus interface {
	Publish(ctx context.Context, event DomainEvent)
}

// EventBusFunc adapts a function to the EventBus interface.
type EventBusFunc func(ctx context.Context, event DomainEvent)

// Publish implements EventBus.
func (f EventBusFunc) Publish(ctx context.Context, event DomainEvent) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type noopEventBus struct{}

func (noopEventBus) Publish(context.Context, DomainEvent) {}

func normalizeEventBus(b EventBus) EventBus {
	if b == nil {
		return noopEventBus{}
	}
	return b
}

func newEventContext(rc RequestContext, now time.Time) EventContext {
	ec := EventContext{
		StoreID:    rc.Store.ID,
		Language:   rc.Language,
		OccurredAt: now,
	}
	if rc.User != nil {
		ec.OperatorID = rc.User.OperatorID
	}
	return ec
}
