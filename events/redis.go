package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	auth "github.com/goliatone/go-storefront-auth"
)

// Envelope is the wire form of a published event
type Envelope struct {
	Name       string          `json:"name"`
	OccurredAt time.Time       `json:"occurred_at"`
	Payload    json.RawMessage `json:"payload"`
}

// NewRedisHandler forwards events to a redis pub/sub channel
func NewRedisHandler(client redis.UniversalClient, channel string) Handler {
	return func(ctx context.Context, event auth.DomainEvent) error {
		payload, err := json.Marshal(event)
		if err != nil {
			return fmt.Errorf("marshal %s: %w", event.EventName(), err)
		}

		data, err := json.Marshal(Envelope{
			Name:       event.EventName(),
			OccurredAt: occurredAt(event),
			Payload:    payload,
		})
		if err != nil {
			return err
		}

		return client.Publish(ctx, channel, data).Err()
	}
}

func occurredAt(event auth.DomainEvent) time.Time {
	switch e := event.(type) {
	case auth.UserRegisteredEvent:
		return e.Context.OccurredAt
	case auth.UserLoginEvent:
		return e.Context.OccurredAt
	}
	return time.Now().UTC()
}

// NewLogHandler writes a line per event
func NewLogHandler(logger auth.Logger) Handler {
	return func(_ context.Context, event auth.DomainEvent) error {
		switch e := event.(type) {
		case auth.UserRegisteredEvent:
			logger.Info("events: %s user=%s store=%s", e.EventName(), e.User.Username, e.Context.StoreID)
		case auth.UserLoginEvent:
			logger.Info("events: %s user=%s store=%s operator=%s", e.EventName(), e.User.Username, e.Context.StoreID, e.Context.OperatorID)
		default:
			logger.Info("events: %s", event.EventName())
		}
		return nil
	}
}
