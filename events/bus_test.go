package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	auth "github.com/goliatone/go-storefront-auth"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

func loginEvent(username string) auth.UserLoginEvent {
	return auth.UserLoginEvent{
		Context: auth.EventContext{StoreID: "electronics", Language: "en-US", OccurredAt: time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)},
		User:    auth.User{Username: username},
	}
}

type collector struct {
	mu    sync.Mutex
	names []string
}

func (c *collector) handle(_ context.Context, event auth.DomainEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, event.EventName())
	return nil
}

func (c *collector) seen() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.names...)
}

func TestBusDeliversInOrderAndDrainsOnClose(t *testing.T) {
	bus := NewBus(DefaultConfig(), testLogger{})

	all := &collector{}
	logins := &collector{}
	bus.Subscribe("*", all.handle)
	bus.Subscribe(auth.EventUserLogin, logins.handle)

	bus.Publish(context.Background(), auth.UserRegisteredEvent{})
	bus.Publish(context.Background(), loginEvent("newuser"))
	bus.Close()

	assert.Equal(t, []string{auth.EventUserRegistered, auth.EventUserLogin}, all.seen())
	assert.Equal(t, []string{auth.EventUserLogin}, logins.seen())

	bus.Publish(context.Background(), loginEvent("late"))
	assert.Len(t, all.seen(), 2, "closed bus ignores events")
	bus.Close()
}

func TestBusIsolatesHandlerFailures(t *testing.T) {
	bus := NewBus(DefaultConfig(), testLogger{})

	after := &collector{}
	bus.Subscribe("*", func(context.Context, auth.DomainEvent) error { panic("boom") })
	bus.Subscribe("*", func(context.Context, auth.DomainEvent) error { return errors.New("nope") })
	bus.Subscribe("*", after.handle)

	bus.Publish(context.Background(), loginEvent("newuser"))
	bus.Close()

	assert.Equal(t, []string{auth.EventUserLogin}, after.seen())
}

func TestBusDropsWhenFull(t *testing.T) {
	bus := NewBus(Config{BufferSize: 1, DropIfFull: true}, testLogger{})

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe("*", func(context.Context, auth.DomainEvent) error {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	})

	bus.Publish(context.Background(), loginEvent("first"))
	<-started

	bus.Publish(context.Background(), loginEvent("buffered"))
	bus.Publish(context.Background(), loginEvent("dropped"))
	assert.Equal(t, uint64(1), bus.Dropped())

	close(release)
	bus.Close()
}

func TestNilBusIsSafe(t *testing.T) {
	var bus *Bus
	bus.Publish(context.Background(), loginEvent("newuser"))
	bus.Close()
	assert.Zero(t, bus.Dropped())
}

func TestRedisHandlerPublishesEnvelope(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	ctx := context.Background()
	sub := client.Subscribe(ctx, "storefront.auth")
	t.Cleanup(func() { sub.Close() })
	_, err = sub.Receive(ctx)
	require.NoError(t, err)

	handler := NewRedisHandler(client, "storefront.auth")
	require.NoError(t, handler(ctx, loginEvent("newuser")))

	select {
	case msg := <-sub.Channel():
		var env Envelope
		require.NoError(t, json.Unmarshal([]byte(msg.Payload), &env))
		assert.Equal(t, auth.EventUserLogin, env.Name)
		assert.True(t, env.OccurredAt.Equal(time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)))

		var event auth.UserLoginEvent
		require.NoError(t, json.Unmarshal(env.Payload, &event))
		assert.Equal(t, "newuser", event.User.Username)
		assert.Equal(t, "electronics", event.Context.StoreID)
	case <-time.After(2 * time.Second):
		t.Fatal("no message received")
	}
}
