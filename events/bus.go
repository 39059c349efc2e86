package events

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	auth "github.com/goliatone/go-storefront-auth"
)

// Handler consumes one event. Errors are logged, never returned to the
// publisher.
type Handler func(ctx context.Context, event auth.DomainEvent) error

// Config controls dispatcher buffering behavior.
type Config struct {
	BufferSize int
	DropIfFull bool
}

// DefaultConfig buffers 256 events and blocks publishers when full
func DefaultConfig() Config {
	return Config{BufferSize: 256}
}

type subscription struct {
	name    string
	handler Handler
}

// Bus asynchronously fans events out to subscribers. Publish never
// waits for a handler; handlers run on a single worker in publish order.
type Bus struct {
	cfg       Config
	logger    auth.Logger
	ch        chan auth.DomainEvent
	done      chan struct{}
	wg        sync.WaitGroup
	dropped   atomic.Uint64
	closed    atomic.Bool
	closeOnce sync.Once

	mu   sync.RWMutex
	subs []subscription
}

var _ auth.EventBus = (*Bus)(nil)

func NewBus(cfg Config, logger auth.Logger) *Bus {
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	b := &Bus{
		cfg:    cfg,
		logger: logger,
		ch:     make(chan auth.DomainEvent, cfg.BufferSize),
		done:   make(chan struct{}),
	}

	b.wg.Add(1)
	go b.run()

	return b
}

// Subscribe registers handler for events named name, "*" matches all
func (b *Bus) Subscribe(name string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs = append(b.subs, subscription{name: name, handler: handler})
}

func (b *Bus) run() {
	defer b.wg.Done()

	for {
		select {
		case event := <-b.ch:
			b.dispatch(event)
		case <-b.done:
			for {
				select {
				case event := <-b.ch:
					b.dispatch(event)
				default:
					return
				}
			}
		}
	}
}

func (b *Bus) dispatch(event auth.DomainEvent) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, sub := range subs {
		if sub.name != "*" && sub.name != event.EventName() {
			continue
		}
		if err := b.safeHandle(sub.handler, event); err != nil {
			b.logger.Error("events: %s handler failed: %v", event.EventName(), err)
		}
	}
}

func (b *Bus) safeHandle(handler Handler, event auth.DomainEvent) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return handler(context.Background(), event)
}

// Publish enqueues event
func (b *Bus) Publish(ctx context.Context, event auth.DomainEvent) {
	if b == nil || event == nil || b.closed.Load() {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	if b.cfg.DropIfFull {
		select {
		case b.ch <- event:
		case <-b.done:
		default:
			b.dropped.Add(1)
			b.logger.Warn("events: buffer full, dropped %s", event.EventName())
		}
		return
	}

	select {
	case b.ch <- event:
	case <-ctx.Done():
		b.dropped.Add(1)
	case <-b.done:
	}
}

// Close stops accepting events and drains the buffer
func (b *Bus) Close() {
	if b == nil {
		return
	}
	b.closeOnce.Do(func() {
		b.closed.Store(true)
		close(b.done)
		b.wg.Wait()
	})
}

func (b *Bus) Dropped() uint64 {
	if b == nil {
		return 0
	}
	return b.dropped.Load()
}
