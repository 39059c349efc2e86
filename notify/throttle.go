package notify

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	auth "github.com/goliatone/go-storefront-auth"
)

// ThrottleConfig is the per recipient allowance
type ThrottleConfig struct {
	Rate  rate.Limit
	Burst int
	// IdleTTL evicts limiters of recipients not seen for a while
	IdleTTL time.Duration
}

// DefaultThrottleConfig allows five messages per recipient every ten
// minutes.
func DefaultThrottleConfig() ThrottleConfig {
	return ThrottleConfig{
		Rate:    rate.Every(2 * time.Minute),
		Burst:   5,
		IdleTTL: 30 * time.Minute,
	}
}

type recipientLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// Throttle rejects notifications once a recipient exhausts its
// allowance. Rejections surface as gateway failures.
type Throttle struct {
	next   auth.NotificationGateway
	config ThrottleConfig
	logger auth.Logger
	now    func() time.Time

	mu       sync.Mutex
	limiters map[string]*recipientLimiter
}

var _ auth.NotificationGateway = (*Throttle)(nil)

func NewThrottle(next auth.NotificationGateway, config ThrottleConfig, logger auth.Logger) *Throttle {
	return &Throttle{
		next:     next,
		config:   config,
		logger:   logger,
		now:      time.Now,
		limiters: make(map[string]*recipientLimiter),
	}
}

func (t *Throttle) Send(ctx context.Context, n auth.Notification) auth.NotificationResult {
	if !t.limiter(string(n.Channel) + ":" + n.Recipient).AllowN(t.now(), 1) {
		t.logger.Warn("notify: throttled %s %s to %s", n.Channel, n.Type, n.Recipient)
		return auth.NotificationFailed("too many messages sent, try again later")
	}
	return t.next.Send(ctx, n)
}

// Len is the number of tracked recipients
func (t *Throttle) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.limiters)
}

// Sweep evicts idle recipients
func (t *Throttle) Sweep() {
	t.mu.Lock()
	defer t.mu.Unlock()

	cutoff := t.now().Add(-t.config.IdleTTL)
	for key, l := range t.limiters {
		if l.lastAccess.Before(cutoff) {
			delete(t.limiters, key)
		}
	}
}

// Run sweeps every interval until ctx is done
func (t *Throttle) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.Sweep()
		}
	}
}

func (t *Throttle) limiter(key string) *rate.Limiter {
	t.mu.Lock()
	defer t.mu.Unlock()

	l, ok := t.limiters[key]
	if !ok {
		l = &recipientLimiter{limiter: rate.NewLimiter(t.config.Rate, t.config.Burst)}
		t.limiters[key] = l
	}
	l.lastAccess = t.now()
	return l.limiter
}
