package notify

import (
	"context"

	auth "github.com/goliatone/go-storefront-auth"
)

// Router dispatches a notification to the gateway of its channel
type Router struct {
	routes map[auth.Channel]auth.NotificationGateway
}

var _ auth.NotificationGateway = (*Router)(nil)

func NewRouter() *Router {
	return &Router{routes: map[auth.Channel]auth.NotificationGateway{}}
}

// Handle registers gateway for channel
func (r *Router) Handle(channel auth.Channel, gateway auth.NotificationGateway) *Router {
	r.routes[channel] = gateway
	return r
}

func (r *Router) Send(ctx context.Context, n auth.Notification) auth.NotificationResult {
	gateway, ok := r.routes[n.Channel]
	if !ok {
		return auth.NotificationFailed("no gateway configured for %s notifications", n.Channel)
	}
	return gateway.Send(ctx, n)
}
