package notify

import (
	"context"

	auth "github.com/goliatone/go-storefront-auth"
)

// LogGateway renders notifications into the log instead of delivering
// them. Useful in development.
type LogGateway struct {
	Renderer *Renderer
	Logger   auth.Logger
}

var _ auth.NotificationGateway = (*LogGateway)(nil)

func (g *LogGateway) Send(_ context.Context, n auth.Notification) auth.NotificationResult {
	msg, err := g.Renderer.Render(n)
	if err != nil {
		return auth.NotificationFailed("%v", err)
	}
	g.Logger.Info("notify: %s %s to %s (%s/%s)\n%s\n%s", n.Channel, n.Type, n.Recipient, n.StoreID, n.Language, msg.Subject, msg.Body)
	return auth.NotificationSucceeded()
}
