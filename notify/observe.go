package notify

import (
	"context"

	auth "github.com/goliatone/go-storefront-auth"
)

// Observer is told the result of every delivery attempt
type Observer interface {
	RecordNotification(notificationType, channel string, success bool)
}

type observed struct {
	next     auth.NotificationGateway
	observer Observer
}

// Observe wraps next so every result reaches observer
func Observe(next auth.NotificationGateway, observer Observer) auth.NotificationGateway {
	if observer == nil {
		return next
	}
	return observed{next: next, observer: observer}
}

func (o observed) Send(ctx context.Context, n auth.Notification) auth.NotificationResult {
	res := o.next.Send(ctx, n)
	o.observer.RecordNotification(string(n.Type), string(n.Channel), res.IsSuccess)
	return res
}
