package auth

import (
	"context"
	"fmt"
)

// Channel is the delivery medium of a notification
type Channel string

const (
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
)

// NotificationType selects the message template
type NotificationType string

const (
	NotificationRegistration      NotificationType = "registration"
	NotificationEmailConfirmation NotificationType = "email-confirmation"
	NotificationResetPassword     NotificationType = "reset-password"
	NotificationResetPasswordSMS  NotificationType = "reset-password-sms"
	NotificationUsernameReminder  NotificationType = "username-reminder"
)

// Notification is a templated message for a single recipient
type Notification struct {
	Type      NotificationType
	Channel   Channel
	StoreID   string
	StoreName string
	Language  string
	Recipient string
	Data      map[string]any
}

// NotificationResult is what the gateway reports back
type NotificationResult struct {
	IsSuccess    bool
	ErrorMessage string
}

// NotificationGateway delivers templated email and SMS
type NotificationGateway interface {
	Send(ctx context.Context, n Notification) NotificationResult
}

// NotificationGatewayFunc adapts a function to NotificationGateway
type NotificationGatewayFunc func(ctx context.Context, n Notification) NotificationResult

// Send implements NotificationGateway
func (f NotificationGatewayFunc) Send(ctx context.Context, n Notification) NotificationResult {
	return f(ctx, n)
}

// NotificationSucceeded is a convenience success result
func NotificationSucceeded() NotificationResult {
	return NotificationResult{IsSuccess: true}
}

// NotificationFailed is a convenience failure result
func NotificationFailed(format string, args ...any) NotificationResult {
	return NotificationResult{ErrorMessage: fmt.Sprintf(format, args...)}
}

type noopGateway struct{}

func (noopGateway) Send(context.Context, Notification) NotificationResult {
	return NotificationSucceeded()
}

func normalizeGateway(g NotificationGateway) NotificationGateway {
	if g == nil {
		return noopGateway{}
	}
	return g
}
