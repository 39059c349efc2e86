package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"

	auth "github.com/goliatone/go-storefront-auth"
)

// SMSConfig describes an HTTP SMS provider
type SMSConfig struct {
	Endpoint string `yaml:"endpoint"`
	Token    string `yaml:"token"`
	Sender   string `yaml:"sender"`
	// DefaultRegion resolves numbers stored without a country code
	DefaultRegion string        `yaml:"default_region"`
	Timeout       time.Duration `yaml:"timeout"`
}

type smsRequest struct {
	To      string `json:"to"`
	From    string `json:"from,omitempty"`
	Body    string `json:"body"`
	StoreID string `json:"store_id,omitempty"`
}

// SMSWebhookGateway posts SMS notifications as JSON to a provider
type SMSWebhookGateway struct {
	config   SMSConfig
	renderer *Renderer
	client   *http.Client
	logger   auth.Logger
}

var _ auth.NotificationGateway = (*SMSWebhookGateway)(nil)

func NewSMSWebhookGateway(config SMSConfig, renderer *Renderer, logger auth.Logger) *SMSWebhookGateway {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &SMSWebhookGateway{
		config:   config,
		renderer: renderer,
		client:   &http.Client{Timeout: timeout},
		logger:   logger,
	}
}

// NormalizePhone formats number as E.164
func NormalizePhone(number, defaultRegion string) (string, error) {
	if defaultRegion == "" {
		defaultRegion = "US"
	}
	parsed, err := phonenumbers.Parse(number, strings.ToUpper(defaultRegion))
	if err != nil {
		return "", fmt.Errorf("parse phone number: %w", err)
	}
	if !phonenumbers.IsValidNumber(parsed) {
		return "", fmt.Errorf("invalid phone number %q", number)
	}
	return phonenumbers.Format(parsed, phonenumbers.E164), nil
}

func (g *SMSWebhookGateway) Send(ctx context.Context, n auth.Notification) auth.NotificationResult {
	if n.Channel != auth.ChannelSMS {
		return auth.NotificationFailed("sms gateway cannot deliver %s notifications", n.Channel)
	}

	to, err := NormalizePhone(n.Recipient, g.config.DefaultRegion)
	if err != nil {
		g.logger.Warn("notify: sms %s: %v", n.Type, err)
		return auth.NotificationFailed("the phone number on file cannot receive SMS")
	}

	msg, err := g.renderer.Render(n)
	if err != nil {
		return auth.NotificationFailed("%v", err)
	}

	payload, err := json.Marshal(smsRequest{
		To:      to,
		From:    g.config.Sender,
		Body:    msg.Body,
		StoreID: n.StoreID,
	})
	if err != nil {
		return auth.NotificationFailed("%v", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.config.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return auth.NotificationFailed("%v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if g.config.Token != "" {
		req.Header.Set("Authorization", "Bearer "+g.config.Token)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		g.logger.Error("notify: sms %s to %s: %v", n.Type, to, err)
		return auth.NotificationFailed("unable to send SMS")
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		g.logger.Error("notify: sms provider answered %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
		return auth.NotificationFailed("SMS provider rejected the message (%d)", resp.StatusCode)
	}

	return auth.NotificationSucceeded()
}
