package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	auth "github.com/goliatone/go-storefront-auth"
)

type testLogger struct{}

func (testLogger) Debug(string, ...any) {}
func (testLogger) Info(string, ...any)  {}
func (testLogger) Warn(string, ...any)  {}
func (testLogger) Error(string, ...any) {}

func resetNotification() auth.Notification {
	return auth.Notification{
		Type:      auth.NotificationResetPassword,
		Channel:   auth.ChannelEmail,
		StoreID:   "electronics",
		StoreName: "Electronics",
		Language:  "en-US",
		Recipient: "newuser@example.com",
		Data: map[string]any{
			"username":     "newuser",
			"first_name":   "",
			"callback_url": "https://shop.example.com/account/resetpassword?token=abc",
		},
	}
}

func TestRendererDefaults(t *testing.T) {
	msg, err := DefaultRenderer().Render(resetNotification())
	require.NoError(t, err)

	assert.Equal(t, "Reset your Electronics password", msg.Subject)
	assert.Contains(t, msg.Body, "Hi newuser,")
	assert.Contains(t, msg.Body, "https://shop.example.com/account/resetpassword?token=abc")
}

func TestRendererLanguageOverride(t *testing.T) {
	r, err := NewRenderer(map[string]Template{
		"reset-password":       {Subject: "Reset", Body: "reset {{ .Data.username }}"},
		"reset-password.de-de": {Subject: "Zurücksetzen", Body: "zurücksetzen {{ .Data.username }}"},
	})
	require.NoError(t, err)

	n := resetNotification()
	n.Language = "de-DE"
	msg, err := r.Render(n)
	require.NoError(t, err)
	assert.Equal(t, "Zurücksetzen", msg.Subject)
	assert.Equal(t, "zurücksetzen newuser", msg.Body)

	n.Language = "fr-FR"
	msg, err = r.Render(n)
	require.NoError(t, err)
	assert.Equal(t, "Reset", msg.Subject)

	n.Type = auth.NotificationUsernameReminder
	_, err = r.Render(n)
	assert.Error(t, err)
}

func TestSMTPGatewayBuildsMessage(t *testing.T) {
	var gotFrom, gotTo string
	var gotMsg []byte

	g := NewSMTPGateway(SMTPConfig{Host: "smtp.example.com", Port: 587, From: "shop@example.com"}, DefaultRenderer(), testLogger{}).
		WithTransport(func(_ context.Context, from, to string, msg []byte) error {
			gotFrom, gotTo, gotMsg = from, to, msg
			return nil
		})

	res := g.Send(context.Background(), resetNotification())
	require.True(t, res.IsSuccess, res.ErrorMessage)

	assert.Equal(t, "shop@example.com", gotFrom)
	assert.Equal(t, "newuser@example.com", gotTo)

	raw := string(gotMsg)
	assert.Contains(t, raw, "To: newuser@example.com\r\n")
	assert.Contains(t, raw, "Subject: Reset your Electronics password\r\n")
	assert.Contains(t, raw, "From: Electronics <shop@example.com>\r\n")
	assert.Contains(t, raw, "@example.com>\r\n")
}

func TestSMTPGatewayFailure(t *testing.T) {
	g := NewSMTPGateway(SMTPConfig{Host: "smtp.example.com", Port: 587}, DefaultRenderer(), testLogger{}).
		WithTransport(func(context.Context, string, string, []byte) error {
			return errors.New("connection refused")
		})

	res := g.Send(context.Background(), resetNotification())
	assert.False(t, res.IsSuccess)
	assert.Equal(t, "unable to send email", res.ErrorMessage)
	assert.NotContains(t, res.ErrorMessage, "newuser@example.com")

	n := resetNotification()
	n.Channel = auth.ChannelSMS
	res = g.Send(context.Background(), n)
	assert.False(t, res.IsSuccess)
}

func smsNotification(recipient string) auth.Notification {
	return auth.Notification{
		Type:      auth.NotificationResetPasswordSMS,
		Channel:   auth.ChannelSMS,
		StoreID:   "electronics",
		StoreName: "Electronics",
		Recipient: recipient,
		Data:      map[string]any{"code": "123456"},
	}
}

func TestSMSWebhookGateway(t *testing.T) {
	var got smsRequest
	var authHeader string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader = r.Header.Get("Authorization")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	g := NewSMSWebhookGateway(SMSConfig{Endpoint: srv.URL, Token: "secret", DefaultRegion: "US"}, DefaultRenderer(), testLogger{})

	res := g.Send(context.Background(), smsNotification("(201) 555-0123"))
	require.True(t, res.IsSuccess, res.ErrorMessage)

	assert.Equal(t, "Bearer secret", authHeader)
	assert.Equal(t, "+12015550123", got.To)
	assert.Equal(t, "Electronics reset code: 123456", got.Body)
	assert.Equal(t, "electronics", got.StoreID)
}

func TestSMSWebhookGatewayFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	g := NewSMSWebhookGateway(SMSConfig{Endpoint: srv.URL}, DefaultRenderer(), testLogger{})

	res := g.Send(context.Background(), smsNotification("+12015550123"))
	assert.False(t, res.IsSuccess)
	assert.Contains(t, res.ErrorMessage, "429")
	assert.NotContains(t, res.ErrorMessage, "2015550123")

	res = g.Send(context.Background(), smsNotification("not a number"))
	assert.False(t, res.IsSuccess)
	assert.NotContains(t, res.ErrorMessage, "not a number")
}

func TestSMSWebhookGatewayUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	g := NewSMSWebhookGateway(SMSConfig{Endpoint: srv.URL}, DefaultRenderer(), testLogger{})

	res := g.Send(context.Background(), smsNotification("+12015550123"))
	assert.False(t, res.IsSuccess)
	assert.Equal(t, "unable to send SMS", res.ErrorMessage)
}

func TestNormalizePhone(t *testing.T) {
	got, err := NormalizePhone("+44 121 234 5678", "US")
	require.NoError(t, err)
	assert.Equal(t, "+441212345678", got)

	_, err = NormalizePhone("12", "US")
	assert.Error(t, err)
}

func TestRouter(t *testing.T) {
	var sent []auth.Channel
	record := auth.NotificationGatewayFunc(func(_ context.Context, n auth.Notification) auth.NotificationResult {
		sent = append(sent, n.Channel)
		return auth.NotificationSucceeded()
	})

	r := NewRouter().Handle(auth.ChannelEmail, record)

	assert.True(t, r.Send(context.Background(), resetNotification()).IsSuccess)

	res := r.Send(context.Background(), smsNotification("+12015550123"))
	assert.False(t, res.IsSuccess)
	assert.Equal(t, "no gateway configured for sms notifications", res.ErrorMessage)
	assert.Equal(t, []auth.Channel{auth.ChannelEmail}, sent)
}

func TestThrottle(t *testing.T) {
	calls := 0
	next := auth.NotificationGatewayFunc(func(context.Context, auth.Notification) auth.NotificationResult {
		calls++
		return auth.NotificationSucceeded()
	})

	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	th := NewThrottle(next, ThrottleConfig{Rate: rate.Every(time.Minute), Burst: 2, IdleTTL: time.Hour}, testLogger{})
	th.now = func() time.Time { return now }

	n := resetNotification()
	assert.True(t, th.Send(context.Background(), n).IsSuccess)
	assert.True(t, th.Send(context.Background(), n).IsSuccess)

	res := th.Send(context.Background(), n)
	assert.False(t, res.IsSuccess)
	assert.True(t, strings.HasPrefix(res.ErrorMessage, "too many messages"))
	assert.NotContains(t, res.ErrorMessage, n.Recipient)
	assert.Equal(t, 2, calls)

	other := n
	other.Recipient = "other@example.com"
	assert.True(t, th.Send(context.Background(), other).IsSuccess)

	now = now.Add(time.Minute)
	assert.True(t, th.Send(context.Background(), n).IsSuccess)

	assert.Equal(t, 2, th.Len())
	now = now.Add(2 * time.Hour)
	th.Sweep()
	assert.Zero(t, th.Len())
}

type recordingObserver struct {
	calls []string
}

func (r *recordingObserver) RecordNotification(kind, channel string, success bool) {
	state := "failed"
	if success {
		state = "sent"
	}
	r.calls = append(r.calls, kind+"/"+channel+"/"+state)
}

func TestObserve(t *testing.T) {
	obs := &recordingObserver{}
	g := Observe(NewRouter(), obs)

	g.Send(context.Background(), resetNotification())
	assert.Equal(t, []string{"reset-password/email/failed"}, obs.calls)
}

func TestLogGateway(t *testing.T) {
	g := &LogGateway{Renderer: DefaultRenderer(), Logger: testLogger{}}
	assert.True(t, g.Send(context.Background(), resetNotification()).IsSuccess)
}
