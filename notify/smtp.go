package notify

import (
	"context"
	"crypto/rand"
	"crypto/tls"
	"encoding/hex"
	"fmt"
	"mime"
	"net"
	"net/smtp"
	"strings"
	"time"

	auth "github.com/goliatone/go-storefront-auth"
)

// SMTPConfig describes the outgoing mail server
type SMTPConfig struct {
	Host       string        `yaml:"host"`
	Port       int           `yaml:"port"`
	Username   string        `yaml:"username"`
	Password   string        `yaml:"password"`
	From       string        `yaml:"from"`
	SenderName string        `yaml:"sender_name"`
	Timeout    time.Duration `yaml:"timeout"`
}

func (c SMTPConfig) address() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

func (c SMTPConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return 10 * time.Second
	}
	return c.Timeout
}

func (c SMTPConfig) from() string {
	if c.From != "" {
		return c.From
	}
	return c.Username
}

// Transport delivers a raw message to one recipient
type Transport func(ctx context.Context, from, to string, msg []byte) error

// SMTPGateway delivers email notifications over SMTP
type SMTPGateway struct {
	config    SMTPConfig
	renderer  *Renderer
	transport Transport
	logger    auth.Logger
	now       func() time.Time
}

var _ auth.NotificationGateway = (*SMTPGateway)(nil)

// NewSMTPGateway returns a gateway for config. Port 465 uses implicit
// TLS, any other port STARTTLS.
func NewSMTPGateway(config SMTPConfig, renderer *Renderer, logger auth.Logger) *SMTPGateway {
	g := &SMTPGateway{
		config:   config,
		renderer: renderer,
		logger:   logger,
		now:      time.Now,
	}
	g.transport = g.deliver
	return g
}

// WithTransport replaces the network delivery
func (g *SMTPGateway) WithTransport(t Transport) *SMTPGateway {
	if t != nil {
		g.transport = t
	}
	return g
}

func (g *SMTPGateway) Send(ctx context.Context, n auth.Notification) auth.NotificationResult {
	if n.Channel != auth.ChannelEmail {
		return auth.NotificationFailed("smtp gateway cannot deliver %s notifications", n.Channel)
	}

	msg, err := g.renderer.Render(n)
	if err != nil {
		return auth.NotificationFailed("%v", err)
	}

	raw := g.buildMessage(n, msg)
	if err := g.transport(ctx, g.config.from(), n.Recipient, raw); err != nil {
		g.logger.Error("notify: smtp %s to %s: %v", n.Type, n.Recipient, err)
		return auth.NotificationFailed("unable to send email")
	}

	g.logger.Debug("notify: smtp %s sent to %s", n.Type, n.Recipient)
	return auth.NotificationSucceeded()
}

func (g *SMTPGateway) buildMessage(n auth.Notification, msg Message) []byte {
	sender := n.StoreName
	if g.config.SenderName != "" {
		sender = g.config.SenderName
	}

	domain := "localhost"
	if at := strings.LastIndex(g.config.from(), "@"); at >= 0 {
		domain = g.config.from()[at+1:]
	}

	return fmt.Appendf(nil,
		"Message-ID: %s\r\n"+
			"Date: %s\r\n"+
			"To: %s\r\n"+
			"From: %s <%s>\r\n"+
			"Subject: %s\r\n"+
			"MIME-Version: 1.0\r\n"+
			"Content-Type: text/plain; charset=\"utf-8\"\r\n"+
			"\r\n"+
			"%s",
		messageID(domain, g.now()),
		g.now().Format(time.RFC1123Z),
		n.Recipient,
		mime.QEncoding.Encode("utf-8", sender),
		g.config.from(),
		mime.QEncoding.Encode("utf-8", msg.Subject),
		strings.ReplaceAll(msg.Body, "\n", "\r\n"),
	)
}

func messageID(domain string, now time.Time) string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("<%d.%s@%s>", now.UnixNano(), hex.EncodeToString(b), domain)
}

func (g *SMTPGateway) deliver(ctx context.Context, from, to string, msg []byte) error {
	dialer := &net.Dialer{Timeout: g.config.timeout()}
	tlsConfig := &tls.Config{ServerName: g.config.Host}

	var conn net.Conn
	var err error
	if g.config.Port == 465 {
		conn, err = (&tls.Dialer{NetDialer: dialer, Config: tlsConfig}).DialContext(ctx, "tcp", g.config.address())
	} else {
		conn, err = dialer.DialContext(ctx, "tcp", g.config.address())
	}
	if err != nil {
		return fmt.Errorf("connect %s: %w", g.config.address(), err)
	}
	defer conn.Close()

	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	} else {
		_ = conn.SetDeadline(time.Now().Add(g.config.timeout()))
	}

	client, err := smtp.NewClient(conn, g.config.Host)
	if err != nil {
		return fmt.Errorf("smtp client: %w", err)
	}
	defer client.Close()

	if g.config.Port != 465 {
		if ok, _ := client.Extension("STARTTLS"); ok {
			if err := client.StartTLS(tlsConfig); err != nil {
				return fmt.Errorf("starttls: %w", err)
			}
		}
	}

	if g.config.Username != "" {
		if err := client.Auth(smtp.PlainAuth("", g.config.Username, g.config.Password, g.config.Host)); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("smtp mail: %w", err)
	}
	if err := client.Rcpt(to); err != nil {
		return fmt.Errorf("smtp rcpt %s: %w", to, err)
	}

	w, err := client.Data()
	if err != nil {
		return fmt.Errorf("smtp data: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("smtp close: %w", err)
	}

	return client.Quit()
}
