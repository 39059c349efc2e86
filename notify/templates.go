package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	auth "github.com/goliatone/go-storefront-auth"
)

// Message is a rendered notification
type Message struct {
	Subject string
	Body    string
}

// Template is a subject and body pair. SMS templates leave Subject empty.
type Template struct {
	Subject string
	Body    string
}

// DefaultTemplates are the built in english messages
func DefaultTemplates() map[auth.NotificationType]Template {
	return map[auth.NotificationType]Template{
		auth.NotificationRegistration: {
			Subject: "Welcome to {{ .StoreName }}",
			Body: "Hi {{ or .Data.first_name .Data.username }},\n\n" +
				"your {{ .StoreName }} account {{ .Data.username }} is ready.\n",
		},
		auth.NotificationEmailConfirmation: {
			Subject: "Confirm your {{ .StoreName }} email",
			Body: "Hi {{ or .Data.first_name .Data.username }},\n\n" +
				"confirm your email address by following this link:\n{{ .Data.callback_url }}\n",
		},
		auth.NotificationResetPassword: {
			Subject: "Reset your {{ .StoreName }} password",
			Body: "Hi {{ or .Data.first_name .Data.username }},\n\n" +
				"reset your password by following this link:\n{{ .Data.callback_url }}\n\n" +
				"If you did not ask for a reset you can ignore this message.\n",
		},
		auth.NotificationResetPasswordSMS: {
			Body: "{{ .StoreName }} reset code: {{ .Data.code }}",
		},
		auth.NotificationUsernameReminder: {
			Subject: "Your {{ .StoreName }} username",
			Body: "Hi {{ or .Data.first_name .Data.username }},\n\n" +
				"the username for your account is {{ .Data.username }}.\n",
		},
	}
}

// Renderer turns notifications into messages. Lookups try the
// language specific template first, "reset-password.de", then the
// type alone.
type Renderer struct {
	templates map[string]*template.Template
}

// NewRenderer parses the given templates. Keys are a notification type
// with an optional ".<language>" suffix.
func NewRenderer(sources map[string]Template) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]*template.Template, len(sources)*2)}
	for key, src := range sources {
		for part, text := range map[string]string{"subject": src.Subject, "body": src.Body} {
			t, err := template.New(key + "." + part).Option("missingkey=zero").Parse(text)
			if err != nil {
				return nil, fmt.Errorf("notify: parse %s %s: %w", key, part, err)
			}
			r.templates[key+"#"+part] = t
		}
	}
	return r, nil
}

// DefaultRenderer uses DefaultTemplates
func DefaultRenderer() *Renderer {
	sources := make(map[string]Template)
	for k, v := range DefaultTemplates() {
		sources[string(k)] = v
	}
	r, err := NewRenderer(sources)
	if err != nil {
		panic(err)
	}
	return r
}

// Render executes the template for n
func (r *Renderer) Render(n auth.Notification) (Message, error) {
	key := string(n.Type)
	if lang := strings.ToLower(n.Language); lang != "" {
		if _, ok := r.templates[key+"."+lang+"#body"]; ok {
			key = key + "." + lang
		}
	}

	body, ok := r.templates[key+"#body"]
	if !ok {
		return Message{}, fmt.Errorf("notify: no template for %s", n.Type)
	}

	if n.Data == nil {
		n.Data = map[string]any{}
	}

	var msg Message
	var buf bytes.Buffer
	if err := r.templates[key+"#subject"].Execute(&buf, n); err != nil {
		return Message{}, fmt.Errorf("notify: render %s subject: %w", key, err)
	}
	msg.Subject = buf.String()

	buf.Reset()
	if err := body.Execute(&buf, n); err != nil {
		return Message{}, fmt.Errorf("notify: render %s body: %w", key, err)
	}
	msg.Body = buf.String()

	return msg, nil
}
