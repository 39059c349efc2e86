package config

import (
	"fmt"
	"os"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation"
	"gopkg.in/yaml.v2"

	auth "github.com/goliatone/go-storefront-auth"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "STOREFRONT_AUTH_"

// LookupFunc resolves an environment variable
type LookupFunc func(key string) (string, bool)

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

func LoadWithEnv(path string, lookup LookupFunc) (*Config, error) {
	cfg := Defaults()

	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(lookup); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup LookupFunc) error {
	if lookup == nil {
		return nil
	}

	strs := map[string]*string{
		"ADDR":                 &c.Server.Addr,
		"SIGNING_KEY":          &c.Session.SigningKey,
		"TOKEN_KEY":            &c.Identity.TokenKey,
		"CSRF_KEY":             &c.CSRF.SecureKey,
		"DATABASE_DSN":         &c.Database.DSN,
		"SMTP_HOST":            &c.SMTP.Host,
		"SMTP_USERNAME":        &c.SMTP.Username,
		"SMTP_PASSWORD":        &c.SMTP.Password,
		"SMS_ENDPOINT":         &c.SMS.Endpoint,
		"SMS_TOKEN":            &c.SMS.Token,
		"REDIS_ADDR":           &c.Redis.Addr,
		"REDIS_PASSWORD":       &c.Redis.Password,
		"STATE_SECRET":         &c.Social.StateSecret,
		"GOOGLE_CLIENT_ID":     &c.Social.Google.ClientID,
		"GOOGLE_CLIENT_SECRET": &c.Social.Google.ClientSecret,
		"GITHUB_CLIENT_ID":     &c.Social.GitHub.ClientID,
		"GITHUB_CLIENT_SECRET": &c.Social.GitHub.ClientSecret,
	}
	for key, dst := range strs {
		if v, ok := lookup(EnvPrefix + key); ok {
			*dst = v
		}
	}

	bools := map[string]*bool{
		"DEBUG":         &c.Debug,
		"COOKIE_SECURE": &c.Session.CookieSecure,
	}
	for key, dst := range bools {
		v, ok := lookup(EnvPrefix + key)
		if !ok {
			continue
		}
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
		}
		*dst = b
	}

	return nil
}

// Validate checks the secrets and the settings the service cannot
// start without.
func (c *Config) Validate() error {
	if err := validation.ValidateStruct(&c.Session,
		validation.Field(&c.Session.SigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Session.ContextKey, validation.Required),
	); err != nil {
		return fmt.Errorf("config: session: %w", err)
	}

	if err := validation.ValidateStruct(&c.Identity,
		validation.Field(&c.Identity.TokenKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.Identity.ResetGateway, validation.In(auth.ResetGatewayEmail, auth.ResetGatewayPhone)),
		validation.Field(&c.Identity.MaxFailedAttempts, validation.Min(1)),
	); err != nil {
		return fmt.Errorf("config: identity: %w", err)
	}

	if err := validation.ValidateStruct(&c.CSRF,
		validation.Field(&c.CSRF.SecureKey, validation.Length(32, 0)),
	); err != nil {
		return fmt.Errorf("config: csrf: %w", err)
	}

	if err := validation.Validate(c.Stores, validation.Required); err != nil {
		return fmt.Errorf("config: stores: %w", err)
	}

	if c.Social.Google.Enabled() || c.Social.GitHub.Enabled() {
		if err := validation.Validate(c.Social.StateSecret, validation.Required); err != nil {
			return fmt.Errorf("config: social state_secret: %w", err)
		}
	}

	if c.Throttle.Interval <= 0 || c.Throttle.Burst <= 0 {
		return fmt.Errorf("config: throttle: burst and interval must be positive")
	}
	return nil
}
