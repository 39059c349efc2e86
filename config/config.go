package config

import (
	"time"

	"golang.org/x/time/rate"

	auth "github.com/goliatone/go-storefront-auth"
	"github.com/goliatone/go-storefront-auth/notify"
	"github.com/goliatone/go-storefront-auth/store"
	"github.com/goliatone/go-storefront-auth/storefront"
)

// Config is the storefront auth service configuration
type Config struct {
	Debug        bool               `yaml:"debug"`
	Server       Server             `yaml:"server"`
	Session      Session            `yaml:"session"`
	DefaultStore string             `yaml:"default_store"`
	Stores       []storefront.Store `yaml:"stores"`
	Database     Database           `yaml:"database"`
	Identity     Identity           `yaml:"identity"`
	SMTP         notify.SMTPConfig  `yaml:"smtp"`
	SMS          notify.SMSConfig   `yaml:"sms"`
	Throttle     Throttle           `yaml:"throttle"`
	Redis        Redis              `yaml:"redis"`
	Social       Social             `yaml:"social"`
	CSRF         CSRF               `yaml:"csrf"`
}

type Server struct {
	Addr            string        `yaml:"addr"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	MetricsPath     string        `yaml:"metrics_path"`
}

// Session configures the JWT session cookie. Durations are hours.
type Session struct {
	SigningKey            string   `yaml:"signing_key"`
	ContextKey            string   `yaml:"context_key"`
	TokenExpiration       int      `yaml:"token_expiration"`
	ExtendedTokenDuration int      `yaml:"extended_token_duration"`
	Issuer                string   `yaml:"issuer"`
	Audience              []string `yaml:"audience"`
	RejectedRouteKey      string   `yaml:"rejected_route_key"`
	CookieSecure          bool     `yaml:"cookie_secure"`
}

type Database struct {
	DSN string `yaml:"dsn"`
}

// Identity configures the credential store and the account flows
type Identity struct {
	TokenKey              string                `yaml:"token_key"`
	TokenLifespan         time.Duration         `yaml:"token_lifespan"`
	CodeStep              time.Duration         `yaml:"code_step"`
	HashCost              int                   `yaml:"hash_cost"`
	MaxFailedAttempts     int                   `yaml:"max_failed_attempts"`
	LockoutDuration       time.Duration         `yaml:"lockout_duration"`
	Password              store.PasswordOptions `yaml:"password"`
	ResetGateway          auth.ResetGateway     `yaml:"reset_gateway"`
	SendEmailConfirmation bool                  `yaml:"send_email_confirmation"`
}

// Throttle allows Burst messages per recipient, refilled every Interval
type Throttle struct {
	Burst    int           `yaml:"burst"`
	Interval time.Duration `yaml:"interval"`
	IdleTTL  time.Duration `yaml:"idle_ttl"`
}

type Redis struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Channel  string `yaml:"channel"`
}

type Social struct {
	StateSecret          string        `yaml:"state_secret"`
	StateTTL             time.Duration `yaml:"state_ttl"`
	TrustUnverifiedEmail bool          `yaml:"trust_unverified_email"`
	Google               OAuthClient   `yaml:"google"`
	GitHub               OAuthClient   `yaml:"github"`
}

// OAuthClient is one provider registration, disabled without a client id
type OAuthClient struct {
	ClientID     string   `yaml:"client_id"`
	ClientSecret string   `yaml:"client_secret"`
	Scopes       []string `yaml:"scopes"`
	JWKSURL      string   `yaml:"jwks_url"`
}

func (o OAuthClient) Enabled() bool {
	return o.ClientID != ""
}

type CSRF struct {
	SecureKey   string        `yaml:"secure_key"`
	Expiration  time.Duration `yaml:"expiration"`
	ExemptPaths []string      `yaml:"exempt_paths"`
}

// Defaults returns a config usable for local development once the
// secrets are provided.
func Defaults() *Config {
	return &Config{
		Server: Server{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			MetricsPath:     "/metrics",
		},
		Session: Session{
			ContextKey:            "user",
			TokenExpiration:       24,
			ExtendedTokenDuration: 24 * 14,
			Issuer:                "storefront-auth",
			Audience:              []string{"storefront"},
			RejectedRouteKey:      "rejected_route",
			CookieSecure:          true,
		},
		DefaultStore: "default",
		Stores: []storefront.Store{{
			ID:              "default",
			Name:            "Storefront",
			DefaultLanguage: "en-US",
			Languages:       []string{"en-US"},
		}},
		Database: Database{DSN: "file:storefront-auth.db?cache=shared"},
		Identity: Identity{
			TokenLifespan:     24 * time.Hour,
			CodeStep:          5 * time.Minute,
			HashCost:          store.DefaultHashCost,
			MaxFailedAttempts: 5,
			LockoutDuration:   5 * time.Minute,
			Password:          store.DefaultPasswordOptions(),
			ResetGateway:      auth.ResetGatewayEmail,
		},
		SMTP: notify.SMTPConfig{
			Port:    587,
			Timeout: 10 * time.Second,
		},
		SMS: notify.SMSConfig{
			DefaultRegion: "US",
			Timeout:       10 * time.Second,
		},
		Throttle: Throttle{
			Burst:    5,
			Interval: 2 * time.Minute,
			IdleTTL:  30 * time.Minute,
		},
		Redis: Redis{Channel: "storefront.auth.events"},
		Social: Social{
			StateTTL: 10 * time.Minute,
		},
		CSRF: CSRF{
			Expiration: 24 * time.Hour,
		},
	}
}

// ThrottleConfig converts the throttle section for the notify package
func (c *Config) ThrottleConfig() notify.ThrottleConfig {
	return notify.ThrottleConfig{
		Rate:    rate.Every(c.Throttle.Interval),
		Burst:   c.Throttle.Burst,
		IdleTTL: c.Throttle.IdleTTL,
	}
}

// StoreOptions converts the identity section for the credential store
func (c *Config) StoreOptions() []store.Option {
	return []store.Option{
		store.WithPasswordOptions(c.Identity.Password),
		store.WithHashCost(c.Identity.HashCost),
		store.WithLockout(c.Identity.MaxFailedAttempts, c.Identity.LockoutDuration),
		store.WithTokenLifespan(c.Identity.TokenLifespan),
		store.WithCodeStep(c.Identity.CodeStep),
	}
}

// Registry builds the store registry
func (c *Config) Registry() (*storefront.Registry, error) {
	return storefront.NewRegistry(c.DefaultStore, c.Stores...)
}

var _ auth.Config = (*Config)(nil)

func (c *Config) GetSigningKey() string {
	return c.Session.SigningKey
}

func (c *Config) GetContextKey() string {
	return c.Session.ContextKey
}

func (c *Config) GetTokenExpiration() int {
	return c.Session.TokenExpiration
}

func (c *Config) GetExtendedTokenDuration() int {
	return c.Session.ExtendedTokenDuration
}

func (c *Config) GetIssuer() string {
	return c.Session.Issuer
}

func (c *Config) GetAudience() []string {
	return c.Session.Audience
}

func (c *Config) GetRejectedRouteKey() string {
	return c.Session.RejectedRouteKey
}

func (c *Config) GetCookieSecure() bool {
	return c.Session.CookieSecure
}
