package config

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	auth "github.com/goliatone/go-storefront-auth"
)

func env(values map[string]string) LookupFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestLoadFile(t *testing.T) {
	cfg, err := LoadWithEnv(filepath.Join("testdata", "storefront-auth.yaml"), env(nil))
	require.NoError(t, err)

	assert.True(t, cfg.Debug)
	assert.Equal(t, ":9090", cfg.Server.Addr)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, "/metrics", cfg.Server.MetricsPath)

	assert.Equal(t, 2, cfg.GetTokenExpiration())
	assert.Equal(t, 24*14, cfg.GetExtendedTokenDuration())
	assert.False(t, cfg.GetCookieSecure())
	assert.Equal(t, "storefront-auth", cfg.GetIssuer())

	require.Len(t, cfg.Stores, 2)
	assert.Equal(t, "shop.example.co.uk", cfg.Stores[1].Host)
	assert.Equal(t, []string{"us"}, cfg.Stores[1].TrustedStores)

	reg, err := cfg.Registry()
	require.NoError(t, err)
	assert.Equal(t, "uk", reg.Default().ID)

	assert.Equal(t, 15*time.Minute, cfg.Identity.LockoutDuration)
	assert.Equal(t, 3, cfg.Identity.MaxFailedAttempts)
	assert.Equal(t, auth.ResetGatewayPhone, cfg.Identity.ResetGateway)
	assert.Equal(t, 10, cfg.Identity.Password.RequiredLength)
	assert.True(t, cfg.Identity.Password.RequireDigit)
	assert.False(t, cfg.Identity.Password.RequireUppercase)
	assert.Equal(t, 24*time.Hour, cfg.Identity.TokenLifespan)

	assert.Equal(t, 465, cfg.SMTP.Port)
	assert.Equal(t, "GB", cfg.SMS.DefaultRegion)
	assert.True(t, cfg.Social.Google.Enabled())
	assert.False(t, cfg.Social.GitHub.Enabled())

	throttle := cfg.ThrottleConfig()
	assert.Equal(t, rate.Every(time.Minute), throttle.Rate)
	assert.Equal(t, 3, throttle.Burst)
	assert.Equal(t, 30*time.Minute, throttle.IdleTTL)

	assert.Len(t, cfg.StoreOptions(), 5)
}

func TestEnvOverrides(t *testing.T) {
	cfg, err := LoadWithEnv(filepath.Join("testdata", "storefront-auth.yaml"), env(map[string]string{
		"STOREFRONT_AUTH_SIGNING_KEY":   "ffffffffffffffffffffffffffffffff",
		"STOREFRONT_AUTH_SMTP_PASSWORD": "hunter2",
		"STOREFRONT_AUTH_DEBUG":         "false",
		"STOREFRONT_AUTH_COOKIE_SECURE": "1",
	}))
	require.NoError(t, err)

	assert.Equal(t, "ffffffffffffffffffffffffffffffff", cfg.GetSigningKey())
	assert.Equal(t, "hunter2", cfg.SMTP.Password)
	assert.False(t, cfg.Debug)
	assert.True(t, cfg.GetCookieSecure())
}

func TestLoadWithoutFile(t *testing.T) {
	cfg, err := LoadWithEnv("", env(map[string]string{
		"STOREFRONT_AUTH_SIGNING_KEY": "0123456789abcdef0123456789abcdef",
		"STOREFRONT_AUTH_TOKEN_KEY":   "0123456789abcdef0123456789abcdef",
	}))
	require.NoError(t, err)
	assert.Equal(t, "default", cfg.DefaultStore)
	assert.Equal(t, auth.ResetGatewayEmail, cfg.Identity.ResetGateway)
}

func TestValidationFailures(t *testing.T) {
	base := map[string]string{
		"STOREFRONT_AUTH_SIGNING_KEY": "0123456789abcdef0123456789abcdef",
		"STOREFRONT_AUTH_TOKEN_KEY":   "0123456789abcdef0123456789abcdef",
	}

	cases := []struct {
		name     string
		override map[string]string
		contains string
	}{
		{"missing signing key", map[string]string{"STOREFRONT_AUTH_SIGNING_KEY": ""}, "session"},
		{"short token key", map[string]string{"STOREFRONT_AUTH_TOKEN_KEY": "short"}, "identity"},
		{"short csrf key", map[string]string{"STOREFRONT_AUTH_CSRF_KEY": "short"}, "csrf"},
		{"social without state secret", map[string]string{"STOREFRONT_AUTH_GITHUB_CLIENT_ID": "gh"}, "state_secret"},
		{"bad bool", map[string]string{"STOREFRONT_AUTH_DEBUG": "maybe"}, "STOREFRONT_AUTH_DEBUG"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			values := map[string]string{}
			for k, v := range base {
				values[k] = v
			}
			for k, v := range tc.override {
				values[k] = v
			}

			_, err := LoadWithEnv("", env(values))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tc.contains)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := LoadWithEnv(filepath.Join("testdata", "missing.yaml"), env(nil))
	assert.Error(t, err)
}
