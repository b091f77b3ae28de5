package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("LAUNCH_SPECIAL_ENDS_AT", "")

	cfg := Load()

	assert.Equal(t, "3000", cfg.Server.Port)
	assert.Equal(t, 15*time.Second, cfg.Server.RequestTimeout)
	assert.Equal(t, []string{"NGN", "KES", "JPY"}, cfg.Currency.ZeroDecimal)
	assert.Equal(t, 0.5, cfg.Currency.PromoMultiplier)
	assert.True(t, cfg.Currency.PromoEndsAt.IsZero())
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "8080")
	t.Setenv("GEOIP_TIMEOUT", "750ms")
	t.Setenv("CURRENCY_ZERO_DECIMAL", "ngn, jpy ,")
	t.Setenv("LAUNCH_SPECIAL_MULTIPLIER", "0.8")
	t.Setenv("LAUNCH_SPECIAL_ENDS_AT", "2026-12-31")
	t.Setenv("REDIS_DB", "not-a-number")

	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, 750*time.Millisecond, cfg.Currency.GeoTimeout)
	assert.Equal(t, []string{"NGN", "JPY"}, cfg.Currency.ZeroDecimal)
	assert.Equal(t, 0.8, cfg.Currency.PromoMultiplier)
	assert.Equal(t, time.Date(2026, 12, 31, 23, 59, 59, 0, time.UTC), cfg.Currency.PromoEndsAt)
	assert.Equal(t, 0, cfg.Redis.DB)
}

func TestValidate(t *testing.T) {
	cfg := &Config{Env: "production", JWT: JWTConfig{Secret: "your-secret-key"}}
	err := cfg.Validate()
	require.Error(t, err)
	for _, key := range []string{"DATABASE_URL", "STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "JWT_SECRET"} {
		assert.Contains(t, err.Error(), key)
	}

	cfg = &Config{
		Env:      "development",
		Database: DatabaseConfig{URL: "postgres://x"},
		Stripe:   StripeConfig{SecretKey: "sk_test"},
	}
	assert.NoError(t, cfg.Validate())
}
