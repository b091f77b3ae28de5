package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Stripe   StripeConfig
	Email    EmailConfig
	Currency CurrencyConfig
	Storage  StorageConfig
	JWT      JWTConfig
	Checkout CheckoutConfig
}

type ServerConfig struct {
	Port           string
	RequestTimeout time.Duration
	AllowOrigins   string
	RateLimit      int
	// AdminToken guards staff-only routes; empty disables them.
	AdminToken string
}

type DatabaseConfig struct {
	URL string
	// Seed loads the starter course catalog on boot.
	Seed bool
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	// DefaultTrialDays applies when a subscription request carries none.
	DefaultTrialDays int
}

type EmailConfig struct {
	ResendAPIKey string
	From         string
}

type CurrencyConfig struct {
	ZeroDecimal     []string
	RatesURL        string
	RatesTTL        time.Duration
	RatesTimeout    time.Duration
	GeoTimeout      time.Duration
	IPAPIURL        string
	IPAPIComURL     string
	IPWhoisURL      string
	PromoMultiplier float64
	PromoEndsAt     time.Time
}

type StorageConfig struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	PublicURL       string
}

type JWTConfig struct {
	Secret string
	TTL    time.Duration
}

type CheckoutConfig struct {
	SuccessURL string
	CancelURL  string
	// PendingTTL is how long an unpaid pending enrollment survives the sweeper.
	PendingTTL time.Duration
}

func Load() *Config {
	godotenv.Load() // .env is optional

	return &Config{
		Env: getEnv("APP_ENV", "development"),
		Server: ServerConfig{
			Port:           getEnv("PORT", "3000"),
			RequestTimeout: getEnvAsDuration("REQUEST_TIMEOUT", 15*time.Second),
			AllowOrigins:   getEnv("CORS_ALLOW_ORIGINS", "*"),
			RateLimit:      getEnvAsInt("RATE_LIMIT_PER_MINUTE", 120),
			AdminToken:     getEnv("ADMIN_TOKEN", ""),
		},
		Database: DatabaseConfig{
			URL:  getEnv("DATABASE_URL", ""),
			Seed: strings.EqualFold(getEnv("SEED_COURSES", ""), "true"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
		},
		Stripe: StripeConfig{
			SecretKey:        getEnv("STRIPE_SECRET_KEY", ""),
			WebhookSecret:    getEnv("STRIPE_WEBHOOK_SECRET", ""),
			DefaultTrialDays: getEnvAsInt("DEFAULT_TRIAL_DAYS", 0),
		},
		Email: EmailConfig{
			ResendAPIKey: getEnv("RESEND_API_KEY", ""),
			From:         getEnv("EMAIL_FROM", "LiveMentor <noreply@livementor.app>"),
		},
		Currency: CurrencyConfig{
			ZeroDecimal:     getEnvAsList("CURRENCY_ZERO_DECIMAL", []string{"NGN", "KES", "JPY"}),
			RatesURL:        getEnv("EXCHANGE_RATES_URL", "https://open.er-api.com/v6/latest/USD"),
			RatesTTL:        getEnvAsDuration("EXCHANGE_RATES_TTL", 6*time.Hour),
			RatesTimeout:    getEnvAsDuration("EXCHANGE_RATES_TIMEOUT", 5*time.Second),
			GeoTimeout:      getEnvAsDuration("GEOIP_TIMEOUT", 2*time.Second),
			IPAPIURL:        getEnv("GEOIP_IPAPI_URL", "https://ipapi.co"),
			IPAPIComURL:     getEnv("GEOIP_IPAPICOM_URL", "http://ip-api.com"),
			IPWhoisURL:      getEnv("GEOIP_IPWHOIS_URL", "https://ipwho.is"),
			PromoMultiplier: getEnvAsFloat("LAUNCH_SPECIAL_MULTIPLIER", 0.5),
			PromoEndsAt:     getEnvAsTime("LAUNCH_SPECIAL_ENDS_AT", time.Time{}),
		},
		Storage: StorageConfig{
			AccountID:       getEnv("R2_ACCOUNT_ID", ""),
			AccessKeyID:     getEnv("R2_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("R2_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("R2_BUCKET_NAME", ""),
			PublicURL:       getEnv("R2_PUBLIC_URL", ""),
		},
		JWT: JWTConfig{
			Secret: getEnv("JWT_SECRET", "your-secret-key"),
			TTL:    getEnvAsDuration("JWT_TTL", 72*time.Hour),
		},
		Checkout: CheckoutConfig{
			SuccessURL: getEnv("CHECKOUT_SUCCESS_URL", "http://localhost:5173/enroll/success?session_id={CHECKOUT_SESSION_ID}"),
			CancelURL:  getEnv("CHECKOUT_CANCEL_URL", "http://localhost:5173/enroll/cancel"),
			PendingTTL: getEnvAsDuration("PENDING_ENROLLMENT_TTL", 48*time.Hour),
		},
	}
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// StorageEnabled reports whether receipt archiving is configured.
func (c *Config) StorageEnabled() bool {
	return c.Storage.AccountID != "" && c.Storage.AccessKeyID != "" && c.Storage.Bucket != ""
}

// Validate reports every missing required setting at once.
func (c *Config) Validate() error {
	var missing []string
	if c.Database.URL == "" {
		missing = append(missing, "DATABASE_URL")
	}
	if c.Stripe.SecretKey == "" {
		missing = append(missing, "STRIPE_SECRET_KEY")
	}
	if c.IsProduction() {
		if c.Stripe.WebhookSecret == "" {
			missing = append(missing, "STRIPE_WEBHOOK_SECRET")
		}
		if c.JWT.Secret == "" || c.JWT.Secret == "your-secret-key" {
			missing = append(missing, "JWT_SECRET")
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required configuration: %s", strings.Join(missing, ", "))
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v, err := strconv.Atoi(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	if v, err := strconv.ParseFloat(getEnv(key, ""), 64); err == nil {
		return v
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(key, "")); err == nil {
		return v
	}
	return defaultValue
}

// getEnvAsTime accepts RFC 3339 timestamps or plain dates (end of day UTC).
func getEnvAsTime(key string, defaultValue time.Time) time.Time {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t
	}
	if d, err := time.Parse("2006-01-02", raw); err == nil {
		return d.Add(24*time.Hour - time.Second)
	}
	return defaultValue
}

func getEnvAsList(key string, defaultValue []string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, strings.ToUpper(p))
		}
	}
	return out
}
