package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (FOODCART_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (FOODCART_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	MaxConns    int32  `default:"10" usage:"Maximum PostgreSQL pool connections" flag:"max-conns"`
	JWT         JWTConfig
	Redis       RedisConfig
	Pricing     PricingConfig
	Coupons     CouponsConfig
	Notify      NotifyConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// JWTConfig controls bearer token verification.
type JWTConfig struct {
	Secret string        `usage:"HS256 signing secret (FOODCART_JWT_SECRET)" flag:"jwt-secret"`
	Issuer string        `default:"foodcart" usage:"Token issuer"`
	TTL    time.Duration `default:"24h" usage:"Lifetime of issued tokens"`
}

// RedisConfig enables checkout idempotency when Addr is set.
type RedisConfig struct {
	Addr           string        `default:"" usage:"Redis address; empty disables Idempotency-Key support"`
	Password       string        `default:"" usage:"Redis password"`
	DB             int           `default:"0" usage:"Redis database"`
	IdempotencyTTL time.Duration `default:"24h" usage:"How long idempotency keys are remembered" flag:"idempotency-ttl"`
}

// PricingConfig holds per-category discounts as category=percent entries.
type PricingConfig struct {
	CategoryDiscounts []string `default:"" usage:"Category discounts, e.g. desserts=10,beverages=5" flag:"category-discounts"`
}

// CouponsConfig selects the coupon registry.
type CouponsConfig struct {
	Source string `default:"static" usage:"Coupon registry: static or postgres"`
}

// NotifyConfig selects the notification transport.
type NotifyConfig struct {
	Mode    string        `default:"log" usage:"Notification transport: log or smtp"`
	Timeout time.Duration `default:"10s" usage:"Per-notification delivery timeout" flag:"notify-timeout"`
	SMTP    SMTPConfig
}

// SMTPConfig configures the SMTP relay used when Notify.Mode is smtp.
type SMTPConfig struct {
	Host     string `default:"" usage:"SMTP relay host"`
	Port     int    `default:"587" usage:"SMTP relay port"`
	Username string `default:"" usage:"SMTP username"`
	Password string `default:"" usage:"SMTP password"`
	From     string `default:"" usage:"Sender address"`
}

// RateLimitConfig controls the per-client token bucket.
type RateLimitConfig struct {
	Rate  float64 `default:"10" usage:"Sustained requests per second per client"`
	Burst int     `default:"50" usage:"Burst size per client"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		Files: []string{"config.yaml", "/etc/foodcart/config.yaml"},
	})
}

func loadConfig(base aconfig.Config) (*Config, error) {
	var cfg Config
	base.EnvPrefix = "FOODCART"
	base.FileDecoders = map[string]aconfig.FileDecoder{
		".yaml": aconfigyaml.New(),
	}
	if err := aconfig.LoaderFor(&cfg, base).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set FOODCART_DATABASE_URL or DATABASE_URL")
	case c.JWT.Secret == "":
		return errors.New("jwt secret is required: set FOODCART_JWT_SECRET")
	case c.MaxConns <= 0:
		return errors.Errorf("max conns must be positive, got %d", c.MaxConns)
	case c.RateLimit.Rate <= 0:
		return errors.Errorf("rate limit must be positive, got %v", c.RateLimit.Rate)
	}
	switch c.Coupons.Source {
	case "static", "postgres":
	default:
		return errors.Errorf("unknown coupon source %q", c.Coupons.Source)
	}
	switch c.Notify.Mode {
	case "log":
	case "smtp":
		if c.Notify.SMTP.Host == "" || c.Notify.SMTP.From == "" {
			return errors.New("smtp notifications need host and sender")
		}
	default:
		return errors.Errorf("unknown notify mode %q", c.Notify.Mode)
	}
	return nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL and PORT to the
// application's FOODCART_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
