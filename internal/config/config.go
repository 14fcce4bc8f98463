// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP server listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// BaseURL is the externally visible base URL used to build magic-link callback URLs (e.g. https://studyhub.example.com).
	BaseURL string `mapstructure:"BASE_URL"`
	// FrontendURL is the web app origin magic-link redirects are allowed to target (e.g. https://app.studyhub.example.com).
	FrontendURL string `mapstructure:"FRONTEND_URL"`
	// DatabaseURL is the Postgres DSN for users, sessions, and audit logs.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// RedisAddr is the address of the distributed cache tier (host:port). Empty disables Redis; the cache runs local-only.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the Redis AUTH password; empty for none.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB is the Redis logical database number.
	RedisDB int `mapstructure:"REDIS_DB"`

	// JWTSecret is the shared HMAC secret signing both access and refresh tokens. Required.
	JWTSecret string `mapstructure:"JWT_SECRET"`
	// JWTIssuer is the iss claim (e.g. "studyhub-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`
	// JWTRefreshTTL is the refresh token lifetime (e.g. "168h").
	JWTRefreshTTL string `mapstructure:"JWT_REFRESH_TTL"`
	// TokenRefreshThreshold is the remaining access-token lifetime below which clients are advised to refresh (e.g. "5m").
	TokenRefreshThreshold string `mapstructure:"TOKEN_REFRESH_THRESHOLD"`

	// SessionLimit is the max active sessions per user; creating one past the limit evicts the least-recently-active.
	SessionLimit int `mapstructure:"SESSION_LIMIT"`
	// MagicLinkTTL is the magic-link token lifetime (e.g. "10m").
	MagicLinkTTL string `mapstructure:"MAGIC_LINK_TTL"`
	// BcryptCost is the bcrypt cost factor (4–31); default 12. Placeholder passwords for magic-link accounts use it too.
	BcryptCost int `mapstructure:"BCRYPT_COST"`

	// SMTPHost, SMTPPort, SMTPUsername, SMTPPassword configure the outbound mail relay for magic-link delivery.
	SMTPHost     string `mapstructure:"SMTP_HOST"`
	SMTPPort     string `mapstructure:"SMTP_PORT"`
	SMTPUsername string `mapstructure:"SMTP_USERNAME"`
	SMTPPassword string `mapstructure:"SMTP_PASSWORD"`

	// CacheMaxItems caps the local cache tier's entry count.
	CacheMaxItems int `mapstructure:"CACHE_MAX_ITEMS"`
	// CacheMaxBytes caps the local cache tier's approximate memory use.
	CacheMaxBytes int `mapstructure:"CACHE_MAX_BYTES"`

	// EventsKafkaBrokers is a comma-separated list of Kafka broker addresses; empty disables the auth event stream.
	EventsKafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// EventsKafkaTopic is the Kafka topic for auth events (default studyhub-auth-events).
	EventsKafkaTopic string `mapstructure:"AUTH_EVENTS_TOPIC"`

	// OTLPEndpoint is the OTLP gRPC endpoint for traces/metrics/logs; empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP export even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("BASE_URL", "http://localhost:8080")
	v.SetDefault("FRONTEND_URL", "http://localhost:3000")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_ISSUER", "studyhub-auth")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("JWT_REFRESH_TTL", "168h") // 7d
	v.SetDefault("TOKEN_REFRESH_THRESHOLD", "5m")
	v.SetDefault("SESSION_LIMIT", 5)
	v.SetDefault("MAGIC_LINK_TTL", "10m")
	v.SetDefault("BCRYPT_COST", 12)
	v.SetDefault("SMTP_HOST", "")
	v.SetDefault("SMTP_PORT", "465")
	v.SetDefault("SMTP_USERNAME", "")
	v.SetDefault("SMTP_PASSWORD", "")
	v.SetDefault("CACHE_MAX_ITEMS", 10000)
	v.SetDefault("CACHE_MAX_BYTES", 64<<20)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("AUTH_EVENTS_TOPIC", "studyhub-auth-events")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("config: JWT_SECRET must be set")
	}

	if cfg.SessionLimit <= 0 {
		cfg.SessionLimit = 5
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 12
	}
	if cfg.BcryptCost < 4 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 4 and 31")
	}

	return &cfg, nil
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses JWTRefreshTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.JWTRefreshTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// RefreshThreshold parses TokenRefreshThreshold as a time.Duration. Returns 5m if unset or invalid.
func (c *Config) RefreshThreshold() time.Duration {
	d, err := time.ParseDuration(c.TokenRefreshThreshold)
	if err != nil || d <= 0 {
		return 5 * time.Minute
	}
	return d
}

// MagicLinkLifetime parses MagicLinkTTL as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) MagicLinkLifetime() time.Duration {
	d, err := time.ParseDuration(c.MagicLinkTTL)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// EventsKafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// Used to decide if the auth event stream is enabled (non-empty list) and to create the producer.
func (c *Config) EventsKafkaBrokersList() []string {
	if c == nil || c.EventsKafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.EventsKafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
