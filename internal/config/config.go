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
	// DatabaseURL is the Postgres DSN. Required.
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// RedisAddr is the fast-store address (e.g. localhost:6379). Required.
	RedisAddr string `mapstructure:"REDIS_ADDR"`
	// RedisPassword is the optional fast-store password.
	RedisPassword string `mapstructure:"REDIS_PASSWORD"`
	// RedisDB selects the logical Redis database.
	RedisDB int `mapstructure:"REDIS_DB"`

	// TokenSecret is the master secret both signing keys are derived from.
	// Must be at least 32 bytes; enforced when the keys are derived at
	// server startup so migrate runs without it.
	TokenSecret string `mapstructure:"TOKEN_SECRET"`
	// TokenIssuer is the iss claim (e.g. "marketplace-auth").
	TokenIssuer string `mapstructure:"TOKEN_ISSUER"`
	// TokenAudience is the aud claim (e.g. "marketplace-api").
	TokenAudience string `mapstructure:"TOKEN_AUDIENCE"`
	// TokenAccessTTL is the access token lifetime (e.g. "15m").
	TokenAccessTTL string `mapstructure:"TOKEN_ACCESS_TTL"`
	// TokenRefreshTTL is the refresh token lifetime (e.g. "336h" for 14d).
	TokenRefreshTTL string `mapstructure:"TOKEN_REFRESH_TTL"`

	// MaxSessionsPerAccount caps concurrent sessions per account.
	MaxSessionsPerAccount int `mapstructure:"MAX_SESSIONS_PER_ACCOUNT"`
	// SessionSweepInterval is how often expired session rows are deleted (e.g. "1h").
	SessionSweepInterval string `mapstructure:"SESSION_SWEEP_INTERVAL"`

	// CodeSendMax bounds verification code sends per phone per hour.
	CodeSendMax int `mapstructure:"CODE_SEND_MAX"`
	// CodeCheckMax bounds verification attempts per phone per 15 minutes.
	CodeCheckMax int `mapstructure:"CODE_CHECK_MAX"`

	// TrustProxy enables X-Forwarded-For / X-Real-IP for client IPs. Turn on
	// only behind a proxy that strips client-supplied values.
	TrustProxy bool `mapstructure:"TRUST_PROXY"`

	// KafkaBrokers is a comma-separated broker list; empty disables events.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// KafkaTopic is the topic auth events are written to.
	KafkaTopic string `mapstructure:"KAFKA_TOPIC"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint; empty disables tracing export.
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext OTLP even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTLP_INSECURE"`

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
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_ADDR", "")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("TOKEN_SECRET", "")
	v.SetDefault("TOKEN_ISSUER", "marketplace-auth")
	v.SetDefault("TOKEN_AUDIENCE", "marketplace-api")
	v.SetDefault("TOKEN_ACCESS_TTL", "15m")
	v.SetDefault("TOKEN_REFRESH_TTL", "336h") // 14d
	v.SetDefault("MAX_SESSIONS_PER_ACCOUNT", 5)
	v.SetDefault("SESSION_SWEEP_INTERVAL", "1h")
	v.SetDefault("CODE_SEND_MAX", 5)
	v.SetDefault("CODE_CHECK_MAX", 10)
	v.SetDefault("TRUST_PROXY", false)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("KAFKA_TOPIC", "marketplace-auth-events")
	v.SetDefault("OTLP_ENDPOINT", "")
	v.SetDefault("OTLP_INSECURE", false)
	v.SetDefault("APP_ENV", "")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.MaxSessionsPerAccount < 1 {
		return nil, errors.New("config: MAX_SESSIONS_PER_ACCOUNT must be at least 1")
	}

	return &cfg, nil
}

// AccessTTL parses TokenAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.TokenAccessTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses TokenRefreshTTL as a time.Duration. Returns 336h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.TokenRefreshTTL)
	if err != nil || d <= 0 {
		return 336 * time.Hour
	}
	return d
}

// SweepInterval parses SessionSweepInterval. Returns 1h if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	d, err := time.ParseDuration(c.SessionSweepInterval)
	if err != nil || d <= 0 {
		return time.Hour
	}
	return d
}

// KafkaBrokersList returns broker addresses from the comma-separated config.
// Used to decide if the event stream is enabled (non-empty list) and to create the writer.
func (c *Config) KafkaBrokersList() []string {
	if c == nil || c.KafkaBrokers == "" {
		return nil
	}
	parts := strings.Split(c.KafkaBrokers, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if s := strings.TrimSpace(p); s != "" {
			out = append(out, s)
		}
	}
	return out
}
