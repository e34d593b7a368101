// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address of the HTTP server (JSON API, room websockets, /healthz).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC health server.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the Postgres DSN. Empty runs on in-memory stores (development only).
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA, ECDSA or Ed25519) or path to file. Empty
	// means tokens are validated but not issued.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	// JWTIssuer is the iss claim (e.g. "emeet-auth").
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim (e.g. "emeet-api").
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// JWTAccessTTL is the access token lifetime (e.g. "15m").
	JWTAccessTTL string `mapstructure:"JWT_ACCESS_TTL"`

	// SweepIntervalRaw is the period of the status and deadline sweeps (e.g. "30s").
	SweepIntervalRaw string `mapstructure:"SWEEP_INTERVAL"`
	// RoomLivenessRaw is the per-connection expiry check and ping period (e.g. "15s").
	RoomLivenessRaw string `mapstructure:"ROOM_LIVENESS_INTERVAL"`
	// RoomSendBuffer is the per-connection outbound queue length.
	RoomSendBuffer int `mapstructure:"ROOM_SEND_BUFFER"`
	// RoomMaxAuthAttempts closes a connection after this many wrong passwords; 0 means unlimited.
	RoomMaxAuthAttempts int `mapstructure:"ROOM_MAX_AUTH_ATTEMPTS"`
	// RoomAuthTimeoutRaw bounds how long a connection may take to send its password (e.g. "1m").
	RoomAuthTimeoutRaw string `mapstructure:"ROOM_AUTH_TIMEOUT"`
	// RoomAllowedOrigins is a comma-separated list of origin host patterns for websocket upgrades.
	RoomAllowedOrigins string `mapstructure:"ROOM_ALLOWED_ORIGINS"`

	// Env is the application environment (e.g. "development", "production").
	Env string `mapstructure:"APP_ENV"`

	// OTelEndpoint is the OTLP gRPC collector (e.g. "localhost:4317"). Empty disables export.
	OTelEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTelInsecure forces a plaintext connection to the collector.
	OTelInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// OTelServiceName is the service.name resource attribute.
	OTelServiceName string `mapstructure:"OTEL_SERVICE_NAME"`

	// KafkaBrokers is a comma-separated list of Kafka broker addresses. Empty logs notifications instead.
	KafkaBrokers string `mapstructure:"KAFKA_BROKERS"`
	// NotificationTopic is the Kafka topic for participant notifications.
	NotificationTopic string `mapstructure:"NOTIFICATION_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group of the notification worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
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
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "emeet-auth")
	v.SetDefault("JWT_AUDIENCE", "emeet-api")
	v.SetDefault("JWT_ACCESS_TTL", "15m")
	v.SetDefault("SWEEP_INTERVAL", "30s")
	v.SetDefault("ROOM_LIVENESS_INTERVAL", "15s")
	v.SetDefault("ROOM_SEND_BUFFER", 64)
	v.SetDefault("ROOM_MAX_AUTH_ATTEMPTS", 5)
	v.SetDefault("ROOM_AUTH_TIMEOUT", "1m")
	v.SetDefault("ROOM_ALLOWED_ORIGINS", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "emeet")
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFICATION_KAFKA_TOPIC", "emeet-notifications")
	v.SetDefault("KAFKA_GROUP_ID", "emeet-notification-worker")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if cfg.GRPCAddr == "" {
		return nil, errors.New("config: GRPC_ADDR must be set")
	}
	if cfg.JWTPublicKey == "" && cfg.JWTPrivateKey == "" && cfg.IsProduction() {
		return nil, errors.New("config: JWT_PUBLIC_KEY must be set when APP_ENV=production")
	}
	if cfg.DatabaseURL == "" && cfg.IsProduction() {
		return nil, errors.New("config: DATABASE_URL must be set when APP_ENV=production")
	}
	if cfg.RoomSendBuffer <= 0 {
		return nil, fmt.Errorf("config: ROOM_SEND_BUFFER must be positive, got %d", cfg.RoomSendBuffer)
	}
	if cfg.RoomMaxAuthAttempts < 0 {
		return nil, fmt.Errorf("config: ROOM_MAX_AUTH_ATTEMPTS must not be negative, got %d", cfg.RoomMaxAuthAttempts)
	}

	return &cfg, nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// AccessTTL parses JWTAccessTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	return parseDuration(c.JWTAccessTTL, 15*time.Minute)
}

// SweepInterval returns the sweep period. Returns 30s if unset or invalid.
func (c *Config) SweepInterval() time.Duration {
	return parseDuration(c.SweepIntervalRaw, 30*time.Second)
}

// RoomLivenessInterval returns the liveness period. Returns 15s if unset or invalid.
func (c *Config) RoomLivenessInterval() time.Duration {
	return parseDuration(c.RoomLivenessRaw, 15*time.Second)
}

// RoomAuthTimeout returns the password phase limit. Returns 1m if unset or invalid.
func (c *Config) RoomAuthTimeout() time.Duration {
	return parseDuration(c.RoomAuthTimeoutRaw, time.Minute)
}

func parseDuration(s string, def time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
// An empty list means notifications are logged instead of published.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

// AllowedOrigins returns the websocket origin patterns.
func (c *Config) AllowedOrigins() []string {
	if c == nil {
		return nil
	}
	return splitList(c.RoomAllowedOrigins)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if v := strings.TrimSpace(p); v != "" {
			out = append(out, v)
		}
	}
	return out
}
