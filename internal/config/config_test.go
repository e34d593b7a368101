package config

import (
	"reflect"
	"strings"
	"testing"
	"time"
)

var allKeys = []string{
	"HTTP_ADDR", "GRPC_ADDR", "DATABASE_URL", "JWT_PRIVATE_KEY", "JWT_PUBLIC_KEY", "JWT_ISSUER",
	"JWT_AUDIENCE", "JWT_ACCESS_TTL", "SWEEP_INTERVAL", "ROOM_LIVENESS_INTERVAL", "ROOM_SEND_BUFFER",
	"ROOM_MAX_AUTH_ATTEMPTS", "ROOM_AUTH_TIMEOUT", "ROOM_ALLOWED_ORIGINS", "APP_ENV", "OTEL_EXPORTER_OTLP_ENDPOINT",
	"OTEL_EXPORTER_OTLP_INSECURE", "OTEL_SERVICE_NAME", "KAFKA_BROKERS", "NOTIFICATION_KAFKA_TOPIC",
	"KAFKA_GROUP_ID",
}

// clearEnv blanks every key Load reads; viper treats empty variables as unset.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range allKeys {
		t.Setenv(k, "")
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.GRPCAddr != ":9090" {
		t.Errorf("addrs = %q, %q", cfg.HTTPAddr, cfg.GRPCAddr)
	}
	if cfg.JWTIssuer != "emeet-auth" || cfg.JWTAudience != "emeet-api" {
		t.Errorf("jwt = %q, %q", cfg.JWTIssuer, cfg.JWTAudience)
	}
	if cfg.AccessTTL() != 15*time.Minute {
		t.Errorf("AccessTTL = %v", cfg.AccessTTL())
	}
	if cfg.SweepInterval() != 30*time.Second {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval())
	}
	if cfg.RoomLivenessInterval() != 15*time.Second {
		t.Errorf("RoomLivenessInterval = %v", cfg.RoomLivenessInterval())
	}
	if cfg.RoomAuthTimeout() != time.Minute {
		t.Errorf("RoomAuthTimeout = %v", cfg.RoomAuthTimeout())
	}
	if cfg.RoomSendBuffer != 64 || cfg.RoomMaxAuthAttempts != 5 {
		t.Errorf("room = buffer %d, attempts %d", cfg.RoomSendBuffer, cfg.RoomMaxAuthAttempts)
	}
	if cfg.OTelServiceName != "emeet" || cfg.OTelInsecure {
		t.Errorf("otel = %q insecure=%v", cfg.OTelServiceName, cfg.OTelInsecure)
	}
	if cfg.NotificationTopic != "emeet-notifications" {
		t.Errorf("NotificationTopic = %q", cfg.NotificationTopic)
	}
	if cfg.KafkaBrokersList() != nil || cfg.AllowedOrigins() != nil {
		t.Error("lists should be empty by default")
	}
}

func TestLoad_EnvVarOverride(t *testing.T) {
	clearEnv(t)
	t.Setenv("HTTP_ADDR", ":8181")
	t.Setenv("SWEEP_INTERVAL", "45s")
	t.Setenv("ROOM_MAX_AUTH_ATTEMPTS", "0")
	t.Setenv("OTEL_EXPORTER_OTLP_INSECURE", "true")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,,")
	t.Setenv("ROOM_ALLOWED_ORIGINS", "app.example.com,*.example.org")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8181" {
		t.Errorf("HTTPAddr = %q", cfg.HTTPAddr)
	}
	if cfg.SweepInterval() != 45*time.Second {
		t.Errorf("SweepInterval = %v", cfg.SweepInterval())
	}
	if cfg.RoomMaxAuthAttempts != 0 {
		t.Errorf("RoomMaxAuthAttempts = %d, want 0", cfg.RoomMaxAuthAttempts)
	}
	if !cfg.OTelInsecure {
		t.Error("OTelInsecure = false")
	}
	if got, want := cfg.KafkaBrokersList(), []string{"k1:9092", "k2:9092"}; !reflect.DeepEqual(got, want) {
		t.Errorf("KafkaBrokersList = %v, want %v", got, want)
	}
	if got := cfg.AllowedOrigins(); len(got) != 2 || got[1] != "*.example.org" {
		t.Errorf("AllowedOrigins = %v", got)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"negative attempts", map[string]string{"ROOM_MAX_AUTH_ATTEMPTS": "-1"}, "ROOM_MAX_AUTH_ATTEMPTS"},
		{"zero buffer", map[string]string{"ROOM_SEND_BUFFER": "0"}, "ROOM_SEND_BUFFER"},
		{"production without keys", map[string]string{"APP_ENV": "production", "DATABASE_URL": "postgres://x"}, "JWT_PUBLIC_KEY"},
		{"production without database", map[string]string{"APP_ENV": "Production", "JWT_PUBLIC_KEY": "k"}, "DATABASE_URL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := Load()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("Load error = %v, want mention of %s", err, tt.want)
			}
		})
	}
}

func TestDurations_FallBack(t *testing.T) {
	c := &Config{JWTAccessTTL: "soon", SweepIntervalRaw: "-5s", RoomLivenessRaw: "0", RoomAuthTimeoutRaw: "later"}
	if c.AccessTTL() != 15*time.Minute || c.SweepInterval() != 30*time.Second || c.RoomLivenessInterval() != 15*time.Second {
		t.Errorf("fallbacks = %v %v %v", c.AccessTTL(), c.SweepInterval(), c.RoomLivenessInterval())
	}
	if c.RoomAuthTimeout() != time.Minute {
		t.Errorf("RoomAuthTimeout fallback = %v", c.RoomAuthTimeout())
	}
}

func TestKafkaBrokersList_NilConfig(t *testing.T) {
	var c *Config
	if c.KafkaBrokersList() != nil || c.AllowedOrigins() != nil {
		t.Error("nil config should yield nil lists")
	}
}
