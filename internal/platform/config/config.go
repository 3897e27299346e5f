package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process-level configuration. FromEnv builds it from
// environment variables so main stays lean.
type Server struct {
	Addr          string
	JWTSigningKey string
	JWTIssuer     string
	JWTAudience   string

	// PublicPrefixes are path prefixes that bypass credential verification.
	PublicPrefixes []string

	// VerifyTimeout bounds identity-provider verification per request.
	VerifyTimeout time.Duration

	// ResetTokenTTL is the validity window for password-reset tokens.
	ResetTokenTTL time.Duration

	// AuditBuffer is the capacity of the audit inbox channel.
	AuditBuffer int
	// AuditQueryWindow bounds how many recent entries audit queries scan.
	AuditQueryWindow int

	// SubscriberBuffer is the per-subscriber notification channel capacity.
	SubscriberBuffer int

	Redis    RedisConfig
	Postgres PostgresConfig
	Kafka    KafkaConfig
}

// RedisConfig holds connection settings for the Redis-backed reset token store.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// PostgresConfig holds connection settings for the audit store.
type PostgresConfig struct {
	URL string
}

// KafkaConfig configures the optional audit mirror. Empty Brokers disables it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	cfg := Server{
		Addr:             envOr("MEDIGATE_ADDR", ":8080"),
		JWTSigningKey:    envOr("JWT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		JWTIssuer:        envOr("JWT_ISSUER", "medigate"),
		JWTAudience:      envOr("JWT_AUDIENCE", "medigate-clients"),
		PublicPrefixes:   splitList(envOr("PUBLIC_PREFIXES", "/healthz,/metrics,/auth/reset")),
		VerifyTimeout:    envDuration("VERIFY_TIMEOUT", 5*time.Second),
		ResetTokenTTL:    envDuration("RESET_TOKEN_TTL", 30*time.Minute),
		AuditBuffer:      envInt("AUDIT_BUFFER", 1024),
		AuditQueryWindow: envInt("AUDIT_QUERY_WINDOW", 500),
		SubscriberBuffer: envInt("SUBSCRIBER_BUFFER", 64),
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Postgres: PostgresConfig{
			URL: os.Getenv("POSTGRES_URL"),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(os.Getenv("KAFKA_BROKERS")),
			Topic:   envOr("KAFKA_AUDIT_TOPIC", "medigate.audit"),
		},
	}
	return cfg
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := parts[:0]
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
