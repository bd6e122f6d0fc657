package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"ssot/pkg/platform/middleware/admin"
	platformstrings "ssot/pkg/platform/strings"
)

const (
	DefaultAddr       = ":8080"
	DefaultAuditTopic = "ssot.audit"
	DefaultTxTimeout  = 5 * time.Second
	DefaultLockTTL    = 30 * time.Second
)

// Server captures process level configuration.
type Server struct {
	Addr string
	// DatabaseURL selects PostgreSQL storage; empty runs on in-memory stores.
	DatabaseURL string
	// RedisURL enables the shared resolution lock; empty uses an in-process lock.
	RedisURL string
	// KafkaBrokers enables the audit outbox relay.
	KafkaBrokers []string
	AuditTopic   string
	// AdminToken guards the operator endpoints. Empty disables them.
	AdminToken string
	// AdminTokenHash is a bcrypt hash of the operator token and takes
	// precedence over AdminToken.
	AdminTokenHash string
	EngineConfig   string
	TxTimeout      time.Duration
	LockTTL        time.Duration
	LogLevel       slog.Level
}

// AdminCheck picks the operator token check for this configuration.
func (s Server) AdminCheck() admin.TokenCheck {
	if s.AdminTokenHash != "" {
		return admin.HashedToken(s.AdminTokenHash)
	}
	return admin.StaticToken(s.AdminToken)
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:           getenv("SSOT_ADDR", DefaultAddr),
		DatabaseURL:    os.Getenv("DATABASE_URL"),
		RedisURL:       os.Getenv("REDIS_URL"),
		KafkaBrokers:   platformstrings.SplitList(os.Getenv("KAFKA_BROKERS")),
		AuditTopic:     getenv("AUDIT_TOPIC", DefaultAuditTopic),
		AdminToken:     os.Getenv("ADMIN_API_TOKEN"),
		AdminTokenHash: os.Getenv("ADMIN_API_TOKEN_HASH"),
		EngineConfig:   os.Getenv("ENGINE_CONFIG"),
		TxTimeout:      DefaultTxTimeout,
		LockTTL:        DefaultLockTTL,
	}

	var err error
	if cfg.TxTimeout, err = durationEnv("TX_TIMEOUT", DefaultTxTimeout); err != nil {
		return Server{}, err
	}
	if cfg.LockTTL, err = durationEnv("LOCK_TTL", DefaultLockTTL); err != nil {
		return Server{}, err
	}
	if raw := os.Getenv("LOG_LEVEL"); raw != "" {
		if err := cfg.LogLevel.UnmarshalText([]byte(raw)); err != nil {
			return Server{}, fmt.Errorf("LOG_LEVEL: %w", err)
		}
	}
	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func durationEnv(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("%s must be positive", key)
	}
	return d, nil
}
