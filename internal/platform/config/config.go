package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config captures process-level configuration so main stays lean.
type Config struct {
	Addr        string `env:"SWIFTCLAIM_ADDR" envDefault:":8080"`
	DatabaseURL string `env:"DATABASE_URL,required"`

	// JWT verification key for the bearer tokens minted by the external
	// identity provider. Tokens are validated here, never issued.
	JWTSigningKey string `env:"JWT_SIGNING_KEY,required"`

	Ledger LedgerConfig `envPrefix:"LEDGER_"`
	Redis  RedisConfig  `envPrefix:"REDIS_"`
	Kafka  KafkaConfig  `envPrefix:"KAFKA_"`

	// Reconciliation sweep over claims stuck in non-terminal states.
	ReconcileInterval time.Duration `env:"RECONCILE_INTERVAL" envDefault:"5m"`
	ReconcileMinAge   time.Duration `env:"RECONCILE_MIN_AGE" envDefault:"10m"`
}

// LedgerConfig points at the external settlement authority.
type LedgerConfig struct {
	URL     string        `env:"URL,required"`
	APIKey  string        `env:"API_KEY"`
	Timeout time.Duration `env:"TIMEOUT" envDefault:"30s"`
}

// RedisConfig configures the evidence lookup cache. Empty URL disables caching.
type RedisConfig struct {
	URL      string        `env:"URL"`
	CacheTTL time.Duration `env:"CACHE_TTL" envDefault:"5m"`
}

// KafkaConfig configures the audit event publisher. Empty brokers disable it.
type KafkaConfig struct {
	Brokers    []string `env:"BROKERS"`
	AuditTopic string   `env:"AUDIT_TOPIC" envDefault:"swiftclaim.audit"`
}

// FromEnv builds the configuration from environment variables.
func FromEnv() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
