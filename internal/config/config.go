// Package config loads the engine configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

// Config holds runtime configuration. Optional backends are switched on by
// setting their URL: without DATABASE_URL the in-memory store is used,
// without KAFKA_BROKERS events only arrive over HTTP, and without
// EXECUTOR_URL orders are paper-filled.
type Config struct {
	Port string `env:"PORT" envDefault:"8080"`

	DatabaseURL string        `env:"DATABASE_URL"`
	AutoMigrate bool          `env:"AUTO_MIGRATE" envDefault:"true"`
	RedisURL    string        `env:"REDIS_URL"`
	CacheTTL    time.Duration `env:"CACHE_TTL" envDefault:"30s"`
	LockTTL     time.Duration `env:"LOCK_TTL" envDefault:"45s"`

	KafkaBrokers              []string `env:"KAFKA_BROKERS" envSeparator:","`
	KafkaGroupID              string   `env:"KAFKA_GROUP_ID" envDefault:"copytrade-engine"`
	KafkaTopicTrades          string   `env:"KAFKA_TOPIC_TRADES" envDefault:"source-trades"`
	KafkaTopicRecommendations string   `env:"KAFKA_TOPIC_RECOMMENDATIONS" envDefault:"copy-recommendations"`

	ExecutorURL     string        `env:"EXECUTOR_URL"`
	ExecutorTimeout time.Duration `env:"EXECUTOR_TIMEOUT" envDefault:"15s"`

	LedgerTimezone      string `env:"LEDGER_TIMEZONE" envDefault:"UTC"`
	HistoryDefaultLimit int    `env:"HISTORY_DEFAULT_LIMIT" envDefault:"50"`
	FanoutConcurrency   int    `env:"FANOUT_CONCURRENCY" envDefault:"16"`
}

// Load reads an optional .env file, then parses the environment.
func Load() (Config, error) {
	if err := godotenv.Load(); err != nil {
		slog.Debug("no .env file loaded", "err", err)
	}
	return Parse()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, err
	}
	brokers := cfg.KafkaBrokers[:0]
	for _, b := range cfg.KafkaBrokers {
		if b = strings.TrimSpace(b); b != "" {
			brokers = append(brokers, b)
		}
	}
	cfg.KafkaBrokers = brokers
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.HistoryDefaultLimit <= 0 {
		return errors.New("config: HISTORY_DEFAULT_LIMIT must be positive")
	}
	if c.FanoutConcurrency <= 0 {
		return errors.New("config: FANOUT_CONCURRENCY must be positive")
	}
	// The per-user lock is held across the order submission.
	if c.RedisURL != "" && c.LockTTL <= c.ExecutorTimeout {
		return fmt.Errorf("config: LOCK_TTL (%s) must exceed EXECUTOR_TIMEOUT (%s)", c.LockTTL, c.ExecutorTimeout)
	}
	return nil
}

// Location resolves LEDGER_TIMEZONE.
func (c Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.LedgerTimezone)
	if err != nil {
		return nil, fmt.Errorf("config: LEDGER_TIMEZONE: %w", err)
	}
	return loc, nil
}

// KafkaEnabled reports whether a broker list was configured.
func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0
}
