// Package config loads service configuration from the environment, with a
// .env file honored for local development.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// Config holds everything the server binary needs to start.
type Config struct {
	HTTPAddr string

	// DatabaseURL selects the Postgres store; when empty the server runs
	// on the in-memory store.
	DatabaseURL string

	// KafkaBrokers selects the Kafka event transport; when empty the
	// in-process dispatcher is used.
	KafkaBrokers []string
	KafkaGroupID string

	RateLimitMax             int
	RateLimitWindow          time.Duration
	LargeWithdrawalThreshold decimal.Decimal
	LargeWithdrawalCurrency  string
}

// Load reads configuration from the environment. Missing values fall back
// to local-run defaults.
func Load() (Config, error) {
	// A missing .env file is fine; real deployments set the environment
	// directly.
	_ = godotenv.Load()

	cfg := Config{
		HTTPAddr:                 envOr("HTTP_ADDR", ":8080"),
		DatabaseURL:              os.Getenv("DATABASE_URL"),
		KafkaGroupID:             envOr("KAFKA_GROUP_ID", "wallet-anomaly-detector"),
		RateLimitMax:             5,
		RateLimitWindow:          time.Minute,
		LargeWithdrawalThreshold: decimal.NewFromInt(1000),
		LargeWithdrawalCurrency:  envOr("LARGE_WITHDRAWAL_CURRENCY", "USD"),
	}

	if brokers := os.Getenv("KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = strings.Split(brokers, ",")
	}

	if v := os.Getenv("RATE_LIMIT_MAX"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Config{}, errors.Errorf("invalid RATE_LIMIT_MAX %q", v)
		}
		cfg.RateLimitMax = n
	}

	if v := os.Getenv("RATE_LIMIT_WINDOW"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d <= 0 {
			return Config{}, errors.Errorf("invalid RATE_LIMIT_WINDOW %q", v)
		}
		cfg.RateLimitWindow = d
	}

	if v := os.Getenv("LARGE_WITHDRAWAL_THRESHOLD"); v != "" {
		threshold, err := decimal.NewFromString(v)
		if err != nil || !threshold.IsPositive() {
			return Config{}, errors.Errorf("invalid LARGE_WITHDRAWAL_THRESHOLD %q", v)
		}
		cfg.LargeWithdrawalThreshold = threshold
	}

	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
