// Package config loads application configuration from the environment.
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds application configuration. Values come from environment
// variables, with an optional .env file loaded first.
type Config struct {
	DBPath   string `env:"SPLITPILOT_DB_PATH" envDefault:"./splitpilot.db"`
	Port     int    `env:"SPLITPILOT_PORT" envDefault:"8080"`
	LogLevel string `env:"SPLITPILOT_LOG_LEVEL" envDefault:"info"`
	DevMode  bool   `env:"SPLITPILOT_DEV_MODE" envDefault:"false"`

	// Statistics thresholds shared by every experiment scope.
	MinSampleSize   int     `env:"SPLITPILOT_MIN_SAMPLE_SIZE" envDefault:"30"`
	ConfidenceLevel float64 `env:"SPLITPILOT_CONFIDENCE_LEVEL" envDefault:"0.95"`

	// Auto-winner sweep: periodically snapshot running experiments and
	// complete those with a significant winner.
	AutoWinner     bool   `env:"SPLITPILOT_AUTO_WINNER" envDefault:"false"`
	AutoWinnerCron string `env:"SPLITPILOT_AUTO_WINNER_CRON" envDefault:"@hourly"`
}

// Load reads configuration from a .env file (if present) and the process
// environment.
func Load() (*Config, error) {
	// Missing .env is fine; the environment may carry everything.
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	return &cfg, nil
}
