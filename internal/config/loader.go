package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Load resolves the process configuration. The loading sequence is:
//
//  1. Enforce UTC timezone to prevent drift bugs in cooldown arithmetic.
//  2. Load a .env file via godotenv (non-fatal if absent).
//  3. Populate the Config struct from the environment via envconfig.
//  4. Validate the struct using go-playground/validator (fail fast).
func Load() (*Config, error) {
	time.Local = time.UTC

	// Local development convenience; production relies on real env vars.
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("config: processing environment: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return &cfg, nil
}
