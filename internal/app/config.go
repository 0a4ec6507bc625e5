package app

import (
	"errors"
	"fmt"

	"github.com/specialistvlad/genoflow/internal/script"
)

// Config holds all the necessary configuration for an App instance to run.
type Config struct {
	// ConfigPaths are .hcl files or directories holding them.
	ConfigPaths []string
	Mode        script.Mode
	// Master collects every script and submits one master script instead.
	Master bool

	LogFormat   string
	LogLevel    string
	WorkerCount int
}

// NewConfig validates cfg and applies defaults.
func NewConfig(cfg Config) (*Config, error) {
	if len(cfg.ConfigPaths) == 0 {
		return nil, errors.New("at least one configuration path is required")
	}
	if cfg.Mode == "" {
		cfg.Mode = script.ModeTest
	}
	if _, err := script.ParseMode(string(cfg.Mode)); err != nil {
		return nil, err
	}
	if cfg.WorkerCount < 0 {
		return nil, fmt.Errorf("workers must not be negative, got %d", cfg.WorkerCount)
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 1
	}
	return &cfg, nil
}
