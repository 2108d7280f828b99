package config

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sethvargo/go-envconfig"
)

type ObservabilityConfig struct {
	LogLevel string `env:"LOG_LEVEL, default=info"`
	// MetricsAddr is the listen address of the Prometheus endpoint. Empty
	// disables it.
	MetricsAddr string `env:"METRICS_ADDR"`

	level slog.Level
}

func NewObservabilityConfigFromEnv() (*ObservabilityConfig, error) {
	var cfg ObservabilityConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if err := cfg.level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}

	return &cfg, nil
}

func (c *ObservabilityConfig) Level() slog.Level {
	return c.level
}
