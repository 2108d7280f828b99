package config

import (
	"context"
	"fmt"

	"github.com/sethvargo/go-envconfig"
)

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR, required"`
	Password string `env:"REDIS_PASSWORD"`
	DB       int    `env:"REDIS_DB, default=0"`
	// BlacklistKey is the set holding ignored text channels.
	BlacklistKey string `env:"REDIS_BLACKLIST_KEY, default=terminus:blacklist"`
}

func NewRedisConfigFromEnv() (*RedisConfig, error) {
	var cfg RedisConfig
	if err := envconfig.Process(context.Background(), &cfg); err != nil {
		return nil, err
	}
	if cfg.BlacklistKey == "" {
		return nil, fmt.Errorf("REDIS_BLACKLIST_KEY must not be empty")
	}
	return &cfg, nil
}
