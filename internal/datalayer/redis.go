package datalayer

import (
	"context"
	"fmt"

	"github.com/glizzus/terminus/internal/config"
	"github.com/redis/go-redis/v9"
)

// NewRedisClient connects to the Redis server described by cfg and checks
// that it answers.
func NewRedisClient(ctx context.Context, cfg *config.RedisConfig) (*redis.Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return rdb, nil
}
