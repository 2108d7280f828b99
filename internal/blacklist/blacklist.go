package blacklist

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// Checker reports whether the bot should ignore a text channel.
type Checker interface {
	IsBlacklisted(ctx context.Context, channelID string) (bool, error)
}

// Store is a Checker that can also be edited.
type Store interface {
	Checker
	Add(ctx context.Context, channelIDs ...string) error
	Remove(ctx context.Context, channelIDs ...string) error
}

type RedisBlacklist struct {
	client *redis.Client
	key    string
}

var _ Store = (*RedisBlacklist)(nil)

func NewRedisBlacklist(client *redis.Client, key string) *RedisBlacklist {
	return &RedisBlacklist{client: client, key: key}
}

func (b *RedisBlacklist) IsBlacklisted(ctx context.Context, channelID string) (bool, error) {
	ok, err := b.client.SIsMember(ctx, b.key, channelID).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check blacklist for channel %s: %w", channelID, err)
	}
	return ok, nil
}

func (b *RedisBlacklist) Add(ctx context.Context, channelIDs ...string) error {
	if len(channelIDs) == 0 {
		return nil
	}
	if err := b.client.SAdd(ctx, b.key, toAny(channelIDs)...).Err(); err != nil {
		return fmt.Errorf("failed to add %v to blacklist: %w", channelIDs, err)
	}
	return nil
}

func (b *RedisBlacklist) Remove(ctx context.Context, channelIDs ...string) error {
	if len(channelIDs) == 0 {
		return nil
	}
	if err := b.client.SRem(ctx, b.key, toAny(channelIDs)...).Err(); err != nil {
		return fmt.Errorf("failed to remove %v from blacklist: %w", channelIDs, err)
	}
	return nil
}

func toAny(s []string) []any {
	out := make([]any, len(s))
	for i, v := range s {
		out[i] = v
	}
	return out
}

type MemoryBlacklist struct {
	mu       sync.RWMutex
	channels map[string]struct{}
}

var _ Store = (*MemoryBlacklist)(nil)

func NewMemoryBlacklist() *MemoryBlacklist {
	return &MemoryBlacklist{
		channels: make(map[string]struct{}),
	}
}

func (b *MemoryBlacklist) IsBlacklisted(ctx context.Context, channelID string) (bool, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	_, ok := b.channels[channelID]
	return ok, nil
}

func (b *MemoryBlacklist) Add(ctx context.Context, channelIDs ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range channelIDs {
		b.channels[id] = struct{}{}
	}
	return nil
}

func (b *MemoryBlacklist) Remove(ctx context.Context, channelIDs ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, id := range channelIDs {
		delete(b.channels, id)
	}
	return nil
}
