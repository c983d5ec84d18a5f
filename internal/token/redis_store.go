package token

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisUsedStore tracks consumed token ids in Redis, keyed by token id with
// a TTL matching the token's remaining validity. Unlike best-effort dedup,
// replay protection fails closed: a Redis error rejects the token.
type RedisUsedStore struct {
	rdb *redis.Client
}

func NewRedisUsedStore(rdb *redis.Client) *RedisUsedStore {
	return &RedisUsedStore{rdb: rdb}
}

func (s *RedisUsedStore) IsUsed(ctx context.Context, tokenID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, usedKey(tokenID)).Result()
	if err != nil {
		return false, fmt.Errorf("failed to check used token: %w", err)
	}
	return n > 0, nil
}

func (s *RedisUsedStore) MarkUsed(ctx context.Context, tokenID string, ttl time.Duration) error {
	if err := s.rdb.Set(ctx, usedKey(tokenID), 1, ttl).Err(); err != nil {
		return fmt.Errorf("failed to mark token used: %w", err)
	}
	return nil
}

func usedKey(tokenID string) string {
	return fmt.Sprintf("action_token:used:%s", tokenID)
}
