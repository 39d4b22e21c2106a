package auth

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

const usedTokenKeyPrefix = "keystone:used-token:"

// UsedTokenStore marks action tokens as consumed so a reset or verification
// link cannot be replayed. Access tokens stay stateless; only single-purpose
// action tokens pass through here.
type UsedTokenStore interface {
	// Consume marks the token id used and reports whether this call was the
	// first to do so.
	Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error)
}

// RedisUsedTokenStore implements UsedTokenStore on Redis. Keys expire with
// the token itself, so the set never outgrows the live token population.
type RedisUsedTokenStore struct {
	rdb *redis.Client
}

// NewRedisUsedTokenStore constructs a RedisUsedTokenStore.
func NewRedisUsedTokenStore(rdb *redis.Client) *RedisUsedTokenStore {
	return &RedisUsedTokenStore{rdb: rdb}
}

// Consume performs an atomic set-if-absent on the token id.
func (s *RedisUsedTokenStore) Consume(ctx context.Context, tokenID string, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return s.rdb.SetNX(ctx, usedTokenKeyPrefix+tokenID, "1", ttl).Result()
}

var _ UsedTokenStore = (*RedisUsedTokenStore)(nil)
