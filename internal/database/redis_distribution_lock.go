// Package database provides a Redis-based advisory lock for waterfall
// application. The lock lets concurrent API callers fail fast before the
// transaction; the row lock inside the committing transaction remains the
// correctness guarantee.
package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DistributionLockKeyPrefix is the prefix for per-distribution locks.
	// Format: fundadmin:waterfall_lock:{distributionID}
	DistributionLockKeyPrefix = "fundadmin:waterfall_lock"

	// DefaultLockTTL bounds how long a crashed holder can block others.
	DefaultLockTTL = 30 * time.Second
)

// RedisDistributionLock serializes waterfall application per distribution
// across processes. A nil client disables the advisory layer entirely.
type RedisDistributionLock struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDistributionLock creates a distribution lock. client may be nil.
func NewRedisDistributionLock(client *redis.Client, ttl time.Duration) *RedisDistributionLock {
	if ttl <= 0 {
		ttl = DefaultLockTTL
	}
	return &RedisDistributionLock{client: client, ttl: ttl}
}

func lockKey(distributionID string) string {
	return fmt.Sprintf("%s:%s", DistributionLockKeyPrefix, distributionID)
}

// Acquire takes the advisory lock for a distribution. It returns false when
// another caller currently holds it. With no Redis client configured it
// always succeeds.
func (l *RedisDistributionLock) Acquire(ctx context.Context, distributionID string) (bool, error) {
	if l.client == nil {
		return true, nil
	}
	ok, err := l.client.SetNX(ctx, lockKey(distributionID), time.Now().UTC().Format(time.RFC3339), l.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire distribution lock: %w", err)
	}
	return ok, nil
}

// Release drops the advisory lock. Releasing an expired or foreign lock is
// harmless for correctness; the DB transaction is the real guard.
func (l *RedisDistributionLock) Release(ctx context.Context, distributionID string) error {
	if l.client == nil {
		return nil
	}
	if err := l.client.Del(ctx, lockKey(distributionID)).Err(); err != nil {
		return fmt.Errorf("failed to release distribution lock: %w", err)
	}
	return nil
}
