package lease

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
	"github.com/redis/go-redis/v9"

	"RivalScanner/internal/ports"
)

// RedisLocker hands out leases backed by redislock so several replicas share them.
type RedisLocker struct {
	client *redis.Client
	locker *redislock.Client
}

var _ ports.Locker = (*RedisLocker)(nil)

// NewRedisLocker connects to addr and verifies the connection.
func NewRedisLocker(ctx context.Context, addr string) (*RedisLocker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		PoolSize: 20,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return &RedisLocker{client: client, locker: redislock.New(client)}, nil
}

// Acquire obtains key without retrying; a held key maps to ports.ErrLeaseHeld.
func (r *RedisLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (ports.Lease, error) {
	lock, err := r.locker.Obtain(ctx, key, ttl, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ports.ErrLeaseHeld
	}
	if err != nil {
		return nil, fmt.Errorf("obtain lease %s: %w", key, err)
	}
	return redisLease{lock: lock}, nil
}

// Close releases the redis connection pool.
func (r *RedisLocker) Close() error {
	return r.client.Close()
}

type redisLease struct {
	lock *redislock.Lock
}

func (l redisLease) Release(ctx context.Context) error {
	err := l.lock.Release(ctx)
	if errors.Is(err, redislock.ErrLockNotHeld) {
		return nil
	}
	return err
}
