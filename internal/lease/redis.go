// Package lease keeps replicas from running the same periodic job in the same
// interval. It is an optimization only; the jobs are safe to run concurrently.
package lease

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "doseline:lease:"

type RedisLease struct {
	client *redis.Client
	owner  string
}

func NewRedisLease(client *redis.Client, owner string) *RedisLease {
	return &RedisLease{client: client, owner: owner}
}

// Connect opens a client and checks it responds
func Connect(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// Acquire claims job for ttl. It returns false if another owner holds it.
func (l *RedisLease) Acquire(ctx context.Context, job string, ttl time.Duration) (bool, error) {
	ok, err := l.client.SetNX(ctx, keyPrefix+job, l.owner, ttl).Result()
	if err != nil {
		return false, fmt.Errorf("failed to acquire lease %s: %w", job, err)
	}
	return ok, nil
}

func (l *RedisLease) Health(ctx context.Context) error {
	return l.client.Ping(ctx).Err()
}
