package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisBackend stores entries as JSON strings in Redis.
type RedisBackend struct {
	client *redis.Client
}

// NewRedisBackend connects to addr and verifies the connection.
func NewRedisBackend(ctx context.Context, addr string, db int) (*RedisBackend, error) {
	if addr == "" {
		return nil, errors.New("cache: redis address is empty")
	}
	rdb := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping %s: %w", addr, err)
	}
	return &RedisBackend{client: rdb}, nil
}

func (b *RedisBackend) Get(ctx context.Context, key string) ([]byte, int, error) {
	data, err := b.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	return decodeEntry(key, data)
}

func (b *RedisBackend) Set(ctx context.Context, key string, value []byte, version int) error {
	data, err := encodeEntry(key, value, version)
	if err != nil {
		return err
	}
	return b.client.Set(ctx, key, data, 0).Err()
}

func (b *RedisBackend) Close() error {
	return b.client.Close()
}
