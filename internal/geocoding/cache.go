package geocoding

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// AddressCache memoizes resolved addresses by their formatted coordinates.
type AddressCache interface {
	Get(ctx context.Context, coordinates string) (string, bool, error)
	Set(ctx context.Context, coordinates, address string) error
}

const addressKeyPrefix = "checkin:address:"

// RedisAddressCache stores addresses as plain strings with a TTL.
type RedisAddressCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisAddressCache creates a Redis-backed address cache.
func NewRedisAddressCache(client *redis.Client, ttl time.Duration) *RedisAddressCache {
	return &RedisAddressCache{client: client, ttl: ttl}
}

func (c *RedisAddressCache) Get(ctx context.Context, coordinates string) (string, bool, error) {
	addr, err := c.client.Get(ctx, addressKeyPrefix+coordinates).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("redis get: %w", err)
	}
	return addr, true, nil
}

func (c *RedisAddressCache) Set(ctx context.Context, coordinates, address string) error {
	if err := c.client.Set(ctx, addressKeyPrefix+coordinates, address, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
