package location

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// PositionCache stores the last acquired position per device.
type PositionCache interface {
	Get(ctx context.Context, deviceID string) (Position, bool, error)
	Set(ctx context.Context, deviceID string, pos Position) error
}

// CachedGeolocator serves positions no older than Options.MaximumAge from a cache and
// writes fresh acquisitions back.
type CachedGeolocator struct {
	next     Geolocator
	cache    PositionCache
	deviceID string
	now      func() time.Time
	logger   *zap.Logger
}

// NewCachedGeolocator wraps next with a per-device position cache.
func NewCachedGeolocator(next Geolocator, cache PositionCache, deviceID string, logger *zap.Logger) *CachedGeolocator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedGeolocator{next: next, cache: cache, deviceID: deviceID, now: time.Now, logger: logger}
}

// CurrentPosition implements Geolocator.
// A refused or missing permission on the wrapped geolocator is returned before the cache is read.
func (g *CachedGeolocator) CurrentPosition(ctx context.Context, opts Options) (Position, error) {
	if pc, ok := g.next.(PermissionChecker); ok {
		if err := pc.CheckPermission(); err != nil {
			return Position{}, err
		}
	}

	pos, ok, err := g.cache.Get(ctx, g.deviceID)
	if err != nil {
		g.logger.Warn("position cache read failed", zap.String("device_id", g.deviceID), zap.Error(err))
	}
	if ok && fresh(pos, opts, g.now()) {
		return pos, nil
	}

	pos, err = g.next.CurrentPosition(ctx, opts)
	if err != nil {
		return Position{}, err
	}
	if err := g.cache.Set(ctx, g.deviceID, pos); err != nil {
		g.logger.Warn("position cache write failed", zap.String("device_id", g.deviceID), zap.Error(err))
	}
	return pos, nil
}

func fresh(pos Position, opts Options, now time.Time) bool {
	return usable(Fix{
		Latitude:   pos.Latitude,
		Longitude:  pos.Longitude,
		Accuracy:   pos.Accuracy,
		CapturedAt: pos.CapturedAt,
	}, opts, now)
}

const positionKeyPrefix = "checkin:position:"

// RedisPositionCache keeps positions in Redis as JSON with a TTL.
type RedisPositionCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisPositionCache creates a Redis-backed position cache.
func NewRedisPositionCache(client *redis.Client, ttl time.Duration) *RedisPositionCache {
	return &RedisPositionCache{client: client, ttl: ttl}
}

// Get returns ok=false when the device has no cached position.
func (c *RedisPositionCache) Get(ctx context.Context, deviceID string) (Position, bool, error) {
	raw, err := c.client.Get(ctx, positionKeyPrefix+deviceID).Bytes()
	if errors.Is(err, redis.Nil) {
		return Position{}, false, nil
	}
	if err != nil {
		return Position{}, false, fmt.Errorf("redis get: %w", err)
	}
	var pos Position
	if err := json.Unmarshal(raw, &pos); err != nil {
		return Position{}, false, fmt.Errorf("unmarshal position: %w", err)
	}
	return pos, true, nil
}

// Set stores pos for the device.
func (c *RedisPositionCache) Set(ctx context.Context, deviceID string, pos Position) error {
	raw, err := json.Marshal(pos)
	if err != nil {
		return fmt.Errorf("marshal position: %w", err)
	}
	if err := c.client.Set(ctx, positionKeyPrefix+deviceID, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}
