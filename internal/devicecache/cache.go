// Package devicecache provides a Redis read-through cache in front of the
// device repository, so a push fan-out to an active user doesn't hit
// Postgres on every delivery attempt.
package devicecache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/notifyhub/notification-engine/internal/domain"
	"github.com/notifyhub/notification-engine/internal/repository"
)

func redisDeviceListKey(userID string) string {
	return fmt.Sprintf("devicecache:user:%s", userID)
}

// Cache wraps a DeviceRepository with a Redis read-through layer keyed by
// user id. A cache miss falls back to the repository and repopulates the
// entry; a write (register/deactivate) invalidates rather than updates
// the entry, since device lists change rarely relative to how often
// they're read during fan-out.
type Cache struct {
	redis *goredis.Client
	repo  repository.DeviceRepository
	ttl   time.Duration
	log   *zap.Logger
}

func New(redis *goredis.Client, repo repository.DeviceRepository, ttl time.Duration, log *zap.Logger) *Cache {
	return &Cache{redis: redis, repo: repo, ttl: ttl, log: log}
}

// ListUserDevices returns the user's active device registrations,
// serving from Redis when possible and falling back to the repository.
func (c *Cache) ListUserDevices(ctx context.Context, userID string) ([]*domain.DeviceRegistration, error) {
	key := redisDeviceListKey(userID)

	val, err := c.redis.Get(ctx, key).Result()
	if err == nil {
		var devices []*domain.DeviceRegistration
		if uerr := json.Unmarshal([]byte(val), &devices); uerr == nil {
			return devices, nil
		}
		c.log.Warn("devicecache: corrupt cache entry, falling back to repository", zap.String("user_id", userID))
	} else if !errors.Is(err, goredis.Nil) {
		c.log.Warn("devicecache: redis get failed, falling back to repository", zap.Error(err))
	}

	devices, err := c.repo.ListUserDevices(ctx, userID)
	if err != nil {
		return nil, err
	}

	if data, merr := json.Marshal(devices); merr == nil {
		if serr := c.redis.Set(ctx, key, data, c.ttl).Err(); serr != nil {
			c.log.Warn("devicecache: redis set failed", zap.Error(serr))
		}
	}
	return devices, nil
}

// RegisterDevice writes through to the repository and invalidates the
// user's cached device list so the next fan-out observes the new token.
func (c *Cache) RegisterDevice(ctx context.Context, d *domain.DeviceRegistration) error {
	if err := c.repo.RegisterDevice(ctx, d); err != nil {
		return err
	}
	return c.invalidate(ctx, d.UserID)
}

// DeactivateDevice writes through to the repository and invalidates the
// user's cached device list.
func (c *Cache) DeactivateDevice(ctx context.Context, userID, deviceID string) error {
	if err := c.repo.DeactivateDevice(ctx, userID, deviceID); err != nil {
		return err
	}
	return c.invalidate(ctx, userID)
}

func (c *Cache) invalidate(ctx context.Context, userID string) error {
	if err := c.redis.Del(ctx, redisDeviceListKey(userID)).Err(); err != nil && !errors.Is(err, goredis.Nil) {
		c.log.Warn("devicecache: invalidation failed", zap.String("user_id", userID), zap.Error(err))
		return err
	}
	return nil
}

var _ repository.DeviceRepository = (*Cache)(nil)
