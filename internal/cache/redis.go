// Package cache stores vendor device ids in Redis so each run does not have
// to look them up again.
package cache

import (
	"context"
	"errors"
	"time"

	"github.com/go-redis/redis/v8"
)

// DefaultTTL is how long a device id is remembered.
const DefaultTTL = 24 * time.Hour

const keyPrefix = "bed-scheduler:device-id:"

// NewClient creates a Redis client.
func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
}

// Ping checks the connection.
func Ping(ctx context.Context, client *redis.Client) error {
	return client.Ping(ctx).Err()
}

// DeviceIDs is a Redis-backed device id cache.
type DeviceIDs struct {
	client *redis.Client
	ttl    time.Duration
}

// New wraps client. A non-positive ttl uses DefaultTTL.
func New(client *redis.Client, ttl time.Duration) *DeviceIDs {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &DeviceIDs{client: client, ttl: ttl}
}

// Key returns the Redis key for a vendor user.
func Key(userID string) string {
	return keyPrefix + userID
}

// DeviceID returns the cached id for userID, if any.
func (c *DeviceIDs) DeviceID(ctx context.Context, userID string) (string, bool, error) {
	id, err := c.client.Get(ctx, Key(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

// SetDeviceID remembers deviceID for userID.
func (c *DeviceIDs) SetDeviceID(ctx context.Context, userID, deviceID string) error {
	return c.client.Set(ctx, Key(userID), deviceID, c.ttl).Err()
}

// Close closes the underlying client.
func (c *DeviceIDs) Close() error {
	return c.client.Close()
}
