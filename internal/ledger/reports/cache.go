package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const bumpChannel = "reports.bump"

// Cache is the Redis read-through cache for built reports. Keys carry a
// per-tenant version; bumping the version orphans every cached report for
// that tenant at once. A nil cache (or nil client) degrades to building
// fresh on every call.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache instantiates the cache helper.
func NewCache(client *redis.Client, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

func versionKey(tenant uuid.UUID) string {
	return "reports:version:" + tenant.String()
}

// Version returns the tenant's cache version, initialising to 1 when missing.
func (c *Cache) Version(ctx context.Context, tenant uuid.UUID) (int64, error) {
	if c == nil || c.client == nil {
		return 0, nil
	}
	ver, err := c.client.Get(ctx, versionKey(tenant)).Int64()
	if err == redis.Nil {
		if err := c.client.Set(ctx, versionKey(tenant), 1, 0).Err(); err != nil {
			return 0, err
		}
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	if ver <= 0 {
		ver = 1
		if err := c.client.Set(ctx, versionKey(tenant), ver, 0).Err(); err != nil {
			return 0, err
		}
	}
	return ver, nil
}

// BuildKey composes a versioned cache key for one report.
func (c *Cache) BuildKey(ctx context.Context, tenant uuid.UUID, kind string, params ...string) (string, error) {
	parts := append([]string{"reports", kind, tenant.String()}, params...)
	joined := strings.Join(parts, ":")
	if c == nil || c.client == nil {
		return joined, nil
	}
	ver, err := c.Version(ctx, tenant)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s:v%d", joined, ver), nil
}

// FetchJSON loads a cached value or populates it using the loader.
func (c *Cache) FetchJSON(ctx context.Context, key string, dest interface{}, loader func(context.Context) (interface{}, error)) error {
	if loader == nil {
		return errors.New("reports: cache loader required")
	}
	if c == nil || c.client == nil {
		value, err := loader(ctx)
		if err != nil {
			return err
		}
		raw, err := json.Marshal(value)
		if err != nil {
			return err
		}
		return json.Unmarshal(raw, dest)
	}
	payload, err := c.client.Get(ctx, key).Bytes()
	if err == nil {
		return json.Unmarshal(payload, dest)
	}
	if err != redis.Nil {
		return err
	}
	value, err := loader(ctx)
	if err != nil {
		return err
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, key, raw, c.ttl).Err(); err != nil {
		return err
	}
	return json.Unmarshal(raw, dest)
}

// Bump invalidates the tenant's cached reports by incrementing its version
// and publishing the change for interested listeners.
func (c *Cache) Bump(ctx context.Context, tenant uuid.UUID) error {
	if c == nil || c.client == nil {
		return nil
	}
	if err := c.client.Incr(ctx, versionKey(tenant)).Err(); err != nil {
		return err
	}
	return c.client.Publish(ctx, bumpChannel, tenant.String()).Err()
}
