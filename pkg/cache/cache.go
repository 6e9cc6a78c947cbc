// Package cache is a small key-value abstraction with TTLs, backed by Redis
// in production and an in-process store for development and tests.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrMiss is returned by Get when the key does not exist or has expired.
var ErrMiss = errors.New("cache: key not found")

// Cache is the set of operations the service relies on. A zero ttl means the
// entry never expires.
type Cache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// SetNX stores value only if key is absent and reports whether it did.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Delete(ctx context.Context, keys ...string) error
	// CompareAndDelete removes key only while it still holds expected and
	// reports whether it did. The check and the delete are one atomic step.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)
	// Incr atomically increments an integer counter. A counter created by this
	// call expires at expireAt.
	Incr(ctx context.Context, key string, expireAt time.Time) (int64, error)
	Ping(ctx context.Context) error
	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver   string // "redis" | "memory"
	Addr     string
	URL      string
	Password string
	DB       int
	Prefix   string
}

// New builds a Cache for cfg.Driver. Unknown drivers are an error.
func New(ctx context.Context, cfg Config) (Cache, error) {
	switch cfg.Driver {
	case "redis":
		return NewRedisFromConfig(ctx, cfg)
	case "memory", "":
		return NewMemory(cfg.Prefix), nil
	default:
		return nil, fmt.Errorf("cache: unknown driver %q", cfg.Driver)
	}
}

// GetJSON loads key and unmarshals it into dst.
func GetJSON(ctx context.Context, c Cache, key string, dst any) error {
	raw, err := c.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), dst); err != nil {
		return fmt.Errorf("cache: decode %s: %w", key, err)
	}
	return nil
}

// SetJSON marshals v and stores it under key.
func SetJSON(ctx context.Context, c Cache, key string, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("cache: encode %s: %w", key, err)
	}
	return c.Set(ctx, key, string(data), ttl)
}
