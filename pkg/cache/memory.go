package cache

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// Memory is an in-process Cache backed by patrickmn/go-cache. Values are not
// shared across processes.
type Memory struct {
	// mu orders writers against CompareAndDelete.
	mu     sync.Mutex
	c      *gocache.Cache
	prefix string
}

func NewMemory(prefix string) *Memory {
	return &Memory{c: gocache.New(gocache.NoExpiration, time.Minute), prefix: prefix}
}

func (m *Memory) key(k string) string { return m.prefix + k }

func ttlOrForever(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return gocache.NoExpiration
	}
	return ttl
}

func (m *Memory) Get(_ context.Context, key string) (string, error) {
	v, ok := m.c.Get(m.key(key))
	if !ok {
		return "", ErrMiss
	}
	switch t := v.(type) {
	case string:
		return t, nil
	case int64:
		return strconv.FormatInt(t, 10), nil
	default:
		return "", ErrMiss
	}
}

func (m *Memory) Set(_ context.Context, key, value string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.c.Set(m.key(key), value, ttlOrForever(ttl))
	return nil
}

func (m *Memory) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.c.Add(m.key(key), value, ttlOrForever(ttl)) == nil, nil
}

func (m *Memory) Delete(_ context.Context, keys ...string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, k := range keys {
		m.c.Delete(m.key(k))
	}
	return nil
}

func (m *Memory) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.key(key)
	v, ok := m.c.Get(k)
	if !ok {
		return false, nil
	}
	if s, isString := v.(string); !isString || s != expected {
		return false, nil
	}
	m.c.Delete(k)
	return true, nil
}

func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	_, ok := m.c.Get(m.key(key))
	return ok, nil
}

func (m *Memory) Incr(_ context.Context, key string, expireAt time.Time) (int64, error) {
	k := m.key(key)
	ttl := time.Until(expireAt)
	var err error
	for attempt := 0; attempt < 3; attempt++ {
		if m.c.Add(k, int64(1), ttlOrForever(ttl)) == nil {
			return 1, nil
		}
		var n int64
		if n, err = m.c.IncrementInt64(k, 1); err == nil {
			return n, nil
		}
		// Either the entry expired between Add and IncrementInt64 or it
		// does not hold a counter.
	}
	return 0, fmt.Errorf("memory incr %s: %w", key, err)
}

func (m *Memory) Ping(context.Context) error { return nil }

func (m *Memory) Close() error {
	m.c.Flush()
	return nil
}
