package cachestore

import (
	"context"
	"time"

	"github.com/utafrali/bullseye/pkg/cache"
)

// Blacklist records revoked tokens until they would have expired anyway.
type Blacklist struct {
	c cache.Cache
}

func NewBlacklist(c cache.Cache) *Blacklist {
	return &Blacklist{c: c}
}

// Add revokes token for ttl. A non-positive ttl means the token has already
// expired and nothing is stored.
func (b *Blacklist) Add(ctx context.Context, token string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	return b.c.Set(ctx, blacklistKey(token), "1", ttl)
}

func (b *Blacklist) Contains(ctx context.Context, token string) (bool, error) {
	return b.c.Exists(ctx, blacklistKey(token))
}
