package kafka

import (
	"context"
	"log/slog"
	"time"

	"github.com/utafrali/bullseye/pkg/cache"
)

// IdempotencyStore records processed event ids.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	Add(ctx context.Context, eventID string) error
}

// CacheIdempotencyStore keeps processed ids in a cache.Cache with a TTL, so
// deduplication is shared by every worker pointing at the same Redis.
type CacheIdempotencyStore struct {
	cache  cache.Cache
	prefix string
	ttl    time.Duration
}

func NewCacheIdempotencyStore(c cache.Cache, prefix string, ttl time.Duration) *CacheIdempotencyStore {
	return &CacheIdempotencyStore{cache: c, prefix: prefix, ttl: ttl}
}

func (s *CacheIdempotencyStore) key(id string) string {
	return s.prefix + "processed_event:" + id
}

func (s *CacheIdempotencyStore) Contains(ctx context.Context, eventID string) (bool, error) {
	return s.cache.Exists(ctx, s.key(eventID))
}

func (s *CacheIdempotencyStore) Add(ctx context.Context, eventID string) error {
	return s.cache.Set(ctx, s.key(eventID), "1", s.ttl)
}

// IdempotentHandler skips events whose id is already recorded in store and
// records ids after inner succeeds. Store failures never block processing.
func IdempotentHandler(store IdempotencyStore, inner Handler, logger *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return inner(ctx, event)
		}

		seen, err := store.Contains(ctx, event.EventID)
		if err != nil {
			logger.WarnContext(ctx, "idempotency lookup failed, processing anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		} else if seen {
			logger.DebugContext(ctx, "skipping duplicate event",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
			)
			return ErrDuplicate
		}

		if err := inner(ctx, event); err != nil {
			return err
		}

		if err := store.Add(ctx, event.EventID); err != nil {
			logger.WarnContext(ctx, "failed to record processed event",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}
