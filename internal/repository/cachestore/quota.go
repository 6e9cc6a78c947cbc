package cachestore

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/utafrali/bullseye/pkg/cache"
)

// QuotaCounter counts chat messages per subject per UTC day.
type QuotaCounter struct {
	c cache.Cache
}

func NewQuotaCounter(c cache.Cache) *QuotaCounter {
	return &QuotaCounter{c: c}
}

func (q *QuotaCounter) Used(ctx context.Context, subject string, day time.Time) (int64, error) {
	raw, err := q.c.Get(ctx, quotaKey(subject, day))
	if errors.Is(err, cache.ErrMiss) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, err
	}
	return n, nil
}

func (q *QuotaCounter) Incr(ctx context.Context, subject string, day time.Time) (int64, error) {
	return q.c.Incr(ctx, quotaKey(subject, day), EndOfDay(day))
}

// EndOfDay returns midnight UTC following t.
func EndOfDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d+1, 0, 0, 0, 0, time.UTC)
}
