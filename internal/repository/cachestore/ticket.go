package cachestore

import (
	"context"
	"time"

	"github.com/utafrali/bullseye/pkg/cache"
)

// ResetTickets holds one pending password-reset ticket per email.
type ResetTickets struct {
	c cache.Cache
}

func NewResetTickets(c cache.Cache) *ResetTickets {
	return &ResetTickets{c: c}
}

func (t *ResetTickets) Put(ctx context.Context, email, ticket string, ttl time.Duration) error {
	return t.c.Set(ctx, resetTicketKey(email), ticket, ttl)
}

// Consume removes the staged ticket when it matches. A mismatch leaves it in
// place, and of two concurrent matching calls only one succeeds.
func (t *ResetTickets) Consume(ctx context.Context, email, ticket string) (bool, error) {
	if ticket == "" {
		return false, nil
	}
	return t.c.CompareAndDelete(ctx, resetTicketKey(email), ticket)
}

func (t *ResetTickets) Delete(ctx context.Context, email string) error {
	return t.c.Delete(ctx, resetTicketKey(email))
}
