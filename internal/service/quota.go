package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/internal/repository"
	"github.com/utafrali/bullseye/internal/repository/cachestore"
	apperrors "github.com/utafrali/bullseye/pkg/errors"
)

// QuotaLimits are the daily chat allowances per tier.
type QuotaLimits struct {
	Anonymous  int64
	Guest      int64
	Registered int64
}

func (l QuotaLimits) limit(tier domain.QuotaTier) int64 {
	switch tier {
	case domain.TierAnonymous:
		return l.Anonymous
	case domain.TierGuest:
		return l.Guest
	case domain.TierRegistered:
		return l.Registered
	default:
		return -1
	}
}

// QuotaService tracks daily chat usage. Anonymous callers are counted by
// client address.
type QuotaService struct {
	counter repository.QuotaCounter
	limits  QuotaLimits
	now     Clock
	logger  *slog.Logger
}

func NewQuotaService(counter repository.QuotaCounter, limits QuotaLimits, logger *slog.Logger) *QuotaService {
	return &QuotaService{counter: counter, limits: limits, now: time.Now, logger: logger}
}

// WithClock replaces the time source. Used by tests.
func (s *QuotaService) WithClock(c Clock) *QuotaService {
	s.now = c
	return s
}

// Quota reports today's usage without consuming anything.
func (s *QuotaService) Quota(ctx context.Context, user *domain.AuthUser, clientIP string) (*domain.ChatQuota, error) {
	now := s.now().UTC()
	used, err := s.counter.Used(ctx, quotaSubject(user, clientIP), now)
	if err != nil {
		return nil, fmt.Errorf("read chat quota: %w", err)
	}
	return s.report(domain.TierFor(user), used, now), nil
}

// Consume records one chat message. Once the allowance is used up every
// call fails until the next UTC day.
func (s *QuotaService) Consume(ctx context.Context, user *domain.AuthUser, clientIP string) (*domain.ChatQuota, error) {
	now := s.now().UTC()
	tier := domain.TierFor(user)
	subject := quotaSubject(user, clientIP)

	used, err := s.counter.Incr(ctx, subject, now)
	if err != nil {
		return nil, fmt.Errorf("consume chat quota: %w", err)
	}
	q := s.report(tier, used, now)
	if q.Limit >= 0 && used > q.Limit {
		s.logger.InfoContext(ctx, "chat quota exhausted",
			slog.String("subject", subject),
			slog.String("tier", string(tier)),
		)
		return nil, apperrors.Forbidden("daily chat quota exceeded")
	}
	return q, nil
}

func (s *QuotaService) report(tier domain.QuotaTier, used int64, now time.Time) *domain.ChatQuota {
	limit := s.limits.limit(tier)
	q := &domain.ChatQuota{
		Tier:      tier,
		Limit:     limit,
		Used:      used,
		Remaining: -1,
		ResetsAt:  cachestore.EndOfDay(now),
	}
	if limit >= 0 {
		q.Used = min(used, limit)
		q.Remaining = limit - q.Used
	}
	return q
}

func quotaSubject(user *domain.AuthUser, clientIP string) string {
	if user != nil {
		return user.ID
	}
	return "anon:" + clientIP
}
