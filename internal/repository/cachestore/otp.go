package cachestore

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/internal/repository"
	"github.com/utafrali/bullseye/pkg/cache"
)

// OTPStore stages OTP codes under otp:<type>:<email>. Verification locks
// live under otp_lock: and failure counters under otp_attempts:.
type OTPStore struct {
	c cache.Cache
}

func NewOTPStore(c cache.Cache) *OTPStore {
	return &OTPStore{c: c}
}

func (s *OTPStore) Get(ctx context.Context, typ domain.OTPType, email string) (string, error) {
	return s.c.Get(ctx, otpKey(typ, email))
}

func (s *OTPStore) Set(ctx context.Context, typ domain.OTPType, email, code string, ttl time.Duration) error {
	return s.c.Set(ctx, otpKey(typ, email), code, ttl)
}

func (s *OTPStore) Delete(ctx context.Context, typ domain.OTPType, email string) error {
	return s.c.Delete(ctx, otpKey(typ, email))
}

func (s *OTPStore) Consume(ctx context.Context, typ domain.OTPType, email, code string) (bool, error) {
	if code == "" {
		return false, nil
	}
	return s.c.CompareAndDelete(ctx, otpKey(typ, email), code)
}

// Lock takes otp_lock:<type>:<email> with a random token. The returned
// release only removes the lock while it still holds that token.
func (s *OTPStore) Lock(ctx context.Context, typ domain.OTPType, email string, ttl time.Duration) (func(context.Context), error) {
	key := otpLockKey(typ, email)
	token := uuid.NewString()
	ok, err := s.c.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, repository.ErrLocked
	}
	return func(ctx context.Context) {
		_, _ = s.c.CompareAndDelete(ctx, key, token)
	}, nil
}

func (s *OTPStore) RecordFailure(ctx context.Context, typ domain.OTPType, email string, window time.Duration) (int64, error) {
	return s.c.Incr(ctx, otpAttemptsKey(typ, email), time.Now().Add(window))
}

func (s *OTPStore) ResetFailures(ctx context.Context, typ domain.OTPType, email string) error {
	return s.c.Delete(ctx, otpAttemptsKey(typ, email))
}
