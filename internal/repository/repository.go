package repository

import (
	"context"
	"errors"
	"time"

	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/pkg/cache"
)

// ErrCacheMiss is returned by cache-backed stores when nothing is staged.
var ErrCacheMiss = cache.ErrMiss

// ErrLocked is returned when another caller holds the same lock.
var ErrLocked = errors.New("repository: locked")

// UserRepository is the credential store. Implementations hash passwords on
// every write and turn Delete into a soft delete.
type UserRepository interface {
	// Create inserts u. u.Password is plain text on input and replaced with
	// its hash on success. Empty ID and timestamps are filled in.
	Create(ctx context.Context, u *domain.User) error

	// GetByID returns the user with id, including soft-deleted users.
	GetByID(ctx context.Context, id string) (*domain.User, error)

	// GetByEmail matches case-insensitively and prefers a non-deleted user.
	GetByEmail(ctx context.Context, email string) (*domain.User, error)

	// GetByPhone prefers a non-deleted user.
	GetByPhone(ctx context.Context, phone string) (*domain.User, error)

	// Update writes profile and status fields. Password, OTP and refresh
	// token have their own methods.
	Update(ctx context.Context, u *domain.User) error

	// UpdatePassword hashes plain and stores it.
	UpdatePassword(ctx context.Context, id, plain string) error

	// SetOTP stores or, with nil, clears the durable OTP copy.
	SetOTP(ctx context.Context, id string, otp *domain.IssuedOTP) error

	// ConsumeOTP clears the durable OTP only if it still holds code of type
	// typ and has not expired at now. It reports whether it cleared it, so
	// of two concurrent callers at most one wins.
	ConsumeOTP(ctx context.Context, id, code string, typ domain.OTPType, now time.Time) (bool, error)

	// SetRefreshToken stores or, with nil, clears the active refresh token.
	SetRefreshToken(ctx context.Context, id string, token *string) error

	// Delete marks the user deleted. Rows are never removed.
	Delete(ctx context.Context, id string) error

	// List returns live users newest first, starting at offset, plus the
	// total number of live users.
	List(ctx context.Context, offset, limit int) ([]domain.User, int, error)
}

// UserCache is the read-through cache in front of UserRepository plus the
// short-lived projection used by the request gate.
type UserCache interface {
	Get(ctx context.Context, id string) (*domain.User, error)
	Set(ctx context.Context, u *domain.User) error
	GetAuthUser(ctx context.Context, id string) (*domain.AuthUser, error)
	SetAuthUser(ctx context.Context, u *domain.AuthUser) error
	// Invalidate drops both the full record and the projection.
	Invalidate(ctx context.Context, id string) error
}

// OTPStore stages OTP codes keyed by purpose and email and tracks failed
// verification attempts against them.
type OTPStore interface {
	Get(ctx context.Context, typ domain.OTPType, email string) (string, error)
	Set(ctx context.Context, typ domain.OTPType, email, code string, ttl time.Duration) error
	Delete(ctx context.Context, typ domain.OTPType, email string) error

	// Consume removes the staged code only if it equals code and reports
	// whether it did.
	Consume(ctx context.Context, typ domain.OTPType, email, code string) (bool, error)

	// Lock serialises verification of one (type, email) pair. It returns
	// ErrLocked while another holder has it. The lock lapses after ttl.
	Lock(ctx context.Context, typ domain.OTPType, email string, ttl time.Duration) (func(context.Context), error)

	// RecordFailure counts a failed attempt and returns the running total.
	// Counters lapse after window.
	RecordFailure(ctx context.Context, typ domain.OTPType, email string, window time.Duration) (int64, error)
	ResetFailures(ctx context.Context, typ domain.OTPType, email string) error
}

// TokenBlacklist holds tokens revoked before their natural expiry.
type TokenBlacklist interface {
	Add(ctx context.Context, token string, ttl time.Duration) error
	Contains(ctx context.Context, token string) (bool, error)
}

// ResetTicketStore links a verified forgotPassword OTP to the following
// password reset.
type ResetTicketStore interface {
	Put(ctx context.Context, email, ticket string, ttl time.Duration) error
	// Consume reports whether ticket matches the staged one and removes it.
	Consume(ctx context.Context, email, ticket string) (bool, error)
	Delete(ctx context.Context, email string) error
}

// QuotaCounter counts daily chat usage per subject.
type QuotaCounter interface {
	Used(ctx context.Context, subject string, day time.Time) (int64, error)
	// Incr adds one and returns the new total. Counters expire at the end of
	// the UTC day.
	Incr(ctx context.Context, subject string, day time.Time) (int64, error)
}
