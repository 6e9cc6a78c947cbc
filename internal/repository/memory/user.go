// Package memory is an in-process credential store for local development
// (DB_DRIVER=memory) and tests. It applies the same write rules as the
// PostgreSQL repository.
package memory

import (
	"cmp"
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/utafrali/bullseye/internal/auth"
	"github.com/utafrali/bullseye/internal/domain"
	apperrors "github.com/utafrali/bullseye/pkg/errors"
)

// UserRepository implements repository.UserRepository over a map.
type UserRepository struct {
	mu         sync.RWMutex
	users      map[string]*domain.User
	bcryptCost int
	now        func() time.Time
}

func NewUserRepository(bcryptCost int) *UserRepository {
	return &UserRepository{
		users:      make(map[string]*domain.User),
		bcryptCost: bcryptCost,
		now:        time.Now,
	}
}

func clone(u *domain.User) *domain.User {
	c := *u
	return &c
}

func (r *UserRepository) Create(_ context.Context, u *domain.User) error {
	hash, err := auth.HashPassword(u.Password, r.bcryptCost)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if err := r.checkUnique(u); err != nil {
		return err
	}
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := r.now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now
	u.Password = hash

	r.users[u.ID] = clone(u)
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, apperrors.NotFound("user", id)
	}
	return clone(u), nil
}

func (r *UserRepository) GetByEmail(_ context.Context, email string) (*domain.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return r.find(func(u *domain.User) bool { return u.Email == email })
}

func (r *UserRepository) GetByPhone(_ context.Context, phone string) (*domain.User, error) {
	return r.find(func(u *domain.User) bool { return u.Phone != nil && *u.Phone == phone })
}

// find returns the best match: live accounts first, then the newest.
func (r *UserRepository) find(match func(*domain.User) bool) (*domain.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *domain.User
	for _, u := range r.users {
		if !match(u) {
			continue
		}
		switch {
		case best == nil:
			best = u
		case best.IsDeleted && !u.IsDeleted:
			best = u
		case best.IsDeleted == u.IsDeleted && u.CreatedAt.After(best.CreatedAt):
			best = u
		}
	}
	if best == nil {
		return nil, apperrors.NotFoundMsg("user not found")
	}
	return clone(best), nil
}

func (r *UserRepository) Update(_ context.Context, u *domain.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.users[u.ID]
	if !ok {
		return apperrors.NotFound("user", u.ID)
	}
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	if !cur.IsDeleted {
		if err := r.checkUnique(u); err != nil {
			return err
		}
	}

	next := clone(cur)
	next.Username = u.Username
	next.Email = u.Email
	next.Phone = u.Phone
	next.Role = u.Role
	next.UserType = u.UserType
	next.SignupMethod = u.SignupMethod
	next.IsEmailVerified = u.IsEmailVerified
	next.IsActive = u.IsActive
	next.ProfilePicture = u.ProfilePicture
	next.UpdatedAt = r.now().UTC()
	u.UpdatedAt = next.UpdatedAt

	r.users[u.ID] = next
	return nil
}

func (r *UserRepository) UpdatePassword(_ context.Context, id, plain string) error {
	hash, err := auth.HashPassword(plain, r.bcryptCost)
	if err != nil {
		return err
	}
	return r.mutate(id, func(u *domain.User) { u.Password = hash })
}

func (r *UserRepository) SetOTP(_ context.Context, id string, otp *domain.IssuedOTP) error {
	return r.mutate(id, func(u *domain.User) {
		if otp == nil {
			u.OTPCode, u.OTPType, u.OTPExpiresAt = nil, nil, nil
			return
		}
		code, typ, expires := otp.Code, otp.Type, otp.ExpiresAt.UTC()
		u.OTPCode, u.OTPType, u.OTPExpiresAt = &code, &typ, &expires
	})
}

func (r *UserRepository) ConsumeOTP(_ context.Context, id, code string, typ domain.OTPType, now time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.users[id]
	if !ok {
		return false, nil
	}
	if cur.OTPCode == nil || *cur.OTPCode != code ||
		cur.OTPType == nil || *cur.OTPType != typ ||
		cur.OTPExpiresAt == nil || !now.Before(*cur.OTPExpiresAt) {
		return false, nil
	}
	next := clone(cur)
	next.OTPCode, next.OTPType, next.OTPExpiresAt = nil, nil, nil
	next.UpdatedAt = r.now().UTC()
	r.users[id] = next
	return true, nil
}

func (r *UserRepository) SetRefreshToken(_ context.Context, id string, token *string) error {
	return r.mutate(id, func(u *domain.User) { u.RefreshToken = token })
}

// Delete soft-deletes the user.
func (r *UserRepository) Delete(_ context.Context, id string) error {
	now := r.now().UTC()
	return r.mutate(id, func(u *domain.User) {
		u.IsDeleted = true
		if u.DeletedAt == nil {
			u.DeletedAt = &now
		}
		u.RefreshToken = nil
	})
}

// List pages over live users, newest first.
func (r *UserRepository) List(_ context.Context, offset, limit int) ([]domain.User, int, error) {
	r.mu.RLock()
	live := make([]domain.User, 0, len(r.users))
	for _, u := range r.users {
		if !u.IsDeleted {
			live = append(live, *u)
		}
	}
	r.mu.RUnlock()

	slices.SortFunc(live, func(a, b domain.User) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})

	total := len(live)
	if offset >= total {
		return []domain.User{}, total, nil
	}
	end := min(offset+limit, total)
	return live[offset:end], total, nil
}

func (r *UserRepository) mutate(id string, fn func(*domain.User)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, ok := r.users[id]
	if !ok {
		return apperrors.NotFound("user", id)
	}
	next := clone(cur)
	fn(next)
	next.UpdatedAt = r.now().UTC()
	r.users[id] = next
	return nil
}

// checkUnique mirrors the partial unique indexes on live rows. Callers hold mu.
func (r *UserRepository) checkUnique(u *domain.User) error {
	for id, other := range r.users {
		if id == u.ID || other.IsDeleted {
			continue
		}
		if other.Email == u.Email {
			return apperrors.AlreadyExists("email", "email already exists")
		}
		if u.Phone != nil && other.Phone != nil && *u.Phone == *other.Phone {
			return apperrors.AlreadyExists("phone", "phone number already exists")
		}
	}
	return nil
}
