package cachestore

import (
	"context"
	"time"

	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/pkg/cache"
)

// UserCache caches sanitized user records and the gate projection. Cached
// records carry no password, OTP or refresh token, so credential checks must
// read the store.
type UserCache struct {
	c       cache.Cache
	userTTL time.Duration
	authTTL time.Duration
}

func NewUserCache(c cache.Cache, userTTL, authUserTTL time.Duration) *UserCache {
	return &UserCache{c: c, userTTL: userTTL, authTTL: authUserTTL}
}

func (u *UserCache) Get(ctx context.Context, id string) (*domain.User, error) {
	var user domain.User
	if err := cache.GetJSON(ctx, u.c, userKey(id), &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (u *UserCache) Set(ctx context.Context, user *domain.User) error {
	return cache.SetJSON(ctx, u.c, userKey(user.ID), user.Sanitize(), u.userTTL)
}

func (u *UserCache) GetAuthUser(ctx context.Context, id string) (*domain.AuthUser, error) {
	var au domain.AuthUser
	if err := cache.GetJSON(ctx, u.c, authUserKey(id), &au); err != nil {
		return nil, err
	}
	return &au, nil
}

func (u *UserCache) SetAuthUser(ctx context.Context, au *domain.AuthUser) error {
	return cache.SetJSON(ctx, u.c, authUserKey(au.ID), au, u.authTTL)
}

func (u *UserCache) Invalidate(ctx context.Context, id string) error {
	return u.c.Delete(ctx, userKey(id), authUserKey(id))
}
