package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestUser_SanitizeStripsCredentials(t *testing.T) {
	u := &User{
		ID:           "u1",
		Email:        "a@x.com",
		Password:     "$2a$12$hash",
		OTPCode:      strPtr("123456"),
		RefreshToken: strPtr("rt"),
	}
	typ := OTPForgotPassword
	u.OTPType = &typ

	s := u.Sanitize()
	assert.Empty(t, s.Password)
	assert.Nil(t, s.OTPCode)
	assert.Nil(t, s.OTPType)
	assert.Nil(t, s.RefreshToken)
	assert.Equal(t, "$2a$12$hash", u.Password, "original must be untouched")

	raw, err := json.Marshal(u)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "hash")
	assert.NotContains(t, string(raw), "123456")
}

func TestUser_CanAuthenticate(t *testing.T) {
	assert.True(t, (&User{IsActive: true}).CanAuthenticate())
	assert.False(t, (&User{IsActive: false}).CanAuthenticate())
	assert.False(t, (&User{IsActive: true, IsDeleted: true}).CanAuthenticate())
}

func TestUser_Projection(t *testing.T) {
	u := &User{ID: "u1", Username: "alice", Email: "a@x.com", Role: RoleUser,
		UserType: UserTypeGuest, IsEmailVerified: true, IsActive: true, IsDeleted: true}
	p := u.Projection()
	assert.Equal(t, "u1", p.ID)
	assert.Equal(t, UserTypeGuest, p.UserType)
	assert.False(t, p.IsActive)
}

func TestTierFor(t *testing.T) {
	assert.Equal(t, TierAnonymous, TierFor(nil))
	assert.Equal(t, TierAdmin, TierFor(&AuthUser{Role: RoleAdmin, UserType: UserTypeGuest}))
	assert.Equal(t, TierGuest, TierFor(&AuthUser{Role: RoleUser, UserType: UserTypeGuest}))
	assert.Equal(t, TierRegistered, TierFor(&AuthUser{Role: RoleUser, UserType: UserTypeRegistered}))
}

func TestEnums(t *testing.T) {
	assert.True(t, IsValidRole("ADMIN"))
	assert.False(t, IsValidRole("admin"))
	assert.True(t, OTPForgotPassword.Valid())
	assert.False(t, OTPType("other").Valid())
}
