package domain

import (
	"time"
)

// User is an identity record. Password holds a bcrypt hash once persisted.
type User struct {
	ID              string       `json:"id"`
	Username        string       `json:"username"`
	Email           string       `json:"email"`
	Phone           *string      `json:"phone,omitempty"`
	Password        string       `json:"-"`
	Role            Role         `json:"role"`
	UserType        UserType     `json:"userType"`
	SignupMethod    SignupMethod `json:"signupMethod"`
	IsEmailVerified bool         `json:"isEmailVerified"`
	IsActive        bool         `json:"isActive"`
	IsDeleted       bool         `json:"isDeleted"`
	DeletedAt       *time.Time   `json:"deletedAt,omitempty"`
	OTPCode         *string      `json:"-"`
	OTPType         *OTPType     `json:"-"`
	OTPExpiresAt    *time.Time   `json:"-"`
	RefreshToken    *string      `json:"-"`
	ProfilePicture  *string      `json:"profilePicture,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	UpdatedAt       time.Time    `json:"updatedAt"`
}

// Sanitize returns a copy with credential material removed.
func (u *User) Sanitize() *User {
	c := *u
	c.Password = ""
	c.OTPCode = nil
	c.OTPType = nil
	c.OTPExpiresAt = nil
	c.RefreshToken = nil
	return &c
}

// CanAuthenticate reports whether the account is active and not deleted.
func (u *User) CanAuthenticate() bool {
	return u.IsActive && !u.IsDeleted
}

func (u *User) IsGuest() bool {
	return u.UserType == UserTypeGuest
}

// Projection returns the minimal view attached to authenticated requests.
func (u *User) Projection() *AuthUser {
	return &AuthUser{
		ID:              u.ID,
		Username:        u.Username,
		Email:           u.Email,
		Role:            u.Role,
		UserType:        u.UserType,
		IsEmailVerified: u.IsEmailVerified,
		IsActive:        u.CanAuthenticate(),
	}
}

// AuthUser is the sanitized identity the request gate attaches to a request.
type AuthUser struct {
	ID              string   `json:"id"`
	Username        string   `json:"username"`
	Email           string   `json:"email"`
	Role            Role     `json:"role"`
	UserType        UserType `json:"userType"`
	IsEmailVerified bool     `json:"isEmailVerified"`
	IsActive        bool     `json:"isActive"`
}

// TokenPair holds an access and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// TokenPayload is the identity encoded into both tokens of a pair.
type TokenPayload struct {
	UserID string
	Email  string
	Role   Role
}

// AuthResult is returned by every operation that signs a caller in.
type AuthResult struct {
	User   *User      `json:"user"`
	Tokens *TokenPair `json:"tokens"`
}

// ProfileUpdate carries optional profile changes. Nil fields are left alone.
type ProfileUpdate struct {
	Username       *string
	Phone          *string
	ProfilePicture *string
}
