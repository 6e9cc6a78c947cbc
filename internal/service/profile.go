package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/bullseye/internal/auth"
	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/internal/repository"
	apperrors "github.com/utafrali/bullseye/pkg/errors"
)

// GetProfile returns the user, read through the user cache.
func (s *AuthService) GetProfile(ctx context.Context, userID string) (*domain.User, error) {
	cached, err := s.cache.Get(ctx, userID)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.WarnContext(ctx, "user cache read failed", slog.String("error", err.Error()))
	}

	user, err := s.liveUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.cache.Set(ctx, user); err != nil {
		s.logger.WarnContext(ctx, "user cache write failed", slog.String("error", err.Error()))
	}
	return user.Sanitize(), nil
}

// UpdateProfile applies the non-nil fields of upd. An empty phone clears it.
func (s *AuthService) UpdateProfile(ctx context.Context, userID string, upd domain.ProfileUpdate) (*domain.User, error) {
	user, err := s.liveUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	if upd.Username != nil {
		name := strings.TrimSpace(*upd.Username)
		if name == "" {
			return nil, apperrors.InvalidInput("username must not be empty")
		}
		user.Username = name
	}
	if upd.Phone != nil {
		phone := normalizePhone(upd.Phone)
		if err := s.ensurePhoneFree(ctx, phone, user.ID); err != nil {
			return nil, err
		}
		user.Phone = phone
	}
	if upd.ProfilePicture != nil {
		pic := strings.TrimSpace(*upd.ProfilePicture)
		if pic == "" {
			user.ProfilePicture = nil
		} else {
			user.ProfilePicture = &pic
		}
	}

	if err := s.users.Update(ctx, user); err != nil {
		if apperrors.IsKind(err, apperrors.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("update profile: %w", err)
	}
	s.invalidate(ctx, user.ID)

	s.logger.InfoContext(ctx, "profile updated", slog.String("user_id", user.ID))
	return user.Sanitize(), nil
}

// ChangePassword replaces the password after checking the current one.
func (s *AuthService) ChangePassword(ctx context.Context, userID, currentPassword, newPassword string) error {
	if currentPassword == "" {
		return apperrors.InvalidInput("current password is required")
	}
	if err := validatePassword(newPassword); err != nil {
		return err
	}

	user, err := s.liveUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if !auth.ComparePassword(user.Password, currentPassword) {
		return apperrors.InvalidInput("current password is incorrect")
	}

	if err := s.users.UpdatePassword(ctx, user.ID, newPassword); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	s.invalidate(ctx, user.ID)

	s.logger.InfoContext(ctx, "password changed", slog.String("user_id", user.ID))
	return nil
}

// DeleteUser soft-deletes a user and ends their session.
func (s *AuthService) DeleteUser(ctx context.Context, userID string) error {
	if _, err := s.liveUserByID(ctx, userID); err != nil {
		return err
	}
	if err := s.users.Delete(ctx, userID); err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	s.invalidate(ctx, userID)

	s.logger.InfoContext(ctx, "user deleted", slog.String("user_id", userID))
	return nil
}

// ListUsers returns one page of live accounts with credentials stripped.
func (s *AuthService) ListUsers(ctx context.Context, offset, limit int) ([]domain.User, int, error) {
	users, total, err := s.users.List(ctx, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	out := make([]domain.User, len(users))
	for i := range users {
		out[i] = *users[i].Sanitize()
	}
	return out, total, nil
}
