package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/bullseye/internal/auth"
	"github.com/utafrali/bullseye/internal/domain"
	apperrors "github.com/utafrali/bullseye/pkg/errors"
	"github.com/utafrali/bullseye/pkg/logger"
)

// GuestEmailDomain is the domain of synthesized guest addresses.
const GuestEmailDomain = "guest.local"

// GoogleAuth signs in with a Google ID token, creating the account on first
// use. An email already registered through another method is refused.
func (s *AuthService) GoogleAuth(ctx context.Context, idToken, username string) (*domain.AuthResult, error) {
	if s.identity == nil {
		s.logger.WarnContext(ctx, "google sign-in attempted", slog.String("error", errNoIdentityProvider.Error()))
		return nil, apperrors.Unauthorized("google sign-in is not available")
	}

	claims, err := s.identity.Verify(ctx, idToken)
	if err != nil {
		s.logger.InfoContext(ctx, "google token rejected", slog.String("error", err.Error()))
		return nil, apperrors.Unauthorized("invalid google token")
	}
	email := normalizeEmail(claims.Email)
	if email == "" {
		return nil, apperrors.InvalidInput("google account has no email address")
	}
	username = strings.TrimSpace(username)

	user, err := s.liveUserByEmail(ctx, email)
	switch {
	case apperrors.IsKind(err, apperrors.ErrNotFound):
		return s.createGoogleUser(ctx, email, username, claims.Name, claims.Picture, claims.EmailVerified)
	case err != nil:
		return nil, err
	}

	if user.SignupMethod != domain.SignupGoogle {
		return nil, apperrors.Conflict("email is already registered with a password, sign in with email instead")
	}

	changed := false
	if claims.Picture != "" && (user.ProfilePicture == nil || *user.ProfilePicture != claims.Picture) {
		pic := claims.Picture
		user.ProfilePicture = &pic
		changed = true
	}
	if username != "" && username != user.Username {
		user.Username = username
		changed = true
	}
	if claims.EmailVerified && !user.IsEmailVerified {
		user.IsEmailVerified = true
		changed = true
	}
	if changed {
		if err := s.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("sync google profile: %w", err)
		}
		s.invalidate(ctx, user.ID)
	}

	if err := checkStanding(user); err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "google sign-in", slog.String("user_id", user.ID))
	return &domain.AuthResult{User: user.Sanitize(), Tokens: tokens}, nil
}

func (s *AuthService) createGoogleUser(ctx context.Context, email, username, name, picture string, verified bool) (*domain.AuthResult, error) {
	if username == "" {
		username = strings.TrimSpace(name)
	}
	if username == "" {
		username, _, _ = strings.Cut(email, "@")
	}
	placeholder, err := auth.RandomHex(32)
	if err != nil {
		return nil, fmt.Errorf("generate placeholder password: %w", err)
	}

	user := &domain.User{
		Username:        username,
		Email:           email,
		Password:        placeholder,
		Role:            domain.RoleUser,
		UserType:        domain.UserTypeRegistered,
		SignupMethod:    domain.SignupGoogle,
		IsEmailVerified: verified,
		IsActive:        true,
	}
	if picture != "" {
		user.ProfilePicture = &picture
	}
	if err := s.users.Create(ctx, user); err != nil {
		if apperrors.IsKind(err, apperrors.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create google user: %w", err)
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "google user created",
		slog.String("user_id", user.ID),
		slog.String("email", logger.MaskEmail(email)),
	)
	return &domain.AuthResult{User: user.Sanitize(), Tokens: tokens}, nil
}

// GuestLogin creates a placeholder account and signs it in at once. Guests
// are treated as verified.
func (s *AuthService) GuestLogin(ctx context.Context, username string) (*domain.AuthResult, error) {
	suffix, err := auth.RandomHex(4)
	if err != nil {
		return nil, fmt.Errorf("generate guest suffix: %w", err)
	}
	placeholder, err := auth.RandomHex(32)
	if err != nil {
		return nil, fmt.Errorf("generate placeholder password: %w", err)
	}
	username = strings.TrimSpace(username)
	if username == "" {
		username = "guest_" + suffix
	}

	user := &domain.User{
		Username:        username,
		Email:           fmt.Sprintf("guest_%d_%s@%s", s.now().UnixMilli(), suffix, GuestEmailDomain),
		Password:        placeholder,
		Role:            domain.RoleUser,
		UserType:        domain.UserTypeGuest,
		SignupMethod:    domain.SignupEmail,
		IsEmailVerified: true,
		IsActive:        true,
	}
	if err := s.users.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("create guest: %w", err)
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "guest signed in", slog.String("user_id", user.ID))
	return &domain.AuthResult{User: user.Sanitize(), Tokens: tokens}, nil
}

// ConvertGuestInput holds the credentials a guest registers with.
type ConvertGuestInput struct {
	Email    string
	Password string
	Username string
}

// ConvertGuestToRegistered turns a guest into a registered, unverified
// account and starts email verification. Non-guests are refused before
// anything is written.
func (s *AuthService) ConvertGuestToRegistered(ctx context.Context, userID string, in ConvertGuestInput) (*domain.AuthResult, error) {
	user, err := s.liveUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !user.IsGuest() {
		return nil, apperrors.InvalidInput("user is already registered")
	}

	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	if err := s.ensureEmailFree(ctx, email, user.ID); err != nil {
		return nil, err
	}

	user.Email = email
	if name := strings.TrimSpace(in.Username); name != "" {
		user.Username = name
	}
	// The password lands first so a failed conversion never leaves a
	// REGISTERED account without one.
	if err := s.users.UpdatePassword(ctx, user.ID, in.Password); err != nil {
		return nil, fmt.Errorf("set password: %w", err)
	}
	user.UserType = domain.UserTypeRegistered
	user.IsEmailVerified = false
	if err := s.users.Update(ctx, user); err != nil {
		if apperrors.IsKind(err, apperrors.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("convert guest: %w", err)
	}
	s.invalidate(ctx, user.ID)

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	code, err := s.issueOTP(ctx, user, domain.OTPEmailVerification)
	if err != nil {
		s.logger.ErrorContext(ctx, "failed to issue verification otp",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	} else if err := s.notifier.SendOTP(ctx, email, user.Username, code, domain.OTPEmailVerification); err != nil {
		s.logger.ErrorContext(ctx, "failed to send verification email",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "guest converted",
		slog.String("user_id", user.ID),
		slog.String("email", logger.MaskEmail(email)),
	)
	return &domain.AuthResult{User: user.Sanitize(), Tokens: tokens}, nil
}
