package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/utafrali/bullseye/internal/auth"
	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/internal/repository"
	apperrors "github.com/utafrali/bullseye/pkg/errors"
	"github.com/utafrali/bullseye/pkg/logger"
)

// resetTicketBytes is the entropy of a password reset ticket.
const resetTicketBytes = 32

// otpLockTTL bounds how long one verification may hold the per-code lock.
const otpLockTTL = 10 * time.Second

// VerifyOTP consumes an OTP. The staged cache copy is checked first; on a
// miss or mismatch the durable copy on the user row is consulted, and it
// must carry the same type. A verified code is claimed atomically from
// both places, so it works only once. After MaxOTPAttempts misses the
// outstanding code is burned.
func (s *AuthService) VerifyOTP(ctx context.Context, email, code string, typ domain.OTPType) (*domain.OTPVerification, error) {
	if !typ.Valid() {
		return nil, apperrors.InvalidInput("invalid OTP type")
	}
	email = normalizeEmail(email)

	release, err := s.otps.Lock(ctx, typ, email, otpLockTTL)
	switch {
	case errors.Is(err, repository.ErrLocked):
		return nil, apperrors.Conflict("OTP verification already in progress")
	case err != nil:
		s.logger.WarnContext(ctx, "otp lock unavailable", slog.String("error", err.Error()))
	default:
		defer release(context.WithoutCancel(ctx))
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if apperrors.IsKind(err, apperrors.ErrNotFound) {
			return nil, apperrors.InvalidInput("invalid or expired OTP")
		}
		return nil, fmt.Errorf("get user for otp verification: %w", err)
	}

	staged, err := s.otps.Get(ctx, typ, email)
	if err != nil && !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.WarnContext(ctx, "otp cache lookup failed", slog.String("error", err.Error()))
	}
	matched := err == nil && staged != "" && equalSecret(staged, code)

	now := s.now()
	if !matched {
		if !holdsOTP(user, code, typ) {
			return nil, s.rejectOTP(ctx, user, email, typ)
		}
		if user.OTPExpiresAt == nil || !now.Before(*user.OTPExpiresAt) {
			return nil, apperrors.InvalidInput("OTP expired")
		}
	}
	if err := checkStanding(user); err != nil {
		return nil, err
	}

	claimed := false
	if matched {
		if claimed, err = s.otps.Consume(ctx, typ, email, code); err != nil {
			s.logger.WarnContext(ctx, "failed to consume staged otp", slog.String("error", err.Error()))
		}
	}
	durable, err := s.users.ConsumeOTP(ctx, user.ID, code, typ, now)
	if err != nil {
		return nil, fmt.Errorf("clear otp: %w", err)
	}
	if !claimed && !durable {
		return nil, apperrors.InvalidInput("invalid or expired OTP")
	}
	if durable {
		user.OTPCode, user.OTPType, user.OTPExpiresAt = nil, nil, nil
	}
	if err := s.otps.ResetFailures(ctx, typ, email); err != nil {
		s.logger.WarnContext(ctx, "failed to reset otp failures", slog.String("error", err.Error()))
	}

	if typ == domain.OTPForgotPassword {
		return s.completeRecoveryOTP(ctx, user)
	}

	if !user.IsEmailVerified {
		user.IsEmailVerified = true
		if err := s.users.Update(ctx, user); err != nil {
			return nil, fmt.Errorf("mark email verified: %w", err)
		}
		s.invalidate(ctx, user.ID)
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "email verified", slog.String("user_id", user.ID))
	return &domain.OTPVerification{Verified: true, User: user.Sanitize(), Tokens: tokens}, nil
}

func holdsOTP(user *domain.User, code string, typ domain.OTPType) bool {
	return user.OTPCode != nil && equalSecret(*user.OTPCode, code) &&
		user.OTPType != nil && *user.OTPType == typ
}

// rejectOTP counts a miss. Once the limit is reached the outstanding code of
// this type is burned and a new one must be requested.
func (s *AuthService) rejectOTP(ctx context.Context, user *domain.User, email string, typ domain.OTPType) error {
	invalid := apperrors.InvalidInput("invalid or expired OTP")
	failures, err := s.otps.RecordFailure(ctx, typ, email, s.opts.OTPTTL)
	if err != nil {
		s.logger.WarnContext(ctx, "failed to record otp failure", slog.String("error", err.Error()))
		return invalid
	}
	if failures < int64(s.opts.MaxOTPAttempts) {
		return invalid
	}

	if err := s.otps.Delete(ctx, typ, email); err != nil {
		s.logger.WarnContext(ctx, "failed to delete staged otp", slog.String("error", err.Error()))
	}
	if user.OTPCode != nil && user.OTPType != nil && *user.OTPType == typ {
		if _, err := s.users.ConsumeOTP(ctx, user.ID, *user.OTPCode, typ, s.now()); err != nil {
			return fmt.Errorf("burn otp: %w", err)
		}
	}

	s.logger.WarnContext(ctx, "otp burned after repeated failures",
		slog.String("user_id", user.ID),
		slog.String("type", string(typ)),
		slog.Int64("failures", failures),
	)
	return apperrors.InvalidInput("too many failed attempts, request a new OTP")
}

func (s *AuthService) completeRecoveryOTP(ctx context.Context, user *domain.User) (*domain.OTPVerification, error) {
	result := &domain.OTPVerification{Verified: true}
	if !s.opts.RequireResetTicket {
		return result, nil
	}

	ticket, err := auth.RandomHex(resetTicketBytes)
	if err != nil {
		return nil, fmt.Errorf("generate reset ticket: %w", err)
	}
	if err := s.tickets.Put(ctx, user.Email, ticket, s.opts.OTPTTL); err != nil {
		return nil, fmt.Errorf("store reset ticket: %w", err)
	}
	result.ResetToken = ticket

	s.logger.InfoContext(ctx, "password recovery otp verified", slog.String("user_id", user.ID))
	return result, nil
}

// ResendOTP issues a fresh OTP of the given type and emails it. Delivery
// failures are returned, since the code cannot be obtained otherwise.
func (s *AuthService) ResendOTP(ctx context.Context, email string, typ domain.OTPType) error {
	if !typ.Valid() {
		return apperrors.InvalidInput("invalid OTP type")
	}
	user, err := s.liveUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	code, err := s.issueOTP(ctx, user, typ)
	if err != nil {
		return err
	}
	if err := s.notifier.SendOTP(ctx, user.Email, user.Username, code, typ); err != nil {
		s.logger.ErrorContext(ctx, "failed to send otp email",
			slog.String("user_id", user.ID),
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
		return apperrors.InvalidInput("failed to send OTP email")
	}

	s.logger.InfoContext(ctx, "otp sent",
		slog.String("user_id", user.ID),
		slog.String("type", string(typ)),
		slog.String("email", logger.MaskEmail(user.Email)),
	)
	return nil
}

// ForgotPassword starts password recovery by emailing a forgotPassword OTP.
func (s *AuthService) ForgotPassword(ctx context.Context, email string) error {
	return s.ResendOTP(ctx, email, domain.OTPForgotPassword)
}

// ResetPassword sets a new password after a verified recovery OTP. Existing
// sessions end: the stored refresh token is cleared.
func (s *AuthService) ResetPassword(ctx context.Context, email, newPassword, resetToken string) error {
	if err := validatePassword(newPassword); err != nil {
		return err
	}
	user, err := s.liveUserByEmail(ctx, email)
	if err != nil {
		return err
	}

	if s.opts.RequireResetTicket {
		if resetToken == "" {
			return apperrors.InvalidInput("reset token is required")
		}
		ok, err := s.tickets.Consume(ctx, user.Email, resetToken)
		if err != nil {
			return fmt.Errorf("consume reset ticket: %w", err)
		}
		if !ok {
			return apperrors.InvalidInput("invalid or expired reset token")
		}
	}

	if err := s.users.UpdatePassword(ctx, user.ID, newPassword); err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if err := s.users.SetOTP(ctx, user.ID, nil); err != nil {
		return fmt.Errorf("clear otp: %w", err)
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, nil); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	if err := s.otps.Delete(ctx, domain.OTPForgotPassword, user.Email); err != nil {
		s.logger.WarnContext(ctx, "failed to delete staged otp", slog.String("error", err.Error()))
	}
	s.invalidate(ctx, user.ID)

	s.logger.InfoContext(ctx, "password reset", slog.String("user_id", user.ID))
	return nil
}

// issueOTP generates a code, persists it on the user and stages it in the
// cache.
func (s *AuthService) issueOTP(ctx context.Context, user *domain.User, typ domain.OTPType) (string, error) {
	code, err := auth.GenerateOTP()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	expires := s.now().UTC().Add(s.opts.OTPTTL)
	if err := s.users.SetOTP(ctx, user.ID, &domain.IssuedOTP{Code: code, Type: typ, ExpiresAt: expires}); err != nil {
		return "", fmt.Errorf("store otp: %w", err)
	}
	user.OTPCode, user.OTPType, user.OTPExpiresAt = &code, &typ, &expires
	s.stageOTP(ctx, typ, user.Email, code)
	return code, nil
}

// stageOTP caches code and restarts its failure count. The user row keeps
// the durable copy, so a cache failure is only logged.
func (s *AuthService) stageOTP(ctx context.Context, typ domain.OTPType, email, code string) {
	if err := s.otps.Set(ctx, typ, email, code, s.opts.OTPTTL); err != nil {
		s.logger.WarnContext(ctx, "failed to stage otp",
			slog.String("type", string(typ)),
			slog.String("error", err.Error()),
		)
	}
	if err := s.otps.ResetFailures(ctx, typ, email); err != nil {
		s.logger.WarnContext(ctx, "failed to reset otp failures", slog.String("error", err.Error()))
	}
}
