package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/utafrali/bullseye/internal/config"
	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/internal/repository"
	"github.com/utafrali/bullseye/internal/repository/postgres"
	apperrors "github.com/utafrali/bullseye/pkg/errors"
	"github.com/utafrali/bullseye/pkg/validator"
)

// AdminAccount is the operator account created by CreateAdmin.
type AdminAccount struct {
	Username string `validate:"required,min=2,max=50"`
	Email    string `validate:"required,email"`
	Password string `validate:"omitempty,strongpassword"`
}

// CreateAdmin seeds a verified ADMIN account in the PostgreSQL store. When a
// live account already owns the email it is promoted instead and its
// password is left alone.
func CreateAdmin(ctx context.Context, cfg *config.Config, logger *slog.Logger, acct AdminAccount) (*domain.User, bool, error) {
	if cfg.DBDriver != "postgres" {
		return nil, false, fmt.Errorf("create-admin requires DB_DRIVER=postgres, got %q", cfg.DBDriver)
	}
	pool, err := openPool(ctx, cfg, logger)
	if err != nil {
		return nil, false, err
	}
	defer pool.Close()

	return ensureAdmin(ctx, postgres.NewUserRepository(pool, cfg.BcryptCost), acct, logger)
}

func ensureAdmin(ctx context.Context, users repository.UserRepository, acct AdminAccount, logger *slog.Logger) (*domain.User, bool, error) {
	acct.Email = strings.ToLower(strings.TrimSpace(acct.Email))
	acct.Username = strings.TrimSpace(acct.Username)
	if err := validator.Validate(acct); err != nil {
		return nil, false, err
	}

	existing, err := users.GetByEmail(ctx, acct.Email)
	switch {
	case err == nil && !existing.IsDeleted:
		existing.Role = domain.RoleAdmin
		existing.UserType = domain.UserTypeRegistered
		existing.IsEmailVerified = true
		existing.IsActive = true
		if err := users.Update(ctx, existing); err != nil {
			return nil, false, fmt.Errorf("promote user: %w", err)
		}
		logger.InfoContext(ctx, "existing user promoted to admin", slog.String("user_id", existing.ID))
		return existing.Sanitize(), false, nil
	case err != nil && !apperrors.IsKind(err, apperrors.ErrNotFound):
		return nil, false, fmt.Errorf("look up user: %w", err)
	}

	if acct.Password == "" {
		return nil, false, apperrors.InvalidInput("a password is required to create a new admin")
	}
	u := &domain.User{
		Username:        acct.Username,
		Email:           acct.Email,
		Password:        acct.Password,
		Role:            domain.RoleAdmin,
		UserType:        domain.UserTypeRegistered,
		SignupMethod:    domain.SignupEmail,
		IsEmailVerified: true,
		IsActive:        true,
	}
	if err := users.Create(ctx, u); err != nil {
		return nil, false, fmt.Errorf("create admin: %w", err)
	}
	logger.InfoContext(ctx, "admin user created", slog.String("user_id", u.ID))
	return u.Sanitize(), true, nil
}
