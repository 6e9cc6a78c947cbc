package app

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/utafrali/bullseye/internal/auth"
	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/internal/repository/memory"
	"github.com/utafrali/bullseye/pkg/validator"
)

func TestEnsureAdmin_CreatesVerifiedAdmin(t *testing.T) {
	users := memory.NewUserRepository(bcrypt.MinCost)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	u, created, err := ensureAdmin(ctx, users, AdminAccount{
		Username: "root", Email: " Root@X.com ", Password: "Admin1234",
	}, logger)
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "root@x.com", u.Email)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	assert.True(t, u.IsEmailVerified)
	assert.Empty(t, u.Password)

	stored, err := users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, auth.ComparePassword(stored.Password, "Admin1234"))
}

func TestEnsureAdmin_PromotesExistingUser(t *testing.T) {
	users := memory.NewUserRepository(bcrypt.MinCost)
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	existing := &domain.User{
		Username: "alice", Email: "alice@x.com", Password: "Secret123",
		Role: domain.RoleUser, UserType: domain.UserTypeRegistered, SignupMethod: domain.SignupEmail,
		IsActive: true,
	}
	require.NoError(t, users.Create(ctx, existing))

	u, created, err := ensureAdmin(ctx, users, AdminAccount{
		Username: "ignored", Email: "alice@x.com",
	}, logger)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, existing.ID, u.ID)
	assert.Equal(t, domain.RoleAdmin, u.Role)
	assert.True(t, u.IsEmailVerified)

	stored, err := users.GetByID(ctx, existing.ID)
	require.NoError(t, err)
	assert.True(t, auth.ComparePassword(stored.Password, "Secret123"))
}

func TestEnsureAdmin_RejectsWeakPassword(t *testing.T) {
	users := memory.NewUserRepository(bcrypt.MinCost)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	_, _, err := ensureAdmin(context.Background(), users, AdminAccount{
		Username: "root", Email: "root@x.com", Password: "weak",
	}, logger)
	var verr *validator.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Fields(), "Password")

	_, _, err = ensureAdmin(context.Background(), users, AdminAccount{
		Username: "root", Email: "root@x.com",
	}, logger)
	assert.ErrorContains(t, err, "password is required")
}

func TestCreateAdmin_RequiresPostgres(t *testing.T) {
	cfg := testConfig()
	_, _, err := CreateAdmin(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), AdminAccount{})
	assert.ErrorContains(t, err, "DB_DRIVER=postgres")
}
