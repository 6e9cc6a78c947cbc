package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/utafrali/bullseye/internal/auth"
	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/pkg/database"
	apperrors "github.com/utafrali/bullseye/pkg/errors"
)

const userColumns = `id, username, email, phone, password, role, user_type, signup_method,
		is_email_verified, is_active, is_deleted, deleted_at, otp_code, otp_type, otp_expires_at,
		refresh_token, profile_picture, created_at, updated_at`

// Partial unique indexes from migrations/000001_create_users.up.sql.
const (
	constraintEmail = "users_email_active_key"
	constraintPhone = "users_phone_active_key"
)

// UserRepository implements repository.UserRepository using PostgreSQL.
type UserRepository struct {
	db         database.DBTX
	bcryptCost int
	now        func() time.Time
}

// NewUserRepository creates a PostgreSQL-backed user repository that hashes
// passwords with the given bcrypt cost.
func NewUserRepository(db database.DBTX, bcryptCost int) *UserRepository {
	return &UserRepository{db: db, bcryptCost: bcryptCost, now: time.Now}
}

// Create inserts a new user, hashing its password first.
func (r *UserRepository) Create(ctx context.Context, u *domain.User) (err error) {
	hash, err := auth.HashPassword(u.Password, r.bcryptCost)
	if err != nil {
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
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`

	ctx, end := database.TraceQuery(ctx, "CreateUser", query)
	defer func() { end(err) }()

	_, err = r.db.Exec(ctx, query,
		u.ID,
		u.Username,
		u.Email,
		u.Phone,
		hash,
		string(u.Role),
		string(u.UserType),
		string(u.SignupMethod),
		u.IsEmailVerified,
		u.IsActive,
		u.IsDeleted,
		u.DeletedAt,
		u.OTPCode,
		nullableOTPType(u.OTPType),
		u.OTPExpiresAt,
		u.RefreshToken,
		u.ProfilePicture,
		u.CreatedAt,
		u.UpdatedAt,
	)
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("insert user: %w", err)
	}

	u.Password = hash
	return nil
}

// GetByID retrieves a user by id, deleted or not.
func (r *UserRepository) GetByID(ctx context.Context, id string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`

	u, err := r.scanUser(ctx, "GetUserByID", query, id)
	if apperrors.IsKind(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFound("user", id)
	}
	return u, err
}

// GetByEmail retrieves a user by email, preferring a live account over
// soft-deleted ones with the same address.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE lower(email) = lower($1)
		ORDER BY is_deleted ASC, created_at DESC
		LIMIT 1`

	u, err := r.scanUser(ctx, "GetUserByEmail", query, strings.TrimSpace(email))
	if apperrors.IsKind(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFoundMsg("user not found")
	}
	return u, err
}

// GetByPhone retrieves a user by phone number.
func (r *UserRepository) GetByPhone(ctx context.Context, phone string) (*domain.User, error) {
	query := `SELECT ` + userColumns + ` FROM users
		WHERE phone = $1
		ORDER BY is_deleted ASC, created_at DESC
		LIMIT 1`

	u, err := r.scanUser(ctx, "GetUserByPhone", query, phone)
	if apperrors.IsKind(err, apperrors.ErrNotFound) {
		return nil, apperrors.NotFoundMsg("user not found")
	}
	return u, err
}

// Update writes profile and status fields.
func (r *UserRepository) Update(ctx context.Context, u *domain.User) (err error) {
	u.UpdatedAt = r.now().UTC()

	query := `
		UPDATE users
		SET username = $1, email = $2, phone = $3, role = $4, user_type = $5, signup_method = $6,
		    is_email_verified = $7, is_active = $8, profile_picture = $9, updated_at = $10
		WHERE id = $11`

	ctx, end := database.TraceQuery(ctx, "UpdateUser", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query,
		u.Username,
		strings.ToLower(strings.TrimSpace(u.Email)),
		u.Phone,
		string(u.Role),
		string(u.UserType),
		string(u.SignupMethod),
		u.IsEmailVerified,
		u.IsActive,
		u.ProfilePicture,
		u.UpdatedAt,
		u.ID,
	)
	if err != nil {
		if conflict := uniqueConflict(err); conflict != nil {
			return conflict
		}
		return fmt.Errorf("update user: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", u.ID)
	}
	return nil
}

// UpdatePassword hashes plain and stores it.
func (r *UserRepository) UpdatePassword(ctx context.Context, id, plain string) error {
	hash, err := auth.HashPassword(plain, r.bcryptCost)
	if err != nil {
		return err
	}
	query := `UPDATE users SET password = $1, updated_at = $2 WHERE id = $3`
	return r.exec(ctx, "UpdateUserPassword", query, id, hash, r.now().UTC(), id)
}

// SetOTP replaces the durable OTP. A nil otp clears code, type and expiry.
func (r *UserRepository) SetOTP(ctx context.Context, id string, otp *domain.IssuedOTP) error {
	var (
		code, typ *string
		expires   *time.Time
	)
	if otp != nil {
		t, e := string(otp.Type), otp.ExpiresAt.UTC()
		code, typ, expires = &otp.Code, &t, &e
	}
	query := `UPDATE users SET otp_code = $1, otp_type = $2, otp_expires_at = $3, updated_at = $4 WHERE id = $5`
	return r.exec(ctx, "SetUserOTP", query, id, code, typ, expires, r.now().UTC(), id)
}

// ConsumeOTP clears the durable OTP in a single conditional update, so only
// one caller can claim a given code.
func (r *UserRepository) ConsumeOTP(ctx context.Context, id, code string, typ domain.OTPType, now time.Time) (ok bool, err error) {
	query := `
		UPDATE users
		SET otp_code = NULL, otp_type = NULL, otp_expires_at = NULL, updated_at = $1
		WHERE id = $2 AND otp_code = $3 AND otp_type = $4 AND otp_expires_at > $5`

	ctx, end := database.TraceQuery(ctx, "ConsumeUserOTP", query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, r.now().UTC(), id, code, string(typ), now.UTC())
	if err != nil {
		return false, fmt.Errorf("ConsumeUserOTP: %w", err)
	}
	return ct.RowsAffected() == 1, nil
}

func (r *UserRepository) SetRefreshToken(ctx context.Context, id string, token *string) error {
	query := `UPDATE users SET refresh_token = $1, updated_at = $2 WHERE id = $3`
	return r.exec(ctx, "SetUserRefreshToken", query, id, token, r.now().UTC(), id)
}

// Delete soft-deletes the user. Already deleted users are left unchanged.
func (r *UserRepository) Delete(ctx context.Context, id string) error {
	now := r.now().UTC()
	query := `
		UPDATE users
		SET is_deleted = TRUE, deleted_at = COALESCE(deleted_at, $1), refresh_token = NULL, updated_at = $1
		WHERE id = $2`
	return r.exec(ctx, "SoftDeleteUser", query, id, now, id)
}

func (r *UserRepository) exec(ctx context.Context, op, query, id string, args ...any) (err error) {
	ctx, end := database.TraceQuery(ctx, op, query)
	defer func() { end(err) }()

	ct, err := r.db.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return apperrors.NotFound("user", id)
	}
	return nil
}

// List returns one page of live users, newest first, and the number of live
// users overall.
func (r *UserRepository) List(ctx context.Context, offset, limit int) (users []domain.User, total int, err error) {
	countQuery := `SELECT count(*) FROM users WHERE NOT is_deleted`

	cctx, end := database.TraceQuery(ctx, "CountUsers", countQuery)
	err = r.db.QueryRow(cctx, countQuery).Scan(&total)
	end(err)
	if err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	query := `SELECT ` + userColumns + ` FROM users
		WHERE NOT is_deleted
		ORDER BY created_at DESC, id
		LIMIT $1 OFFSET $2`

	ctx, end = database.TraceQuery(ctx, "ListUsers", query)
	defer func() { end(err) }()

	rows, err := r.db.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users = make([]domain.User, 0, limit)
	for rows.Next() {
		u, err := scanRow(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, *u)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	return users, total, nil
}

// scanUser executes a query expected to return a single user row.
func (r *UserRepository) scanUser(ctx context.Context, op, query string, args ...any) (*domain.User, error) {
	ctx, end := database.TraceQuery(ctx, op, query)

	u, err := scanRow(r.db.QueryRow(ctx, query, args...))
	end(err)
	if err != nil {
		if database.IsNoRows(err) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

// scanRow reads userColumns in order.
func scanRow(row pgx.Row) (*domain.User, error) {
	var (
		u                            domain.User
		role, userType, signupMethod string
		otpType                      *string
	)
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.Email,
		&u.Phone,
		&u.Password,
		&role,
		&userType,
		&signupMethod,
		&u.IsEmailVerified,
		&u.IsActive,
		&u.IsDeleted,
		&u.DeletedAt,
		&u.OTPCode,
		&otpType,
		&u.OTPExpiresAt,
		&u.RefreshToken,
		&u.ProfilePicture,
		&u.CreatedAt,
		&u.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	u.Role = domain.Role(role)
	u.UserType = domain.UserType(userType)
	u.SignupMethod = domain.SignupMethod(signupMethod)
	if otpType != nil {
		t := domain.OTPType(*otpType)
		u.OTPType = &t
	}
	return &u, nil
}

func nullableOTPType(t *domain.OTPType) *string {
	if t == nil {
		return nil
	}
	s := string(*t)
	return &s
}

func uniqueConflict(err error) error {
	constraint, ok := database.UniqueViolation(err)
	if !ok {
		return nil
	}
	switch constraint {
	case constraintPhone:
		return apperrors.AlreadyExists("phone", "phone number already exists")
	default:
		return apperrors.AlreadyExists("email", "email already exists")
	}
}
