package service

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/utafrali/bullseye/internal/auth"
	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/internal/federation"
	"github.com/utafrali/bullseye/internal/repository"
	apperrors "github.com/utafrali/bullseye/pkg/errors"
	"github.com/utafrali/bullseye/pkg/logger"
	"github.com/utafrali/bullseye/pkg/validator"
)

const (
	// DefaultOTPTTL is how long an issued OTP stays valid.
	DefaultOTPTTL = 10 * time.Minute
	// DefaultMaxOTPAttempts is how many wrong codes burn an outstanding OTP.
	DefaultMaxOTPAttempts = 5
)

const msgInvalidCredentials = "invalid email or password"

// TokenIssuer is implemented by *auth.JWTManager.
type TokenIssuer interface {
	IssuePair(p domain.TokenPayload) (*domain.TokenPair, error)
	ValidateAccessToken(token string) (*auth.Claims, error)
	ValidateRefreshToken(token string) (*auth.Claims, error)
	InspectRefreshToken(token string) (*auth.Claims, error)
	InspectAccessToken(token string) (*auth.Claims, error)
}

// IdentityVerifier is implemented by *federation.GoogleVerifier.
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (*federation.Claims, error)
}

// NotificationDispatcher delivers OTP emails.
type NotificationDispatcher interface {
	SendOTP(ctx context.Context, email, username, code string, typ domain.OTPType) error
}

// Clock returns the current time.
type Clock func() time.Time

// Options tunes the auth flows.
type Options struct {
	OTPTTL         time.Duration
	MaxOTPAttempts int
	// RequireResetTicket makes ResetPassword demand the ticket minted by a
	// successful forgotPassword OTP verification.
	RequireResetTicket bool
}

// Deps lists the collaborators of AuthService. Identity may be nil when no
// federated provider is configured.
type Deps struct {
	Users     repository.UserRepository
	Cache     repository.UserCache
	OTPs      repository.OTPStore
	Blacklist repository.TokenBlacklist
	Tickets   repository.ResetTicketStore
	Tokens    TokenIssuer
	Identity  IdentityVerifier
	Notifier  NotificationDispatcher
}

// AuthService implements signup, login, OTP, password and session flows.
type AuthService struct {
	users     repository.UserRepository
	cache     repository.UserCache
	otps      repository.OTPStore
	blacklist repository.TokenBlacklist
	tickets   repository.ResetTicketStore
	tokens    TokenIssuer
	identity  IdentityVerifier
	notifier  NotificationDispatcher
	opts      Options
	now       Clock
	logger    *slog.Logger
}

// NewAuthService creates a new auth service.
func NewAuthService(deps Deps, opts Options, logger *slog.Logger) *AuthService {
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = DefaultOTPTTL
	}
	if opts.MaxOTPAttempts <= 0 {
		opts.MaxOTPAttempts = DefaultMaxOTPAttempts
	}
	return &AuthService{
		users:     deps.Users,
		cache:     deps.Cache,
		otps:      deps.OTPs,
		blacklist: deps.Blacklist,
		tickets:   deps.Tickets,
		tokens:    deps.Tokens,
		identity:  deps.Identity,
		notifier:  deps.Notifier,
		opts:      opts,
		now:       time.Now,
		logger:    logger,
	}
}

// WithClock replaces the time source. Used by tests.
func (s *AuthService) WithClock(c Clock) *AuthService {
	s.now = c
	return s
}

// SignupInput holds the parameters for an email signup.
type SignupInput struct {
	Username string
	Email    string
	Phone    *string
	Password string
}

// Signup creates an unverified account and starts the email verification
// cycle. No tokens are issued until the email is verified.
func (s *AuthService) Signup(ctx context.Context, in SignupInput) (*domain.User, error) {
	email := normalizeEmail(in.Email)
	if email == "" {
		return nil, apperrors.InvalidInput("email is required")
	}
	if strings.TrimSpace(in.Username) == "" {
		return nil, apperrors.InvalidInput("username is required")
	}
	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}
	phone := normalizePhone(in.Phone)

	if err := s.ensureEmailFree(ctx, email, ""); err != nil {
		return nil, err
	}
	if err := s.ensurePhoneFree(ctx, phone, ""); err != nil {
		return nil, err
	}

	code, err := auth.GenerateOTP()
	if err != nil {
		return nil, fmt.Errorf("generate otp: %w", err)
	}
	expires := s.now().UTC().Add(s.opts.OTPTTL)
	otpType := domain.OTPEmailVerification

	user := &domain.User{
		Username:     strings.TrimSpace(in.Username),
		Email:        email,
		Phone:        phone,
		Password:     in.Password,
		Role:         domain.RoleUser,
		UserType:     domain.UserTypeRegistered,
		SignupMethod: domain.SignupEmail,
		IsActive:     true,
		OTPCode:      &code,
		OTPType:      &otpType,
		OTPExpiresAt: &expires,
	}
	if err := s.users.Create(ctx, user); err != nil {
		if apperrors.IsKind(err, apperrors.ErrAlreadyExists) {
			return nil, err
		}
		return nil, fmt.Errorf("create user: %w", err)
	}

	s.stageOTP(ctx, domain.OTPEmailVerification, email, code)
	if err := s.notifier.SendOTP(ctx, email, user.Username, code, domain.OTPEmailVerification); err != nil {
		s.logger.ErrorContext(ctx, "failed to send verification email",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	s.logger.InfoContext(ctx, "user signed up",
		slog.String("user_id", user.ID),
		slog.String("email", logger.MaskEmail(email)),
	)
	return user.Sanitize(), nil
}

// Login checks email and password and signs the user in. Unknown emails and
// wrong passwords produce the same error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*domain.AuthResult, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if !apperrors.IsKind(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("get user for login: %w", err)
		}
		auth.ComparePassword("", password)
		return nil, apperrors.Unauthorized(msgInvalidCredentials)
	}

	if !auth.ComparePassword(user.Password, password) {
		s.logger.InfoContext(ctx, "login rejected", slog.String("user_id", user.ID))
		return nil, apperrors.Unauthorized(msgInvalidCredentials)
	}
	if err := checkStanding(user); err != nil {
		return nil, err
	}
	if !user.IsEmailVerified {
		return nil, apperrors.Unauthorized("please verify your email before logging in")
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "user logged in", slog.String("user_id", user.ID))
	return &domain.AuthResult{User: user.Sanitize(), Tokens: tokens}, nil
}

// RefreshToken rotates a refresh token. The supplied token must be the one
// currently stored for the user, so a superseded token is refused.
func (s *AuthService) RefreshToken(ctx context.Context, refreshToken string) (*domain.AuthResult, error) {
	if refreshToken == "" {
		return nil, apperrors.Unauthorized("refresh token is required")
	}
	if s.isRevoked(ctx, refreshToken) {
		return nil, apperrors.Unauthorized("refresh token has been revoked")
	}

	claims, err := s.tokens.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, apperrors.Unauthorized("invalid or expired refresh token")
	}

	user, err := s.users.GetByID(ctx, claims.UserID)
	if err != nil {
		if apperrors.IsKind(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("invalid or expired refresh token")
		}
		return nil, fmt.Errorf("get user for token refresh: %w", err)
	}
	if user.RefreshToken == nil || !equalSecret(*user.RefreshToken, refreshToken) {
		s.logger.WarnContext(ctx, "superseded refresh token presented", slog.String("user_id", user.ID))
		return nil, apperrors.Unauthorized("refresh token has been revoked")
	}
	if err := checkStanding(user); err != nil {
		return nil, err
	}

	tokens, err := s.issueTokens(ctx, user)
	if err != nil {
		return nil, err
	}

	s.logger.InfoContext(ctx, "tokens refreshed", slog.String("user_id", user.ID))
	return &domain.AuthResult{User: user.Sanitize(), Tokens: tokens}, nil
}

// Logout revokes the presented tokens until they expire and clears the
// stored refresh token. Tokens that belong to a different user are not
// revoked, but the caller's session is still cleared.
func (s *AuthService) Logout(ctx context.Context, userID, refreshToken, accessToken string) error {
	if refreshToken != "" {
		s.revoke(ctx, userID, refreshToken, s.tokens.InspectRefreshToken)
	}
	if accessToken != "" {
		s.revoke(ctx, userID, accessToken, s.tokens.InspectAccessToken)
	}

	if err := s.users.SetRefreshToken(ctx, userID, nil); err != nil {
		return fmt.Errorf("clear refresh token: %w", err)
	}
	s.invalidate(ctx, userID)

	s.logger.InfoContext(ctx, "user logged out", slog.String("user_id", userID))
	return nil
}

func (s *AuthService) revoke(ctx context.Context, userID, token string, inspect func(string) (*auth.Claims, error)) {
	claims, err := inspect(token)
	if err != nil {
		return
	}
	if claims.UserID != userID {
		s.logger.WarnContext(ctx, "logout with a token of another user",
			slog.String("user_id", userID),
			slog.String("token_user_id", claims.UserID),
		)
		return
	}
	ttl := claims.ExpiresAt.Time.Sub(s.now())
	if ttl <= 0 {
		return
	}
	if err := s.blacklist.Add(ctx, token, ttl); err != nil {
		s.logger.ErrorContext(ctx, "failed to blacklist token",
			slog.String("user_id", userID),
			slog.String("error", err.Error()),
		)
	}
}

// Authenticate resolves an access token to the user it was issued to. The
// projection is read through the short-lived gate cache. Guests pass
// without email verification.
func (s *AuthService) Authenticate(ctx context.Context, accessToken string) (*domain.AuthUser, error) {
	if accessToken == "" {
		return nil, apperrors.Unauthorized("authentication required")
	}
	if s.isRevoked(ctx, accessToken) {
		return nil, apperrors.Unauthorized("token has been revoked")
	}
	claims, err := s.tokens.ValidateAccessToken(accessToken)
	if err != nil || claims.UserID == "" {
		return nil, apperrors.Unauthorized("invalid or expired token")
	}

	au, err := s.authUser(ctx, claims.UserID)
	if err != nil {
		return nil, err
	}
	if !au.IsActive {
		return nil, apperrors.Forbidden("account is deactivated")
	}
	if !au.IsEmailVerified && au.UserType != domain.UserTypeGuest {
		return nil, apperrors.Forbidden("please verify your email")
	}
	return au, nil
}

func (s *AuthService) authUser(ctx context.Context, id string) (*domain.AuthUser, error) {
	au, err := s.cache.GetAuthUser(ctx, id)
	if err == nil {
		return au, nil
	}
	if !errors.Is(err, repository.ErrCacheMiss) {
		s.logger.WarnContext(ctx, "auth user cache read failed", slog.String("error", err.Error()))
	}

	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsKind(err, apperrors.ErrNotFound) {
			return nil, apperrors.Unauthorized("user not found")
		}
		return nil, fmt.Errorf("get user for authentication: %w", err)
	}
	au = user.Projection()
	if err := s.cache.SetAuthUser(ctx, au); err != nil {
		s.logger.WarnContext(ctx, "auth user cache write failed", slog.String("error", err.Error()))
	}
	return au, nil
}

// isRevoked fails open: a blacklist outage is logged and the token is
// treated as live.
func (s *AuthService) isRevoked(ctx context.Context, token string) bool {
	revoked, err := s.blacklist.Contains(ctx, token)
	if err != nil {
		s.logger.WarnContext(ctx, "blacklist lookup failed", slog.String("error", err.Error()))
		return false
	}
	return revoked
}

// issueTokens signs a new pair for user and stores the refresh token, which
// supersedes any earlier one.
func (s *AuthService) issueTokens(ctx context.Context, user *domain.User) (*domain.TokenPair, error) {
	pair, err := s.tokens.IssuePair(domain.TokenPayload{
		UserID: user.ID,
		Email:  user.Email,
		Role:   user.Role,
	})
	if err != nil {
		return nil, fmt.Errorf("issue tokens: %w", err)
	}
	if err := s.users.SetRefreshToken(ctx, user.ID, &pair.RefreshToken); err != nil {
		return nil, fmt.Errorf("store refresh token: %w", err)
	}
	user.RefreshToken = &pair.RefreshToken
	return pair, nil
}

// ensureEmailFree fails with a conflict when a live user other than selfID
// owns email.
func (s *AuthService) ensureEmailFree(ctx context.Context, email, selfID string) error {
	existing, err := s.users.GetByEmail(ctx, email)
	switch {
	case apperrors.IsKind(err, apperrors.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("check email: %w", err)
	case existing.IsDeleted || existing.ID == selfID:
		return nil
	}
	return apperrors.AlreadyExists("email", "email already exists")
}

func (s *AuthService) ensurePhoneFree(ctx context.Context, phone *string, selfID string) error {
	if phone == nil {
		return nil
	}
	existing, err := s.users.GetByPhone(ctx, *phone)
	switch {
	case apperrors.IsKind(err, apperrors.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("check phone: %w", err)
	case existing.IsDeleted || existing.ID == selfID:
		return nil
	}
	return apperrors.AlreadyExists("phone", "phone number already exists")
}

// liveUserByEmail returns the non-deleted user owning email.
func (s *AuthService) liveUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	user, err := s.users.GetByEmail(ctx, normalizeEmail(email))
	if err != nil {
		if apperrors.IsKind(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user by email: %w", err)
	}
	if user.IsDeleted {
		return nil, apperrors.NotFoundMsg("user not found")
	}
	return user, nil
}

func (s *AuthService) liveUserByID(ctx context.Context, id string) (*domain.User, error) {
	user, err := s.users.GetByID(ctx, id)
	if err != nil {
		if apperrors.IsKind(err, apperrors.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("get user: %w", err)
	}
	if user.IsDeleted {
		return nil, apperrors.NotFound("user", id)
	}
	return user, nil
}

// invalidate drops cached copies of a user. Failures only delay freshness
// until the entries expire.
func (s *AuthService) invalidate(ctx context.Context, id string) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "failed to invalidate user cache",
			slog.String("user_id", id),
			slog.String("error", err.Error()),
		)
	}
}

func checkStanding(user *domain.User) error {
	if user.IsDeleted {
		return apperrors.Forbidden("account has been deleted")
	}
	if !user.IsActive {
		return apperrors.Forbidden("account is deactivated")
	}
	return nil
}

func validatePassword(password string) error {
	if !validator.StrongPassword(password) {
		return apperrors.InvalidInput("password must be at least 8 characters and contain an uppercase letter, a lowercase letter and a digit")
	}
	return nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func normalizePhone(phone *string) *string {
	if phone == nil {
		return nil
	}
	p := strings.TrimSpace(*phone)
	if p == "" {
		return nil
	}
	return &p
}

func equalSecret(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

var errNoIdentityProvider = errors.New("no identity provider configured")
