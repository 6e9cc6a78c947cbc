package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/utafrali/bullseye/internal/domain"
)

// ErrInvalidToken is returned for every verification failure: malformed,
// expired, bad signature or wrong token kind.
var ErrInvalidToken = errors.New("invalid or expired token")

const (
	kindAccess  = "access"
	kindRefresh = "refresh"
)

// Claims are carried by both access and refresh tokens.
type Claims struct {
	UserID string      `json:"user_id"`
	Email  string      `json:"email"`
	Role   domain.Role `json:"role"`
	Kind   string      `json:"typ"`
	jwt.RegisteredClaims
}

// Config configures a JWTManager.
type Config struct {
	AccessSecret  string
	RefreshSecret string
	AccessExpiry  time.Duration
	RefreshExpiry time.Duration
	Issuer        string
}

// JWTManager handles JWT token generation and validation.
type JWTManager struct {
	accessSecret  []byte
	refreshSecret []byte
	accessExpiry  time.Duration
	refreshExpiry time.Duration
	issuer        string
	now           func() time.Time
}

func NewJWTManager(cfg Config) *JWTManager {
	return &JWTManager{
		accessSecret:  []byte(cfg.AccessSecret),
		refreshSecret: []byte(cfg.RefreshSecret),
		accessExpiry:  cfg.AccessExpiry,
		refreshExpiry: cfg.RefreshExpiry,
		issuer:        cfg.Issuer,
		now:           time.Now,
	}
}

// IssuePair signs a fresh access/refresh pair for p.
func (m *JWTManager) IssuePair(p domain.TokenPayload) (*domain.TokenPair, error) {
	access, err := m.sign(p, kindAccess, m.accessSecret, m.accessExpiry)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := m.sign(p, kindRefresh, m.refreshSecret, m.refreshExpiry)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func (m *JWTManager) sign(p domain.TokenPayload, kind string, secret []byte, ttl time.Duration) (string, error) {
	now := m.now().UTC()
	claims := &Claims{
		UserID: p.UserID,
		Email:  p.Email,
		Role:   p.Role,
		Kind:   kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   p.UserID,
			Issuer:    m.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ValidateAccessToken parses and validates an access token.
func (m *JWTManager) ValidateAccessToken(token string) (*Claims, error) {
	return m.parse(token, kindAccess, m.accessSecret, true)
}

// ValidateRefreshToken parses and validates a refresh token.
func (m *JWTManager) ValidateRefreshToken(token string) (*Claims, error) {
	return m.parse(token, kindRefresh, m.refreshSecret, true)
}

// InspectRefreshToken returns the claims of a correctly signed refresh
// token, whether or not it has already expired.
func (m *JWTManager) InspectRefreshToken(token string) (*Claims, error) {
	return m.parse(token, kindRefresh, m.refreshSecret, false)
}

// InspectAccessToken is InspectRefreshToken for access tokens.
func (m *JWTManager) InspectAccessToken(token string) (*Claims, error) {
	return m.parse(token, kindAccess, m.accessSecret, false)
}

func (m *JWTManager) parse(token, kind string, secret []byte, checkExpiry bool) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(m.now),
		jwt.WithExpirationRequired(),
	}
	if m.issuer != "" {
		opts = append(opts, jwt.WithIssuer(m.issuer))
	}
	if !checkExpiry {
		opts = append(opts, jwt.WithoutClaimsValidation())
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return secret, nil
	}, opts...)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	// WithoutClaimsValidation skips the issuer check too.
	if !checkExpiry && m.issuer != "" && claims.Issuer != m.issuer {
		return nil, ErrInvalidToken
	}
	if claims.Kind != kind || claims.UserID == "" || claims.ExpiresAt == nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
