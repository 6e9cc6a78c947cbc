// Package federation verifies identity tokens issued by external providers.
package federation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	oauth2 "google.golang.org/api/oauth2/v2"
	"google.golang.org/api/option"
)

// ErrVerificationFailed is the only error Verify returns to callers. Network
// errors, expired tokens, bad signatures and audience mismatches all map to it.
var ErrVerificationFailed = errors.New("identity token verification failed")

// Claims are the identity attributes extracted from a verified token.
type Claims struct {
	UID           string
	Email         string
	EmailVerified bool
	Name          string
	Picture       string
	PhoneNumber   string
}

// GoogleConfig configures a GoogleVerifier.
type GoogleConfig struct {
	// ClientIDs lists the OAuth client ids accepted as token audience.
	ClientIDs []string
	// Endpoint overrides the Google API base URL. Tests point it at an
	// httptest server.
	Endpoint   string
	HTTPClient *http.Client
}

// GoogleVerifier checks Google ID tokens with the oauth2 tokeninfo endpoint.
type GoogleVerifier struct {
	svc       *oauth2.Service
	clientIDs []string
	logger    *slog.Logger
}

func NewGoogleVerifier(ctx context.Context, cfg GoogleConfig, logger *slog.Logger) (*GoogleVerifier, error) {
	client := cfg.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	opts := []option.ClientOption{option.WithHTTPClient(client)}
	if cfg.Endpoint != "" {
		opts = append(opts, option.WithEndpoint(cfg.Endpoint))
	}

	svc, err := oauth2.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create google oauth2 service: %w", err)
	}
	return &GoogleVerifier{svc: svc, clientIDs: cfg.ClientIDs, logger: logger}, nil
}

// Verify validates idToken with Google and returns its claims.
func (v *GoogleVerifier) Verify(ctx context.Context, idToken string) (*Claims, error) {
	if strings.TrimSpace(idToken) == "" {
		return nil, ErrVerificationFailed
	}

	info, err := v.svc.Tokeninfo().IdToken(idToken).Context(ctx).Do()
	if err != nil {
		v.logger.WarnContext(ctx, "google token verification failed", slog.String("error", err.Error()))
		return nil, ErrVerificationFailed
	}
	if len(v.clientIDs) == 0 || !slices.Contains(v.clientIDs, info.Audience) {
		v.logger.WarnContext(ctx, "google token audience rejected", slog.String("audience", info.Audience))
		return nil, ErrVerificationFailed
	}

	claims := &Claims{
		UID:           info.UserId,
		Email:         strings.ToLower(info.Email),
		EmailVerified: info.VerifiedEmail,
	}
	// Google already checked the signature; the payload only supplies the
	// profile fields tokeninfo omits.
	profile := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(idToken, profile); err == nil {
		claims.Name, _ = profile["name"].(string)
		claims.Picture, _ = profile["picture"].(string)
		claims.PhoneNumber, _ = profile["phone_number"].(string)
		if claims.UID == "" {
			claims.UID, _ = profile["sub"].(string)
		}
	}
	return claims, nil
}
