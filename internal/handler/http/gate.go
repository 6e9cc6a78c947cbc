package http

import (
	"context"
	"log/slog"
	"net/http"
	"slices"

	"github.com/utafrali/bullseye/internal/domain"
	apperrors "github.com/utafrali/bullseye/pkg/errors"
	"github.com/utafrali/bullseye/pkg/httputil"
	"github.com/utafrali/bullseye/pkg/middleware"
)

// Authenticator resolves an access token to the caller's projection.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*domain.AuthUser, error)
}

type contextKey string

const authUserKey contextKey = "auth_user"

// WithAuthUser returns a copy of ctx carrying u.
func WithAuthUser(ctx context.Context, u *domain.AuthUser) context.Context {
	return context.WithValue(ctx, authUserKey, u)
}

// AuthUserFromContext returns the user attached by the gate, if any.
func AuthUserFromContext(ctx context.Context) (*domain.AuthUser, bool) {
	u, ok := ctx.Value(authUserKey).(*domain.AuthUser)
	return u, ok && u != nil
}

// Gate guards routes with access-token authentication and role checks.
type Gate struct {
	auth   Authenticator
	logger *slog.Logger
}

func NewGate(auth Authenticator, logger *slog.Logger) *Gate {
	return &Gate{auth: auth, logger: logger}
}

// Authenticate rejects the request unless it carries a valid access token
// for an active, verified (or guest) user.
func (g *Gate) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, err := g.auth.Authenticate(r.Context(), middleware.ExtractToken(r, middleware.AccessTokenCookie))
		if err != nil {
			httputil.WriteError(w, r, err, g.logger)
			return
		}
		next.ServeHTTP(w, g.attach(r, user))
	})
}

// OptionalAuth attaches the user when the token checks out and otherwise
// continues anonymously.
func (g *Gate) OptionalAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := middleware.ExtractToken(r, middleware.AccessTokenCookie)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}
		user, err := g.auth.Authenticate(r.Context(), token)
		if err != nil {
			g.logger.DebugContext(r.Context(), "optional auth ignored token", slog.String("error", err.Error()))
			next.ServeHTTP(w, r)
			return
		}
		next.ServeHTTP(w, g.attach(r, user))
	})
}

// Authorize admits only users whose role is in roles. Mount after Authenticate.
func (g *Gate) Authorize(roles ...domain.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := AuthUserFromContext(r.Context())
			if !ok {
				httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), g.logger)
				return
			}
			if !slices.Contains(roles, user.Role) {
				httputil.WriteError(w, r, apperrors.Forbidden("insufficient permissions"), g.logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func (g *Gate) attach(r *http.Request, user *domain.AuthUser) *http.Request {
	r = middleware.Identify(r, g.logger, user.ID)
	return r.WithContext(WithAuthUser(r.Context(), user))
}

// requireUser returns the gate-attached user or writes 401.
func requireUser(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (*domain.AuthUser, bool) {
	user, ok := AuthUserFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), logger)
		return nil, false
	}
	return user, true
}
