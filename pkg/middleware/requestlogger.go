package middleware

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/bullseye/pkg/logger"
)

// RequestLogger stores a logger enriched with the request's correlation,
// user, trace and span ids in the context; handlers fetch it with
// logger.FromContext. Mount it after RequestLogging and Tracing.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// Identify records the authenticated user id on the request context and
// rebuilds the request-scoped logger so later log lines carry user_id.
func Identify(r *http.Request, base *slog.Logger, userID string) *http.Request {
	ctx := logger.WithUserID(r.Context(), userID)
	ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
	return r.WithContext(ctx)
}
