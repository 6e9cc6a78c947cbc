package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/bullseye/internal/domain"
	"github.com/utafrali/bullseye/internal/service"
	"github.com/utafrali/bullseye/pkg/health"
	"github.com/utafrali/bullseye/pkg/middleware"
)

// RouterConfig carries the transport settings of the router.
type RouterConfig struct {
	ServiceName string
	// APIPrefix is the base path and version, e.g. "/api/v1".
	APIPrefix  string
	CORS       middleware.CORSConfig
	Cookies    CookieConfig
	PprofCIDRs []string
	// TrustedProxies may set X-Forwarded-For and X-Real-IP.
	TrustedProxies []string
	// AuthRateLimit throttles the unauthenticated /auth endpoints per client.
	AuthRateLimit middleware.RateLimitConfig
}

// NewRouter creates a chi router with all routes registered. metrics may be
// nil.
func NewRouter(
	authService *service.AuthService,
	quotaService *service.QuotaService,
	healthHandler *health.Handler,
	metrics *middleware.HTTPMetrics,
	logger *slog.Logger,
	cfg RouterConfig,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.TrustProxies(cfg.TrustedProxies, logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))
	if metrics != nil {
		r.Use(metrics.Middleware)
	}
	r.Use(middleware.CORS(cfg.CORS))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Handle("/metrics", promhttp.Handler())
	if len(cfg.PprofCIDRs) > 0 {
		middleware.RegisterPprof(r, cfg.PprofCIDRs, logger)
	}

	gate := NewGate(authService, logger)
	authHandler := NewAuthHandler(authService, cfg.Cookies, logger)
	quotaHandler := NewQuotaHandler(quotaService, logger)
	adminHandler := NewAdminHandler(authService, logger)

	r.Route(cfg.APIPrefix, func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/auth", func(r chi.Router) {
			r.Use(middleware.NoStore)

			r.Group(func(r chi.Router) {
				r.Use(middleware.RateLimit(cfg.AuthRateLimit, logger))

				r.Post("/signup", authHandler.Signup)
				r.Post("/login", authHandler.Login)
				r.Post("/google", authHandler.Google)
				r.Post("/guest", authHandler.Guest)
				r.Post("/verify-otp", authHandler.VerifyOTP)
				r.Post("/resend-otp", authHandler.ResendOTP)
				r.Post("/forgot-password", authHandler.ForgotPassword)
				r.Post("/reset-password", authHandler.ResetPassword)
				r.Post("/refresh-token", authHandler.RefreshToken)
			})

			r.Group(func(r chi.Router) {
				r.Use(gate.Authenticate)

				r.Post("/logout", authHandler.Logout)
				r.Get("/me", authHandler.Me)
				r.Put("/change-password", authHandler.ChangePassword)
				r.Put("/profile", authHandler.UpdateProfile)
				r.Post("/convert-guest", authHandler.ConvertGuest)
			})
		})

		r.Route("/chat/quota", func(r chi.Router) {
			r.Use(gate.OptionalAuth)

			r.Get("/", quotaHandler.Get)
			r.Post("/consume", quotaHandler.Consume)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(gate.Authenticate)
			r.Use(gate.Authorize(domain.RoleAdmin))

			r.Get("/users", adminHandler.ListUsers)
			r.Delete("/users/{id}", adminHandler.DeleteUser)
		})
	})

	return r
}
