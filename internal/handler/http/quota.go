package http

import (
	"log/slog"
	"net/http"

	"github.com/utafrali/bullseye/internal/service"
	"github.com/utafrali/bullseye/pkg/httputil"
	"github.com/utafrali/bullseye/pkg/middleware"
)

// QuotaHandler serves the daily chat allowance. Routes are mounted behind
// OptionalAuth; anonymous callers are counted per client IP.
type QuotaHandler struct {
	service *service.QuotaService
	logger  *slog.Logger
}

func NewQuotaHandler(svc *service.QuotaService, logger *slog.Logger) *QuotaHandler {
	return &QuotaHandler{service: svc, logger: logger}
}

// Get handles GET /chat/quota
func (h *QuotaHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, _ := AuthUserFromContext(r.Context())
	q, err := h.service.Quota(r.Context(), user, middleware.ClientIP(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, q, "")
}

// Consume handles POST /chat/quota/consume
func (h *QuotaHandler) Consume(w http.ResponseWriter, r *http.Request) {
	user, _ := AuthUserFromContext(r.Context())
	q, err := h.service.Consume(r.Context(), user, middleware.ClientIP(r))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteSuccess(w, http.StatusOK, q, "")
}
