package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/bullseye/internal/service"
	apperrors "github.com/utafrali/bullseye/pkg/errors"
	"github.com/utafrali/bullseye/pkg/httputil"
	"github.com/utafrali/bullseye/pkg/pagination"
)

// AdminHandler exposes account administration to ADMIN users.
type AdminHandler struct {
	service *service.AuthService
	logger  *slog.Logger
}

func NewAdminHandler(svc *service.AuthService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{service: svc, logger: logger}
}

// ListUsers handles GET /admin/users?page=&perPage=.
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	users, total, err := h.service.ListUsers(r.Context(), params.Offset, params.PerPage)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteSuccess(w, http.StatusOK, pagination.NewResult(users, total, params), "")
}

// DeleteUser handles DELETE /admin/users/{id}. Deletion is soft.
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if admin, ok := AuthUserFromContext(r.Context()); ok && admin.ID == id {
		httputil.WriteError(w, r, apperrors.InvalidInput("administrators cannot delete their own account"), h.logger)
		return
	}

	if err := h.service.DeleteUser(r.Context(), id); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	h.logger.InfoContext(r.Context(), "user deleted by admin", slog.String("target_user_id", id))
	httputil.WriteSuccess(w, http.StatusOK, nil, "user deleted")
}
