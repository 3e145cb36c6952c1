package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/sakif/learnquest/internal/repository"
	"github.com/sakif/learnquest/internal/service"
)

// AdminHandler serves the admin-only endpoints. The handlers themselves
// contain NO role checks — the RequireRole(RoleAdmin) middleware in the
// router is the enforcement point, and it runs before anything here does.
type AdminHandler struct {
	svc    *service.AuthService
	logger *slog.Logger
}

// NewAdminHandler creates an AdminHandler.
func NewAdminHandler(svc *service.AuthService, logger *slog.Logger) *AdminHandler {
	return &AdminHandler{svc: svc, logger: logger}
}

// HandleListUsers returns the account roster, paged.
//
// HTTP: GET /api/admin/users?limit=50&offset=0
// Auth: Required, role admin
//
// Secret fields never appear — the repository's public projection doesn't
// even SELECT them.
func (h *AdminHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	opts := repository.ListOptions{Limit: 50}

	if v := r.URL.Query().Get("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 200 {
			opts.Limit = n
		}
	}
	if v := r.URL.Query().Get("offset"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			opts.Offset = n
		}
	}

	users, err := h.svc.ListUsers(r.Context(), opts)
	if err != nil {
		h.logger.Error("listing users failed", slog.String("error", err.Error()))
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, users)
}
