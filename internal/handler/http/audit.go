package http

import (
	"log/slog"
	"net/http"

	"github.com/gule/marketplace/internal/repository"
	"github.com/gule/marketplace/internal/service"
	"github.com/gule/marketplace/pkg/httputil"
	"github.com/gule/marketplace/pkg/pagination"
)

// AuditHandler exposes the audit log to admins.
type AuditHandler struct {
	service *service.AuditService
	logger  *slog.Logger
}

// NewAuditHandler creates a new audit HTTP handler.
func NewAuditHandler(svc *service.AuditService, logger *slog.Logger) *AuditHandler {
	return &AuditHandler{service: svc, logger: logger}
}

// List handles GET /api/v1/admin/audit
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	p := pagination.FromRequest(r)
	q := r.URL.Query()

	entries, total, err := h.service.List(r.Context(), a, repository.AuditFilter{
		ResourceType: q.Get("resource_type"),
		ResourceID:   q.Get("resource_id"),
		ActorID:      q.Get("actor_id"),
		Page:         p.Page,
		PerPage:      p.PerPage,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(entries, total, p))
}
