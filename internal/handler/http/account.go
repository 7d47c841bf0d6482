package http

import (
	"log/slog"
	"net/http"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/internal/service"
	"github.com/gule/marketplace/pkg/httputil"
)

// AccountHandler serves registration, login and account administration.
type AccountHandler struct {
	service *service.AccountService
	logger  *slog.Logger
}

// NewAccountHandler creates a new account HTTP handler.
func NewAccountHandler(svc *service.AccountService, logger *slog.Logger) *AccountHandler {
	return &AccountHandler{service: svc, logger: logger}
}

// LoginRequest is the JSON request body for login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AccountStatusRequest is the JSON request body for suspending or
// reinstating an account.
type AccountStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=active suspended"`
}

// Register handles POST /api/v1/auth/register
func (h *AccountHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req service.RegisterInput
	if !decode(w, r, &req, h.logger) {
		return
	}

	res, err := h.service.Register(r.Context(), req)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusCreated, res)
}

// Login handles POST /api/v1/auth/login
func (h *AccountHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	res, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, res)
}

// Me handles GET /api/v1/accounts/me
func (h *AccountHandler) Me(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}

	acc, err := h.service.Me(r.Context(), a)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, acc)
}

// UpdateStatus handles PATCH /api/v1/admin/accounts/{accountID}/status
func (h *AccountHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	a, ok := actor(w, r, h.logger)
	if !ok {
		return
	}
	id, ok := pathID(w, r, "accountID")
	if !ok {
		return
	}
	var req AccountStatusRequest
	if !decode(w, r, &req, h.logger) {
		return
	}

	acc, err := h.service.UpdateStatus(r.Context(), a, id, domain.AccountStatus(req.Status))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}
	httputil.WriteData(w, http.StatusOK, acc)
}
