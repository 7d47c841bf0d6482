package http

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/gule/marketplace/internal/auth"
	"github.com/gule/marketplace/internal/domain"
	apperrors "github.com/gule/marketplace/pkg/errors"
	"github.com/gule/marketplace/pkg/httputil"
	"github.com/gule/marketplace/pkg/validator"
)

// IdempotencyHeader carries the client-chosen key for order placement.
const IdempotencyHeader = "Idempotency-Key"

// decode reads and validates a JSON body. Malformed JSON is rendered as
// INVALID_INPUT, rule violations as VALIDATION_ERROR.
func decode(w http.ResponseWriter, r *http.Request, dst any, logger *slog.Logger) bool {
	err := validator.DecodeAndValidate(w, r, dst)
	if err == nil {
		return true
	}
	var valErr *validator.ValidationError
	if !errors.As(err, &valErr) {
		err = apperrors.InvalidInput("invalid request body: " + err.Error())
	}
	httputil.WriteError(w, r, err, logger)
	return false
}

// pathID parses a UUID path parameter, writing a 400 on failure.
func pathID(w http.ResponseWriter, r *http.Request, param string) (string, bool) {
	id, ok := httputil.ParseUUID(w, r, param, chi.URLParam(r, param))
	if !ok {
		return "", false
	}
	return id.String(), true
}

// actor returns the authenticated caller or writes a 401.
func actor(w http.ResponseWriter, r *http.Request, logger *slog.Logger) (domain.Actor, bool) {
	a, ok := auth.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteError(w, r, apperrors.Unauthorized("authentication required"), logger)
		return domain.Actor{}, false
	}
	return a, true
}

// optionalActor returns the caller when the request carried a token.
func optionalActor(r *http.Request) *domain.Actor {
	a, ok := auth.ActorFromContext(r.Context())
	if !ok {
		return nil
	}
	return &a
}

func replayStatus(replayed bool) int {
	if replayed {
		return http.StatusOK
	}
	return http.StatusCreated
}

// reasonRequest is the optional body of cancel and moderation calls.
type reasonRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// decodeOptional decodes dst when the request has a body.
func decodeOptional(w http.ResponseWriter, r *http.Request, dst any, logger *slog.Logger) bool {
	if r.ContentLength == 0 {
		return true
	}
	return decode(w, r, dst, logger)
}
