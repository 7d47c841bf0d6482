package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSentinelErrors_AreDistinct(t *testing.T) {
	sentinels := []error{
		ErrNotFound, ErrAlreadyExists, ErrInvalidInput, ErrUnauthorized,
		ErrForbidden, ErrInternal, ErrConflict, ErrInsufficientStock, ErrServiceUnavail,
	}

	for i := 0; i < len(sentinels); i++ {
		for j := i + 1; j < len(sentinels); j++ {
			assert.NotEqual(t, sentinels[i], sentinels[j])
		}
	}
}

func TestAppError_ErrorString(t *testing.T) {
	withInner := &AppError{Code: "INTERNAL_ERROR", Message: "boom", Err: fmt.Errorf("db gone")}
	assert.Equal(t, "INTERNAL_ERROR: boom: db gone", withInner.Error())

	plain := &AppError{Code: "NOT_FOUND", Message: "order not found"}
	assert.Equal(t, "NOT_FOUND: order not found", plain.Error())
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"not found", NotFound("product", "p-1"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"already exists", AlreadyExists("account", "email", "a@b.c"), "ALREADY_EXISTS", http.StatusConflict, ErrAlreadyExists},
		{"invalid input", InvalidInput("bad"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput},
		{"validation", Validation(map[string]string{"rating": "is required"}), "VALIDATION_ERROR", http.StatusBadRequest, ErrInvalidInput},
		{"unauthorized", Unauthorized("no token"), "UNAUTHORIZED", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", Forbidden("not yours"), "FORBIDDEN", http.StatusForbidden, ErrForbidden},
		{"conflict", Conflict("status changed"), "CONFLICT", http.StatusConflict, ErrConflict},
		{"insufficient stock", InsufficientStock("p-1", 2, 1), "INSUFFICIENT_STOCK", http.StatusConflict, ErrInsufficientStock},
		{"duplicate review", DuplicateReview("p-1"), "DUPLICATE_REVIEW", http.StatusBadRequest, ErrAlreadyExists},
		{"already reported", AlreadyReported("r-1"), "ALREADY_REPORTED", http.StatusConflict, ErrAlreadyExists},
		{"account suspended", AccountSuspended(), "ACCOUNT_SUSPENDED", http.StatusForbidden, ErrForbidden},
		{"unavailable", ServiceUnavailable("escrow down", errors.New("dial")), "SERVICE_UNAVAILABLE", http.StatusServiceUnavailable, ErrServiceUnavail},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.NotNil(t, tt.err)
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestInsufficientStock_UnknownAvailable(t *testing.T) {
	err := InsufficientStock("p-9", 3, -1)
	assert.NotContains(t, err.Message, "available")
}

func TestInternal_HidesCause(t *testing.T) {
	cause := errors.New("password=hunter2")
	err := Internal(cause)
	assert.Equal(t, "an internal error occurred", err.Message)
	assert.ErrorIs(t, err, cause)
}

func TestHTTPStatus_PlainErrors(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(fmt.Errorf("get: %w", ErrNotFound)))
	assert.Equal(t, http.StatusConflict, HTTPStatus(fmt.Errorf("decrement: %w", ErrInsufficientStock)))
	assert.Equal(t, http.StatusBadRequest, HTTPStatus(ErrInvalidInput))
	assert.Equal(t, http.StatusServiceUnavailable, HTTPStatus(ErrServiceUnavail))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("unknown")))
}

func TestHTTPStatus_WrappedAppError(t *testing.T) {
	err := fmt.Errorf("update order: %w", Forbidden("nope"))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(err))
}
