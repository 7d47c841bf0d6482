package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/gule/marketplace/pkg/errors"
)

// downstreamError matches the {"error": {...}} envelope other services return.
type downstreamError struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError consumes and closes a non-2xx response and maps it to an
// AppError. Structured bodies keep their message; anything else is quoted.
func ParseResponseError(resp *http.Response, service string) error {
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (read body: %w)", service, resp.StatusCode, err)
	}

	message := string(body)
	var de downstreamError
	if json.Unmarshal(body, &de) == nil && de.Error != nil {
		message = de.Error.Message
	}
	return mapStatus(resp.StatusCode, service, message)
}

func mapStatus(status int, service, message string) error {
	msg := fmt.Sprintf("%s: %s", service, message)
	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(service+" resource", message)
	case status == http.StatusBadRequest, status == http.StatusUnprocessableEntity:
		return apperrors.InvalidInput(msg)
	case status == http.StatusConflict:
		return apperrors.Conflict(msg)
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return apperrors.ServiceUnavailable(service+" rejected our credentials", fmt.Errorf("status %d: %s", status, message))
	case status >= 500:
		return apperrors.ServiceUnavailable(service+" unavailable", fmt.Errorf("status %d: %s", status, message))
	default:
		return fmt.Errorf("%s returned unexpected status %d: %s", service, status, message)
	}
}
