package http

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gule/marketplace/internal/domain"
)

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)

	rec := ts.do(t, call{method: http.MethodGet, path: "/health/live"})
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = ts.do(t, call{method: http.MethodGet, path: "/health/ready"})
	assert.Equal(t, http.StatusOK, rec.Code)

	ts.do(t, call{method: http.MethodGet, path: "/api/v1/products"})
	rec = ts.do(t, call{method: http.MethodGet, path: "/metrics"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `route="/api/v1/products"`)
}

func TestCorrelationIDEchoed(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, call{
		method: http.MethodGet, path: "/api/v1/accounts/me",
		headers: map[string]string{"X-Correlation-ID": "corr-123"},
	})
	assert.Equal(t, "corr-123", rec.Header().Get("X-Correlation-ID"))
	assert.Equal(t, "corr-123", errorOf(t, rec).RequestID)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)
	rec := ts.do(t, call{
		method: http.MethodOptions, path: "/api/v1/orders",
		headers: map[string]string{
			"Origin":                        "https://shop.gule.test",
			"Access-Control-Request-Method": "POST",
		},
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://shop.gule.test", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), IdempotencyHeader)
}

func TestAuditLog_AdminOnly(t *testing.T) {
	ts := newTestServer(t)
	p := ts.product(t, 5, domain.ProductActive)
	rec := ts.do(t, call{method: http.MethodPost, path: "/api/v1/orders", token: ts.token(t, ts.buyer), body: orderBody(p.ID, 1)})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/admin/audit", token: ts.token(t, ts.seller)})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = ts.do(t, call{method: http.MethodGet, path: "/api/v1/admin/audit?resource_type=order", token: ts.token(t, ts.admin)})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), domain.ActionOrderCreated)
}
