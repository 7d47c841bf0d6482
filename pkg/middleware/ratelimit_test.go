package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRateLimiter_BurstThen429(t *testing.T) {
	rl := NewRateLimiter(0.001, 2, discardLogger())
	h := rl.Middleware(okHandler)

	send := func(remote string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", nil)
		req.RemoteAddr = remote
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, send("10.0.0.1:1000").Code)
	assert.Equal(t, http.StatusOK, send("10.0.0.1:1001").Code)

	rec := send("10.0.0.1:1002")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "1", rec.Header().Get("Retry-After"))
	assert.Equal(t, "RATE_LIMITED", errorCode(t, rec))

	// Separate bucket per IP.
	assert.Equal(t, http.StatusOK, send("10.0.0.2:1000").Code)
}

func TestVisitorStore_Evict(t *testing.T) {
	s := newVisitorStore(1, 1, time.Minute)
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }

	s.limiter("1.1.1.1")
	now = now.Add(30 * time.Second)
	s.limiter("2.2.2.2")
	now = now.Add(45 * time.Second)

	s.evict()
	assert.Equal(t, 1, s.size())
}

func TestClientIP(t *testing.T) {
	tests := []struct {
		name   string
		xff    string
		xri    string
		remote string
		want   string
	}{
		{"remote addr", "", "", "192.0.2.1:5555", "192.0.2.1"},
		{"xff single", "203.0.113.9", "", "10.0.0.1:1", "203.0.113.9"},
		{"xff chain", "garbage, 198.51.100.7, 10.0.0.1", "", "10.0.0.1:1", "198.51.100.7"},
		{"x-real-ip", "", "198.51.100.8", "10.0.0.1:1", "198.51.100.8"},
		{"no port", "", "", "192.0.2.44", "192.0.2.44"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			if tt.xff != "" {
				req.Header.Set("X-Forwarded-For", tt.xff)
			}
			if tt.xri != "" {
				req.Header.Set("X-Real-IP", tt.xri)
			}
			assert.Equal(t, tt.want, clientIP(req))
		})
	}
}
