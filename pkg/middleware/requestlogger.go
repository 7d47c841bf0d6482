package middleware

import (
	"log/slog"
	"net/http"

	"github.com/gule/marketplace/pkg/logger"
)

// RequestLogger stores a request-scoped logger carrying correlation and trace
// ids. Mount it after RequestLogging and Tracing; Auth adds the caller
// identity on top for authenticated routes.
func RequestLogger(base *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			ctx = logger.NewContext(ctx, logger.WithContext(ctx, base))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
