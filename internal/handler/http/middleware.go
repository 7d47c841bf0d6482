package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gule/marketplace/internal/auth"
	"github.com/gule/marketplace/internal/service"
	"github.com/gule/marketplace/pkg/httputil"
	"github.com/gule/marketplace/pkg/middleware"
)

// optionalAuth authenticates requests that carry an Authorization header and
// passes anonymous ones through untouched. A bad token is still a 401.
func optionalAuth(validate middleware.TokenValidator) func(http.Handler) http.Handler {
	authenticate := middleware.Auth(validate)
	return func(next http.Handler) http.Handler {
		authed := authenticate(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				next.ServeHTTP(w, r)
				return
			}
			authed.ServeHTTP(w, r)
		})
	}
}

// catalogueCache lets shared caches keep anonymous catalogue reads for
// maxAge. Authenticated reads may include unpublished listings and are
// never cached.
func catalogueCache(maxAge time.Duration) func(http.Handler) http.Handler {
	public := middleware.PublicCache(maxAge)
	return func(next http.Handler) http.Handler {
		cached := public(next)
		private := middleware.NoStore(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.Header.Get("Authorization") == "" {
				cached.ServeHTTP(w, r)
				return
			}
			private.ServeHTTP(w, r)
		})
	}
}

// activeAccount re-reads the caller's account so a suspension takes effect
// before the token expires. It must run after auth.Actor.
func activeAccount(accounts *service.AccountService, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			a, ok := auth.ActorFromContext(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			if err := accounts.CheckActive(r.Context(), a.ID); err != nil {
				httputil.WriteError(w, r, err, logger)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
