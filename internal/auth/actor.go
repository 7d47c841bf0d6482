package auth

import (
	"context"
	"net/http"

	"github.com/gule/marketplace/internal/domain"
	"github.com/gule/marketplace/pkg/middleware"
)

type actorKey struct{}

// Actor resolves the domain actor from the verified claims once per request.
// It must run after middleware.Auth.
func Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		claims := middleware.ClaimsFromContext(r.Context())
		if claims == nil {
			next.ServeHTTP(w, r)
			return
		}
		t, ok := domain.ParseAccountType(claims.UserType)
		if !ok {
			next.ServeHTTP(w, r)
			return
		}
		ctx := WithActor(r.Context(), domain.Actor{ID: claims.UserID, Type: t})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// WithActor stores a in ctx.
func WithActor(ctx context.Context, a domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, a)
}

// ActorFromContext returns the actor stored by Actor.
func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	a, ok := ctx.Value(actorKey{}).(domain.Actor)
	return a, ok
}
