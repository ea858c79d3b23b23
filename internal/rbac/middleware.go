package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-rbac/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-rbac/internal/shared"
)

// Authorizer answers permission checks.
type Authorizer interface {
	IsGranted(ctx context.Context, userID int64, resourceType ResourceType, resourceKey, action string) (bool, error)
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Authorizer Authorizer
	Logger     *slog.Logger
}

// RequireAPI allows the request only when the principal holds the api
// permission for the matched route pattern and HTTP method. It must run
// inline on a route (r.With or r.Group) so the pattern is already resolved.
func (m Middleware) RequireAPI(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal := shared.PrincipalFromContext(r.Context())
		if principal == nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		pattern := routePattern(r)
		granted, err := m.Authorizer.IsGranted(r.Context(), principal.UserID, ResourceAPI, pattern, r.Method)
		if err != nil {
			if m.Logger != nil {
				m.Logger.Error("rbac require api", slog.String("route", pattern), slog.Int64("user_id", principal.UserID), slog.Any("error", err))
			}
			httpx.RespondError(w, err)
			return
		}
		if !granted {
			httpx.RespondError(w, httpx.ErrForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAuthenticated rejects requests without a principal.
func (m Middleware) RequireAuthenticated(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if shared.PrincipalFromContext(r.Context()) == nil {
			httpx.RespondError(w, httpx.ErrUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return r.URL.Path
}
