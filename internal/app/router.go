package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-rbac/internal/auth"
	"github.com/odyssey-erp/odyssey-rbac/internal/observability"
	"github.com/odyssey-erp/odyssey-rbac/internal/rbac"
	"github.com/odyssey-erp/odyssey-rbac/internal/roles"
	"github.com/odyssey-erp/odyssey-rbac/internal/users"
	"github.com/odyssey-erp/odyssey-rbac/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger   *slog.Logger
	Config   *Config
	Issuer   *auth.Issuer
	Metrics  *observability.Metrics
	RBAC     rbac.Middleware
	Auth     *auth.Handler
	Perms    *rbac.Handler
	Users    *users.Handler
	Roles    *roles.Handler
	Jobs     *jobs.Handler
	// Readyzer reports whether backing stores are reachable.
	Readyzer func(*http.Request) error
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	var authenticate func(http.Handler) http.Handler
	if params.Issuer != nil {
		authenticate = auth.Authenticate(params.Issuer)
	}
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:       params.Logger,
		Config:       params.Config,
		Metrics:      params.Metrics,
		Authenticate: authenticate,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})
	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		if params.Readyzer != nil {
			if err := params.Readyzer(req); err != nil {
				params.logger().Warn("readiness check", slog.Any("error", err))
				http.Error(w, http.StatusText(http.StatusServiceUnavailable), http.StatusServiceUnavailable)
				return
			}
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	})
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		if params.Auth != nil {
			r.Route("/auth", func(r chi.Router) {
				r.Use(AuthRateLimit(params.Config))
				params.Auth.MountRoutes(r)
			})
		}
		if params.Perms != nil {
			params.Perms.MountRoutes(r)
		}
		if params.Users != nil {
			params.Users.MountRoutes(r)
		}
		if params.Roles != nil {
			params.Roles.MountRoutes(r)
		}
		if params.Jobs != nil {
			r.Group(func(r chi.Router) {
				r.Use(params.RBAC.RequireAPI)
				params.Jobs.MountRoutes(r)
			})
		}
	})

	return r
}

func (p RouterParams) logger() *slog.Logger {
	if p.Logger != nil {
		return p.Logger
	}
	return slog.Default()
}
