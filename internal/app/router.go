package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	auth "github.com/tradeboard/tradeboard/internal/auth"
	"github.com/tradeboard/tradeboard/internal/observability"
	"github.com/tradeboard/tradeboard/internal/platform/httpx"
	"github.com/tradeboard/tradeboard/internal/rbac"
	"github.com/tradeboard/tradeboard/internal/registry"
	registryhttp "github.com/tradeboard/tradeboard/internal/registry/http"
	"github.com/tradeboard/tradeboard/internal/shared"
	"github.com/tradeboard/tradeboard/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	SessionManager  *shared.SessionManager
	CSRFManager     *shared.CSRFManager
	AuthHandler     *auth.Handler
	RegistryHandler *registryhttp.Handler
	RBACMiddleware  rbac.Middleware
	JobHandler      *jobs.Handler
	Metrics         *observability.Metrics
}

type metaResponse struct {
	Title        string `json:"title"`
	Env          string `json:"env"`
	AuthDisabled bool   `json:"auth_disabled"`
}

// NewRouter constructs the chi.Router with tradeboard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Get("/meta", func(w http.ResponseWriter, r *http.Request) {
		meta := metaResponse{}
		if params.Config != nil {
			meta = metaResponse{Title: params.Config.AppTitle, Env: params.Config.AppEnv, AuthDisabled: params.Config.AuthDisabled}
		}
		httpx.JSON(w, http.StatusOK, meta)
	})

	if params.AuthHandler != nil {
		r.Route("/auth", params.AuthHandler.MountRoutes)
	}
	if params.RegistryHandler != nil {
		r.Group(func(gr chi.Router) {
			gr.Use(params.RBACMiddleware.RequireIdentity)
			params.RegistryHandler.MountRoutes(gr, params.RBACMiddleware)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(jr chi.Router) {
			jr.Use(params.RBACMiddleware.RequireRole(registry.RoleAdmin))
			params.JobHandler.MountRoutes(jr)
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
