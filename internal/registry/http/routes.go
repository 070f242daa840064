package registryhttp

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/tradeboard/tradeboard/internal/platform/httpx"
	"github.com/tradeboard/tradeboard/internal/registry"
	"github.com/tradeboard/tradeboard/internal/shared"
)

// RoleGate restricts routes to the given roles.
type RoleGate interface {
	RequireRole(roles ...registry.Role) func(http.Handler) http.Handler
}

// MountRoutes registers registry endpoints onto the router.
func (h *Handler) MountRoutes(r chi.Router, gate RoleGate) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(10, time.Minute,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "")
		}),
	)

	r.Route("/registry", func(rr chi.Router) {
		rr.Get("/dashboard", h.handleDashboard)
		rr.Get("/status", h.handleStatus)
		rr.Group(func(gr chi.Router) {
			gr.Use(limiter)
			gr.Get("/export.csv", h.handleCSV)
			gr.Get("/export.xlsx", h.handleXLSX)
			gr.Get("/export/monthly.csv", h.handleMonthlyCSV)
			gr.Get("/export/top-products.csv", h.handleTopProductsCSV)
			gr.With(gate.RequireRole(registry.RoleAdmin, registry.RoleStaff)).Post("/upload", h.handleUpload)
		})
		rr.With(gate.RequireRole(registry.RoleAdmin)).Post("/reload", h.handleReload)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if id, ok := shared.IdentityFromContext(r.Context()); ok {
		if user := strings.TrimSpace(id.Username); user != "" {
			return "user:" + user, nil
		}
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
