// Package httptransport assembles the HTTP surface: middleware chain, public
// attestation routes, the JWT-guarded admin surface, health, and metrics.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	attesthandler "skyseal/internal/attestation/handler"
	audithandler "skyseal/internal/audit/handler"
	keyhandler "skyseal/internal/keyring/handler"
	"skyseal/pkg/platform/httputil"
	"skyseal/pkg/platform/middleware/adminauth"
	"skyseal/pkg/platform/middleware/metadata"
	"skyseal/pkg/platform/middleware/requesttime"
)

// HealthCheck probes one dependency. A nil error means healthy.
type HealthCheck func(ctx context.Context) error

// Deps holds everything the router mounts.
type Deps struct {
	Attestations *attesthandler.Handler
	Keys         *keyhandler.Handler
	Audit        *audithandler.Handler
	AdminAuth    *adminauth.Validator
	Logger       *slog.Logger
	Health       map[string]HealthCheck
}

// NewRouter wires all endpoints behind the shared middleware chain.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer)
	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)

	deps.Attestations.Register(r)

	r.Group(func(admin chi.Router) {
		admin.Use(adminauth.RequireAdmin(deps.AdminAuth, deps.Logger))
		deps.Keys.Register(admin)
		if deps.Audit != nil {
			deps.Audit.Register(admin)
		}
	})

	r.Get("/healthz", healthHandler(deps.Health))
	r.Handle("/metrics", promhttp.Handler())

	return r
}

// healthHandler reports per-dependency status; any failing check turns the
// whole response 503 so load balancers stop routing here.
func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		detail := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				status = http.StatusServiceUnavailable
				detail[name] = err.Error()
				continue
			}
			detail[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status": http.StatusText(status),
			"checks": detail,
		})
	}
}
