package app

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	dashboardhttp "github.com/finboard/finboard/internal/dashboard/http"
	drehttp "github.com/finboard/finboard/internal/dre/http"
	ledgerhttp "github.com/finboard/finboard/internal/ledger/http"
	"github.com/finboard/finboard/internal/observability"
	"github.com/finboard/finboard/internal/platform/httpx"
	"github.com/finboard/finboard/jobs"
)

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

// Ping implements Pinger.
func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Metrics *observability.Metrics

	DashboardHandler *dashboardhttp.Handler
	DREHandler       *drehttp.Handler
	LedgerHandler    *ledgerhttp.Handler
	JobHandler       *jobs.Handler

	// Checks are probed by /healthz, keyed by dependency name.
	Checks map[string]Pinger
}

// NewRouter constructs the chi.Router with finboard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", healthz(params.Checks))
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	params.DashboardHandler.MountRoutes(r)
	params.DREHandler.MountRoutes(r)
	params.LedgerHandler.MountRoutes(r)
	params.LedgerHandler.MountAdminRoutes(r)
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}
	return r
}

type healthReport struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func healthz(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		report := healthReport{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			report.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if check == nil {
				continue
			}
			if err := check.Ping(ctx); err != nil {
				report.Checks[name] = err.Error()
				report.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			report.Checks[name] = "ok"
		}
		httpx.JSON(w, status, report)
	}
}
