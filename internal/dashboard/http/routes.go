package dashboardhttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the dashboard endpoint onto the router.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	limiter := httprate.Limit(60, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP, companyKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
		}),
	)
	r.With(limiter).Get("/companies/{companyID}/dashboard", h.handleDashboard)
}

func companyKey(r *http.Request) (string, error) {
	return "company:" + chi.URLParam(r, "companyID"), nil
}
