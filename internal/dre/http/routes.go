package drehttp

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the statement and export endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	reads := httprate.Limit(60, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP, companyKey), httprate.WithLimitHandler(tooMany))
	exports := httprate.Limit(10, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP, companyKey), httprate.WithLimitHandler(tooMany))

	r.Route("/companies/{companyID}/dre", func(r chi.Router) {
		r.With(reads).Get("/", h.handleStatement)
		r.Group(func(r chi.Router) {
			r.Use(exports)
			r.Get("/export.csv", h.handleCSV)
			r.Get("/export.xlsx", h.handleXLSX)
			r.Get("/export.pdf", h.handlePDF)
		})
	})
}

func companyKey(r *http.Request) (string, error) {
	return "company:" + chi.URLParam(r, "companyID"), nil
}

func tooMany(w http.ResponseWriter, _ *http.Request) {
	http.Error(w, http.StatusText(http.StatusTooManyRequests), http.StatusTooManyRequests)
}
