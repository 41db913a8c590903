package ledgerhttp

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
)

// MountRoutes registers the entry endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Route("/companies/{companyID}/entries", func(r chi.Router) {
		r.Use(httprate.LimitByIP(120, time.Minute))
		r.Post("/", h.createEntry)
		r.Delete("/{entryID}", h.deleteEntry)
	})
}

// MountAdminRoutes registers operator endpoints.
func (h *Handler) MountAdminRoutes(r chi.Router) {
	if h == nil {
		return
	}
	r.Post("/admin/reference-cache/invalidate", h.invalidateReference)
}
