package ledgerhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/platform/httpx"
)

// EntryService records and removes postings.
type EntryService interface {
	Record(ctx context.Context, e ledger.Entry) (ledger.Entry, error)
	Delete(ctx context.Context, companyID, id uuid.UUID) error
}

// Invalidator drops cached reference data.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Handler exposes the posting write path and the reference cache admin hook.
type Handler struct {
	logger  *slog.Logger
	entries EntryService
	cache   Invalidator
}

// NewHandler builds the handler. cache may be nil when Redis is disabled.
func NewHandler(logger *slog.Logger, entries EntryService, cache Invalidator) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, entries: entries, cache: cache}
}

type entryInput struct {
	CategoryID  *uuid.UUID      `json:"category_id"`
	IndicatorID *uuid.UUID      `json:"indicator_id"`
	ClientID    *uuid.UUID      `json:"client_id"`
	Month       int             `json:"month" validate:"min=1,max=12"`
	Year        int             `json:"year" validate:"min=1900,max=9999"`
	Amount      decimal.Decimal `json:"amount"`
	Kind        string          `json:"kind" validate:"required,oneof=receita despesa revenue expense"`
}

func (h *Handler) createEntry(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.UUIDParam(r, "companyID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var in entryInput
	if err := httpx.DecodeJSON(r, &in); err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
		return
	}
	if err := httpx.Validate(in); err != nil {
		httpx.RespondError(w, err)
		return
	}
	subject, err := ledger.RefFromColumns(in.CategoryID, in.IndicatorID, in.ClientID)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
		return
	}
	kind, err := ledger.ParseKind(in.Kind)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: %w", httpx.ErrValidation, err))
		return
	}

	entry, err := h.entries.Record(r.Context(), ledger.Entry{
		CompanyID: companyID,
		Subject:   subject,
		Month:     in.Month,
		Year:      in.Year,
		Amount:    in.Amount,
		Kind:      kind,
	})
	if err != nil {
		h.respondError(w, "record entry", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) deleteEntry(w http.ResponseWriter, r *http.Request) {
	companyID, err := httpx.UUIDParam(r, "companyID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	entryID, err := httpx.UUIDParam(r, "entryID")
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.entries.Delete(r.Context(), companyID, entryID); err != nil {
		h.respondError(w, "delete entry", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) invalidateReference(w http.ResponseWriter, r *http.Request) {
	if h.cache == nil {
		httpx.RespondError(w, fmt.Errorf("%w: reference cache", httpx.ErrUnavailable))
		return
	}
	if err := h.cache.Invalidate(r.Context()); err != nil {
		h.respondError(w, "invalidate reference cache", err)
		return
	}
	h.logger.Info("reference cache invalidated")
	w.WriteHeader(http.StatusAccepted)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ledger.ErrInvalidEntry):
		err = fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	case errors.Is(err, ledger.ErrEntryNotFound):
		err = fmt.Errorf("%w: %w", httpx.ErrNotFound, err)
	case errors.Is(err, ledger.ErrUpstreamFetch):
		err = fmt.Errorf("%w: %w", httpx.ErrUpstream, err)
	}
	if !errors.Is(err, httpx.ErrValidation) && !errors.Is(err, httpx.ErrNotFound) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
