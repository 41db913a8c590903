package dashboardhttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/finboard/finboard/internal/dashboard"
	"github.com/finboard/finboard/internal/indicator"
	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/period"
	"github.com/finboard/finboard/internal/platform/httpx"
)

// Service is the computation contract used by the handler.
type Service interface {
	Compute(ctx context.Context, req dashboard.Request) (dashboard.Result, error)
}

// Handler serves computed dashboard surfaces as JSON.
type Handler struct {
	logger  *slog.Logger
	service Service
	timeout time.Duration
	now     func() time.Time
}

// NewHandler constructs the dashboard HTTP handler. timeout bounds each
// request on top of the router's own timeout.
func NewHandler(logger *slog.Logger, service Service, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, timeout: timeout, now: time.Now}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type dashboardQuery struct {
	Month int `validate:"min=1,max=12"`
	Year  int `validate:"min=1900,max=9999"`
	Limit int `validate:"min=0,max=100"`
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	req, err := h.parseRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	result, err := h.service.Compute(ctx, req)
	if err != nil {
		h.respondError(w, "compute dashboard", err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

func (h *Handler) parseRequest(r *http.Request) (dashboard.Request, error) {
	companyID, err := httpx.UUIDParam(r, "companyID")
	if err != nil {
		return dashboard.Request{}, err
	}
	surface, err := dashboard.ParseSurface(r.URL.Query().Get("surface"))
	if err != nil {
		return dashboard.Request{}, err
	}
	now := period.FromTime(h.now())
	var q dashboardQuery
	if q.Month, err = httpx.IntQuery(r, "month", now.Month); err != nil {
		return dashboard.Request{}, err
	}
	if q.Year, err = httpx.IntQuery(r, "year", now.Year); err != nil {
		return dashboard.Request{}, err
	}
	if q.Limit, err = httpx.IntQuery(r, "limit", 0); err != nil {
		return dashboard.Request{}, err
	}
	if err := httpx.Validate(q); err != nil {
		return dashboard.Request{}, err
	}
	length, err := period.ParseLength(r.URL.Query().Get("window"))
	if err != nil {
		return dashboard.Request{}, fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	}
	return dashboard.Request{
		CompanyID:    companyID,
		Surface:      surface,
		Period:       period.Period{Month: q.Month, Year: q.Year},
		WindowLength: length,
		ListLimit:    q.Limit,
	}, nil
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, indicator.ErrCyclicComposition):
		err = fmt.Errorf("%w: %w", httpx.ErrUnprocessable, err)
	case errors.Is(err, ledger.ErrUpstreamFetch):
		err = fmt.Errorf("%w: %w", httpx.ErrUpstream, err)
	}
	if !errors.Is(err, httpx.ErrValidation) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
