package drehttp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/finboard/finboard/internal/dre"
	"github.com/finboard/finboard/internal/dre/export"
	"github.com/finboard/finboard/internal/indicator"
	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/period"
	"github.com/finboard/finboard/internal/platform/httpx"
	"github.com/finboard/finboard/report"
)

// Service is the statement contract used by the handler.
type Service interface {
	Report(ctx context.Context, req dre.Request) (dre.Report, error)
}

// Handler serves the DRE as JSON and as CSV, XLSX or PDF downloads.
type Handler struct {
	logger   *slog.Logger
	service  Service
	renderer export.HTMLRenderer
	timeout  time.Duration
	now      func() time.Time
}

// NewHandler constructs the handler. renderer may be nil, in which case the
// PDF export answers 503.
func NewHandler(logger *slog.Logger, service Service, renderer export.HTMLRenderer, timeout time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, renderer: renderer, timeout: timeout, now: time.Now}
}

// WithNow overrides the handler clock for testing.
func (h *Handler) WithNow(fn func() time.Time) {
	if fn != nil {
		h.now = fn
	}
}

type statementQuery struct {
	Month int `validate:"min=1,max=12"`
	Year  int `validate:"min=1900,max=9999"`
}

func (h *Handler) handleStatement(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.compute(w, r)
	if !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, rep)
}

func (h *Handler) handleCSV(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.compute(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteCSV(&buf, rep); err != nil {
		h.respondError(w, "export dre csv", err)
		return
	}
	h.attach(w, "text/csv; charset=utf-8", filename(rep, "csv"), buf.Bytes())
}

func (h *Handler) handleXLSX(w http.ResponseWriter, r *http.Request) {
	rep, ok := h.compute(w, r)
	if !ok {
		return
	}
	var buf bytes.Buffer
	if err := export.WriteXLSX(&buf, rep); err != nil {
		h.respondError(w, "export dre xlsx", err)
		return
	}
	h.attach(w, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", filename(rep, "xlsx"), buf.Bytes())
}

func (h *Handler) handlePDF(w http.ResponseWriter, r *http.Request) {
	if h.renderer == nil {
		httpx.RespondError(w, fmt.Errorf("%w: pdf renderer", httpx.ErrUnavailable))
		return
	}
	rep, ok := h.compute(w, r)
	if !ok {
		return
	}
	pdf, err := export.RenderPDF(r.Context(), h.renderer, "DRE "+rep.Period.Label(), rep)
	if err != nil {
		h.respondError(w, "export dre pdf", err)
		return
	}
	h.attach(w, "application/pdf", filename(rep, "pdf"), pdf)
}

func (h *Handler) compute(w http.ResponseWriter, r *http.Request) (dre.Report, bool) {
	req, err := h.parseRequest(r)
	if err != nil {
		httpx.RespondError(w, err)
		return dre.Report{}, false
	}
	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}
	rep, err := h.service.Report(ctx, req)
	if err != nil {
		h.respondError(w, "compute dre", err)
		return dre.Report{}, false
	}
	return rep, true
}

func (h *Handler) parseRequest(r *http.Request) (dre.Request, error) {
	companyID, err := httpx.UUIDParam(r, "companyID")
	if err != nil {
		return dre.Request{}, err
	}
	now := period.FromTime(h.now())
	var q statementQuery
	if q.Month, err = httpx.IntQuery(r, "month", now.Month); err != nil {
		return dre.Request{}, err
	}
	if q.Year, err = httpx.IntQuery(r, "year", now.Year); err != nil {
		return dre.Request{}, err
	}
	if err := httpx.Validate(q); err != nil {
		return dre.Request{}, err
	}
	length, err := period.ParseLength(r.URL.Query().Get("window"))
	if err != nil {
		return dre.Request{}, fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	}
	return dre.Request{
		CompanyID:    companyID,
		Period:       period.Period{Month: q.Month, Year: q.Year},
		WindowLength: length,
	}, nil
}

func (h *Handler) attach(w http.ResponseWriter, contentType, name string, body []byte) {
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	w.Header().Set("Content-Length", strconv.Itoa(len(body)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write export", slog.Any("error", err))
	}
}

func filename(rep dre.Report, ext string) string {
	return fmt.Sprintf("dre-%s-%s.%s", rep.CompanyID, rep.Period, ext)
}

func (h *Handler) respondError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, indicator.ErrCyclicComposition), errors.Is(err, dre.ErrEmptyWindow):
		err = fmt.Errorf("%w: %w", httpx.ErrUnprocessable, err)
	case errors.Is(err, ledger.ErrUpstreamFetch), errors.Is(err, report.ErrRender):
		err = fmt.Errorf("%w: %w", httpx.ErrUpstream, err)
	}
	if !errors.Is(err, httpx.ErrValidation) {
		h.logger.Error(op, slog.Any("error", err))
	}
	httpx.RespondError(w, err)
}
