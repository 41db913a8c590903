package dre

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/finboard/finboard/internal/indicator"
	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/observability"
	"github.com/finboard/finboard/internal/period"
	"github.com/finboard/finboard/internal/platform/httpx"
)

// StructureReader loads the company-scoped statement structure.
type StructureReader interface {
	ReadStructure(ctx context.Context, companyID uuid.UUID) (Structure, error)
}

// ReferenceLoader yields categories, clients, indicators and compositions.
type ReferenceLoader interface {
	Load(ctx context.Context) (ledger.ReferenceData, error)
}

// EntryReader reads ledger postings.
type EntryReader interface {
	ListEntries(ctx context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error)
}

// Recorder receives computation metrics.
type Recorder interface {
	ObserveComputation(c observability.Computation)
}

// Request scopes one statement.
type Request struct {
	CompanyID    uuid.UUID
	Period       period.Period
	WindowLength int
}

// Report is a computed statement.
type Report struct {
	CompanyID uuid.UUID          `json:"company_id"`
	Period    period.Period      `json:"period"`
	Window    []period.Period    `json:"window"`
	Accounts  []*ComputedAccount `json:"accounts"`
}

// Service computes statements.
type Service struct {
	structure StructureReader
	refs      ReferenceLoader
	entries   EntryReader
	logger    *slog.Logger
	recorder  Recorder
	timeout   time.Duration
}

// NewService wires the readers. timeout bounds each computation; zero
// disables it. recorder may be nil.
func NewService(structure StructureReader, refs ReferenceLoader, entries EntryReader, logger *slog.Logger, recorder Recorder, timeout time.Duration) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{structure: structure, refs: refs, entries: entries, logger: logger, recorder: recorder, timeout: timeout}
}

// Report fetches the structure, reference data and postings in parallel and
// computes the statement for the window ending at req.Period.
func (s *Service) Report(ctx context.Context, req Request) (Report, error) {
	if req.CompanyID == uuid.Nil {
		return Report{}, fmt.Errorf("%w: company id required", httpx.ErrValidation)
	}
	if req.WindowLength == 0 {
		req.WindowLength = period.LongWindow
	}
	window, err := period.Window(req.Period, req.WindowLength)
	if err != nil {
		return Report{}, fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	report, stats, err := s.report(ctx, req, window)
	if s.recorder != nil {
		c := observability.Computation{
			Report:   "dre",
			Computed: stats.Computed,
			Hits:     stats.Hits,
			Gaps:     stats.Gaps,
			Elapsed:  time.Since(start),
			Err:      err,
		}
		if isCycle(err) {
			c.Cycles = 1
		}
		s.recorder.ObserveComputation(c)
	}
	if err != nil {
		return Report{}, err
	}
	return report, nil
}

func (s *Service) report(ctx context.Context, req Request, window []period.Period) (Report, indicator.Stats, error) {
	var (
		structure Structure
		refs      ledger.ReferenceData
		entries   []ledger.Entry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		structure, err = s.structure.ReadStructure(gctx, req.CompanyID)
		return err
	})
	g.Go(func() (err error) {
		refs, err = s.refs.Load(gctx)
		return err
	})
	g.Go(func() (err error) {
		entries, err = s.entries.ListEntries(gctx, ledger.EntryFilter{
			CompanyID: req.CompanyID,
			Years:     period.Years(window),
			Months:    period.Months(window),
		})
		return err
	})
	if err := g.Wait(); err != nil {
		return Report{}, indicator.Stats{}, fmt.Errorf("dre: fetch: %w", err)
	}

	index := ledger.NewIndex(entries)
	resolver := indicator.NewResolver(indicator.NewGraph(refs.Indicators, refs.Compositions), index, refs.Catalog())
	forest, err := Compute(ctx, structure.Accounts, structure.Components, resolver, window)
	if err != nil {
		return Report{}, resolver.Stats(), fmt.Errorf("dre: compute: %w", err)
	}
	for _, id := range forest.Orphans {
		s.logger.Warn("account parent not in scope, shown as root",
			slog.String("company_id", req.CompanyID.String()),
			slog.String("account_id", id.String()),
		)
	}
	for _, id := range forest.CycleBreaks {
		s.logger.Warn("account parent links form a cycle, detached as root",
			slog.String("company_id", req.CompanyID.String()),
			slog.String("account_id", id.String()),
		)
	}
	stats := resolver.Stats()
	s.logger.Debug("dre computed",
		slog.String("company_id", req.CompanyID.String()),
		slog.String("period", req.Period.String()),
		slog.Int("accounts", len(structure.Accounts)),
		slog.Int64("indicator_computations", stats.Computed),
		slog.Int64("indicator_cache_hits", stats.Hits),
	)
	return Report{
		CompanyID: req.CompanyID,
		Period:    req.Period,
		Window:    window,
		Accounts:  forest.Accounts,
	}, stats, nil
}

func isCycle(err error) bool {
	return err != nil && errors.Is(err, indicator.ErrCyclicComposition)
}
