package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/finboard/finboard/internal/aggregate"
	"github.com/finboard/finboard/internal/indicator"
	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/observability"
	"github.com/finboard/finboard/internal/period"
	"github.com/finboard/finboard/internal/platform/httpx"
)

// ConfigReader loads the visualization configs of a surface.
type ConfigReader interface {
	ListConfigs(ctx context.Context, companyID uuid.UUID, surface Surface) ([]Config, error)
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

// Request scopes one surface computation.
type Request struct {
	CompanyID    uuid.UUID
	Surface      Surface
	Period       period.Period
	WindowLength int
	ListLimit    int
}

// Slot describes a computed config for rendering.
type Slot struct {
	ID          uuid.UUID   `json:"id"`
	Position    int         `json:"position"`
	Title       string      `json:"title"`
	DisplayType DisplayType `json:"display_type"`
	ChartType   ChartType   `json:"chart_type,omitempty"`
}

// CardValue is a card total with its month-over-month variation.
type CardValue struct {
	Value     decimal.Decimal `json:"value"`
	Previous  decimal.Decimal `json:"previous"`
	Variation decimal.Decimal `json:"variation"`
	DataKind  ledger.DataKind `json:"data_kind"`
}

// Result holds every computed config of a surface keyed by config id.
// Errors lists configs that could not be computed.
type Result struct {
	Surface Surface                            `json:"surface"`
	Period  period.Period                      `json:"period"`
	Window  []period.Period                    `json:"window"`
	Slots   []Slot                             `json:"slots"`
	Cards   map[uuid.UUID]CardValue            `json:"cards"`
	Charts  map[uuid.UUID]aggregate.Chart      `json:"charts"`
	Lists   map[uuid.UUID][]aggregate.ListItem `json:"lists"`
	Errors  map[uuid.UUID]string               `json:"errors"`
}

// Option customises the service.
type Option func(*Service)

// WithTimeout bounds each computation. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(s *Service) { s.timeout = d }
}

// WithListLimit sets the list limit used when neither the request nor the
// config provides one.
func WithListLimit(limit int) Option {
	return func(s *Service) {
		if limit > 0 {
			s.listLimit = limit
		}
	}
}

// WithRecorder attaches a metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(s *Service) { s.recorder = r }
}

// Service computes dashboard surfaces.
type Service struct {
	configs   ConfigReader
	refs      ReferenceLoader
	entries   EntryReader
	logger    *slog.Logger
	recorder  Recorder
	timeout   time.Duration
	listLimit int
}

// NewService wires the readers the computation fans out to.
func NewService(configs ConfigReader, refs ReferenceLoader, entries EntryReader, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		configs:   configs,
		refs:      refs,
		entries:   entries,
		logger:    logger,
		timeout:   10 * time.Second,
		listLimit: aggregate.DefaultListLimit,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (r Request) validate() error {
	if r.CompanyID == uuid.Nil {
		return fmt.Errorf("%w: company id required", httpx.ErrValidation)
	}
	if err := r.Period.Validate(); err != nil {
		return fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	}
	return nil
}

// Compute fetches configs, reference data and the window's postings in
// parallel, then evaluates every config. A cyclic indicator fails only the
// configs that reference it; fetch failures abort the whole computation.
func (s *Service) Compute(ctx context.Context, req Request) (Result, error) {
	if err := req.validate(); err != nil {
		return Result{}, err
	}
	if req.Surface == "" {
		req.Surface = SurfaceDashboard
	}
	if req.WindowLength == 0 {
		req.WindowLength = period.LongWindow
	}
	window, err := period.Window(req.Period, req.WindowLength)
	if err != nil {
		return Result{}, fmt.Errorf("%w: %w", httpx.ErrValidation, err)
	}
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	start := time.Now()
	result, stats, err := s.compute(ctx, req, window)
	if s.recorder != nil {
		s.recorder.ObserveComputation(observability.Computation{
			Report:   "dashboard",
			Computed: stats.Computed,
			Hits:     stats.Hits,
			Gaps:     stats.Gaps,
			Cycles:   len(result.Errors),
			Elapsed:  time.Since(start),
			Err:      err,
		})
	}
	if err != nil {
		return Result{}, err
	}
	s.logger.Debug("dashboard computed",
		slog.String("company_id", req.CompanyID.String()),
		slog.String("surface", string(req.Surface)),
		slog.String("period", req.Period.String()),
		slog.Int("configs", len(result.Slots)),
		slog.Int64("indicator_computations", stats.Computed),
		slog.Int64("indicator_cache_hits", stats.Hits),
		slog.Int64("configuration_gaps", stats.Gaps),
		slog.Duration("elapsed", time.Since(start)),
	)
	return result, nil
}

func (s *Service) compute(ctx context.Context, req Request, window []period.Period) (Result, indicator.Stats, error) {
	var (
		configs []Config
		refs    ledger.ReferenceData
		entries []ledger.Entry
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		configs, err = s.configs.ListConfigs(gctx, req.CompanyID, req.Surface)
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
		return Result{}, indicator.Stats{}, fmt.Errorf("dashboard: fetch: %w", err)
	}

	index := ledger.NewIndex(entries)
	catalog := refs.Catalog()
	resolver := indicator.NewResolver(indicator.NewGraph(refs.Indicators, refs.Compositions), index, catalog)
	engine := aggregate.NewEngine(resolver, index, catalog)

	result := Result{
		Surface: req.Surface,
		Period:  req.Period,
		Window:  window,
		Slots:   make([]Slot, 0, len(configs)),
		Cards:   make(map[uuid.UUID]CardValue),
		Charts:  make(map[uuid.UUID]aggregate.Chart),
		Lists:   make(map[uuid.UUID][]aggregate.ListItem),
		Errors:  make(map[uuid.UUID]string),
	}
	var mu sync.Mutex
	cg, cctx := errgroup.WithContext(ctx)
	cg.SetLimit(runtime.GOMAXPROCS(0))
	for _, cfg := range configs {
		if err := cfg.Validate(); err != nil {
			s.logger.Warn("skipping invalid config", slog.String("config_id", cfg.ID.String()), slog.Any("error", err))
			continue
		}
		result.Slots = append(result.Slots, Slot{
			ID:          cfg.ID,
			Position:    cfg.Position,
			Title:       cfg.Title,
			DisplayType: cfg.DisplayType,
			ChartType:   cfg.ChartType,
		})
		cg.Go(func() error {
			err := s.computeConfig(cctx, engine, catalog, cfg, req, window, &result, &mu)
			if errors.Is(err, indicator.ErrCyclicComposition) {
				s.logger.Warn("config references a cyclic indicator",
					slog.String("config_id", cfg.ID.String()),
					slog.Any("error", err),
				)
				mu.Lock()
				result.Errors[cfg.ID] = err.Error()
				mu.Unlock()
				return nil
			}
			return err
		})
	}
	if err := cg.Wait(); err != nil {
		return Result{}, resolver.Stats(), fmt.Errorf("dashboard: compute: %w", err)
	}
	return result, resolver.Stats(), nil
}

func (s *Service) computeConfig(ctx context.Context, engine *aggregate.Engine, catalog *ledger.Catalog, cfg Config, req Request, window []period.Period, result *Result, mu *sync.Mutex) error {
	components := cfg.aggregateComponents()
	switch cfg.DisplayType {
	case DisplayCard:
		current, err := engine.Card(ctx, components, req.Period)
		if err != nil {
			return err
		}
		previous, err := engine.Card(ctx, components, req.Period.Prev())
		if err != nil {
			return err
		}
		card := CardValue{
			Value:     current,
			Previous:  previous,
			Variation: aggregate.Variation(current, previous),
			DataKind:  cardDataKind(catalog, cfg),
		}
		mu.Lock()
		result.Cards[cfg.ID] = card
		mu.Unlock()
	case DisplayChart:
		chart, err := engine.Chart(ctx, components, window)
		if err != nil {
			return err
		}
		mu.Lock()
		result.Charts[cfg.ID] = chart
		mu.Unlock()
	case DisplayList:
		items, err := engine.List(ctx, cfg.Subject(), components, req.Period, s.limitFor(req, cfg))
		if err != nil {
			return err
		}
		mu.Lock()
		result.Lists[cfg.ID] = items
		mu.Unlock()
	}
	return nil
}

// limitFor picks the request limit, then the config limit, then the service default.
func (s *Service) limitFor(req Request, cfg Config) int {
	switch {
	case req.ListLimit > 0:
		return req.ListLimit
	case cfg.ListLimit > 0:
		return cfg.ListLimit
	default:
		return s.listLimit
	}
}

func cardDataKind(catalog *ledger.Catalog, cfg Config) ledger.DataKind {
	for _, comp := range cfg.Components {
		if comp.Ref.Kind == ledger.RefIndicator {
			return catalog.DataKind(comp.Ref)
		}
	}
	return ledger.DataCurrency
}
