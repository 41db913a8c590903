package dashboard

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/finboard/internal/aggregate"
	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/observability"
	"github.com/finboard/finboard/internal/period"
	"github.com/finboard/finboard/internal/platform/httpx"
)

type fakeStore struct {
	configs    []Config
	refs       ledger.ReferenceData
	entries    []ledger.Entry
	entriesErr error
	filter     ledger.EntryFilter
}

func (f *fakeStore) ListConfigs(_ context.Context, companyID uuid.UUID, surface Surface) ([]Config, error) {
	var out []Config
	for _, cfg := range f.configs {
		if cfg.CompanyID == companyID && cfg.Surface == surface {
			out = append(out, cfg)
		}
	}
	return out, nil
}

func (f *fakeStore) Load(context.Context) (ledger.ReferenceData, error) {
	return f.refs, nil
}

func (f *fakeStore) ListEntries(_ context.Context, filter ledger.EntryFilter) ([]ledger.Entry, error) {
	f.filter = filter
	return f.entries, f.entriesErr
}

type recorder struct {
	mu    sync.Mutex
	calls []observability.Computation
}

func (r *recorder) ObserveComputation(c observability.Computation) {
	r.mu.Lock()
	r.calls = append(r.calls, c)
	r.mu.Unlock()
}

var (
	company = uuid.New()
	june    = period.Period{Month: 6, Year: 2024}
)

func post(ref ledger.Ref, p period.Period, amount int64, kind ledger.Kind) ledger.Entry {
	return ledger.Entry{ID: uuid.New(), CompanyID: company, Subject: ref, Month: p.Month, Year: p.Year, Amount: decimal.NewFromInt(amount), Kind: kind}
}

func slot(display DisplayType, position int, refs ...ledger.Ref) Config {
	cfg := Config{ID: uuid.New(), CompanyID: company, Surface: SurfaceDashboard, Position: position, Title: fmt.Sprintf("slot %d", position), DisplayType: display, Active: true}
	for i, ref := range refs {
		cfg.Components = append(cfg.Components, Component{ID: uuid.New(), ConfigID: cfg.ID, Ref: ref, Order: i})
	}
	return cfg
}

func TestComputeBuildsEveryDisplayType(t *testing.T) {
	vendas := ledger.Category{ID: uuid.New(), Name: "Vendas", Active: true}
	margem := ledger.Indicator{ID: uuid.New(), Name: "Margem", Type: ledger.IndicatorAtomic, DataKind: ledger.DataPercentage, Active: true}
	acme := ledger.Client{ID: uuid.New(), Name: "ACME", Active: true}

	card := slot(DisplayCard, 1, ledger.CategoryRef(vendas.ID))
	kpi := slot(DisplayCard, 2, ledger.IndicatorRef(margem.ID))
	chart := slot(DisplayChart, 3, ledger.CategoryRef(vendas.ID), ledger.IndicatorRef(margem.ID))
	list := slot(DisplayList, 4, ledger.ClientRef(acme.ID))
	list.ListSubject = aggregate.ListByClient

	store := &fakeStore{
		configs: []Config{card, kpi, chart, list},
		refs: ledger.ReferenceData{
			Categories: []ledger.Category{vendas},
			Clients:    []ledger.Client{acme},
			Indicators: []ledger.Indicator{margem},
		},
		entries: []ledger.Entry{
			post(ledger.CategoryRef(vendas.ID), june, 150, ledger.KindRevenue),
			post(ledger.CategoryRef(vendas.ID), june.Prev(), 100, ledger.KindRevenue),
			post(ledger.IndicatorRef(margem.ID), june, 30, ledger.KindRevenue),
			post(ledger.ClientRef(acme.ID), june, 80, ledger.KindExpense),
		},
	}
	rec := &recorder{}
	svc := NewService(store, store, store, nil, WithRecorder(rec))

	res, err := svc.Compute(context.Background(), Request{CompanyID: company, Period: june})
	require.NoError(t, err)

	require.Len(t, res.Slots, 4)
	assert.Len(t, res.Window, period.LongWindow)
	assert.Equal(t, period.Years(res.Window), store.filter.Years)

	got := res.Cards[card.ID]
	assert.True(t, got.Value.Equal(decimal.NewFromInt(150)))
	assert.True(t, got.Previous.Equal(decimal.NewFromInt(100)))
	assert.True(t, got.Variation.Equal(decimal.NewFromInt(50)))
	assert.Equal(t, ledger.DataCurrency, got.DataKind)
	assert.Equal(t, ledger.DataPercentage, res.Cards[kpi.ID].DataKind)
	assert.True(t, res.Cards[kpi.ID].Variation.IsZero())

	rows := res.Charts[chart.ID].Rows
	require.Len(t, rows, period.LongWindow)
	assert.True(t, rows[len(rows)-1].Values["Margem"].Equal(decimal.NewFromInt(30)))

	items := res.Lists[list.ID]
	require.Len(t, items, 1)
	assert.True(t, items[0].Value.Equal(decimal.NewFromInt(-80)))
	assert.Empty(t, res.Errors)

	require.Len(t, rec.calls, 1)
	assert.Equal(t, "dashboard", rec.calls[0].Report)
	assert.NoError(t, rec.calls[0].Err)
}

func TestComputeIsolatesCyclicConfigs(t *testing.T) {
	a := ledger.Indicator{ID: uuid.New(), Name: "A", Type: ledger.IndicatorComposite, Active: true}
	b := ledger.Indicator{ID: uuid.New(), Name: "B", Type: ledger.IndicatorComposite, Active: true}
	cat := ledger.Category{ID: uuid.New(), Name: "Serviços", Active: true}

	broken := slot(DisplayCard, 1, ledger.IndicatorRef(a.ID))
	healthy := slot(DisplayCard, 2, ledger.CategoryRef(cat.ID))
	store := &fakeStore{
		configs: []Config{broken, healthy},
		refs: ledger.ReferenceData{
			Categories: []ledger.Category{cat},
			Indicators: []ledger.Indicator{a, b},
			Compositions: []ledger.CompositionLink{
				{ID: uuid.New(), IndicatorID: a.ID, Ref: ledger.IndicatorRef(b.ID)},
				{ID: uuid.New(), IndicatorID: b.ID, Ref: ledger.IndicatorRef(a.ID)},
			},
		},
		entries: []ledger.Entry{post(ledger.CategoryRef(cat.ID), june, 10, ledger.KindRevenue)},
	}
	svc := NewService(store, store, store, nil)

	done := make(chan struct{})
	var (
		res Result
		err error
	)
	go func() {
		defer close(done)
		res, err = svc.Compute(context.Background(), Request{CompanyID: company, Period: june, WindowLength: period.ShortWindow})
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("compute did not terminate")
	}

	require.NoError(t, err)
	assert.Contains(t, res.Errors[broken.ID], "cyclic composition")
	_, ok := res.Cards[broken.ID]
	assert.False(t, ok)
	assert.True(t, res.Cards[healthy.ID].Value.Equal(decimal.NewFromInt(10)))
}

func TestComputeAbortsOnUpstreamFailure(t *testing.T) {
	store := &fakeStore{
		configs:    []Config{slot(DisplayCard, 1)},
		entriesErr: fmt.Errorf("%w: list entries: connection refused", ledger.ErrUpstreamFetch),
	}
	rec := &recorder{}
	svc := NewService(store, store, store, nil, WithRecorder(rec))

	_, err := svc.Compute(context.Background(), Request{CompanyID: company, Period: june})
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrUpstreamFetch)
	require.Len(t, rec.calls, 1)
	assert.Error(t, rec.calls[0].Err)
}

func TestComputeValidatesRequest(t *testing.T) {
	svc := NewService(&fakeStore{}, &fakeStore{}, &fakeStore{}, nil)
	cases := []Request{
		{Period: june},
		{CompanyID: company, Period: period.Period{Month: 13, Year: 2024}},
		{CompanyID: company, Period: june, WindowLength: 12},
	}
	for _, req := range cases {
		_, err := svc.Compute(context.Background(), req)
		assert.True(t, errors.Is(err, httpx.ErrValidation), "request %+v: %v", req, err)
	}
}

func TestComputeIsIdempotent(t *testing.T) {
	var (
		categories []ledger.Category
		entries    []ledger.Entry
	)
	for i := 1; i <= 12; i++ {
		cat := ledger.Category{ID: uuid.New(), Name: fmt.Sprintf("Cat %d", i), Active: true}
		categories = append(categories, cat)
		entries = append(entries, post(ledger.CategoryRef(cat.ID), june, int64(i*7), ledger.KindExpense))
	}
	list := slot(DisplayList, 1)
	list.ListLimit = 5
	store := &fakeStore{
		configs: []Config{list},
		refs:    ledger.ReferenceData{Categories: categories},
		entries: entries,
	}
	svc := NewService(store, store, store, nil, WithListLimit(3))

	first, err := svc.Compute(context.Background(), Request{CompanyID: company, Period: june})
	require.NoError(t, err)
	second, err := svc.Compute(context.Background(), Request{CompanyID: company, Period: june})
	require.NoError(t, err)
	assert.Equal(t, first.Lists, second.Lists)
	assert.Len(t, first.Lists[list.ID], 5)

	override, err := svc.Compute(context.Background(), Request{CompanyID: company, Period: june, ListLimit: 2})
	require.NoError(t, err)
	assert.Len(t, override.Lists[list.ID], 2)
}

func TestConfigValidate(t *testing.T) {
	cfg := slot(DisplayCard, 8)
	assert.ErrorIs(t, cfg.Validate(), httpx.ErrValidation)
	cfg.Surface = SurfaceSales
	assert.NoError(t, cfg.Validate())
	cfg.DisplayType = "gauge"
	assert.ErrorIs(t, cfg.Validate(), httpx.ErrValidation)
}
