package aggregate

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/finboard/internal/indicator"
	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/period"
)

var march = period.Period{Month: 3, Year: 2024}

func entry(ref ledger.Ref, p period.Period, amount int64, kind ledger.Kind) ledger.Entry {
	return ledger.Entry{ID: uuid.New(), Subject: ref, Month: p.Month, Year: p.Year, Amount: decimal.NewFromInt(amount), Kind: kind}
}

type fixture struct {
	categories []ledger.Category
	clients    []ledger.Client
	indicators []ledger.Indicator
	links      []ledger.CompositionLink
	entries    []ledger.Entry
}

func (f fixture) engine() *Engine {
	ix := ledger.NewIndex(f.entries)
	catalog := ledger.NewCatalog(f.categories, f.clients, f.indicators)
	resolver := indicator.NewResolver(indicator.NewGraph(f.indicators, f.links), ix, catalog)
	return NewEngine(resolver, ix, catalog)
}

func TestCardSignConvention(t *testing.T) {
	cat := ledger.Category{ID: uuid.New(), Name: "Vendas", Active: true}
	ref := ledger.CategoryRef(cat.ID)
	eng := fixture{
		categories: []ledger.Category{cat},
		entries: []ledger.Entry{
			entry(ref, march, 100, ledger.KindRevenue),
			entry(ref, march, 40, ledger.KindExpense),
		},
	}.engine()

	v, err := eng.Card(context.Background(), []Component{{Ref: ref}}, march)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(60)), "got %s", v)
}

func TestCardMixesCategoriesAndIndicators(t *testing.T) {
	cat := ledger.Category{ID: uuid.New(), Name: "Serviços", Active: true}
	stale := ledger.Category{ID: uuid.New(), Name: "Antiga", Active: false}
	ind := ledger.Indicator{ID: uuid.New(), Name: "Receita", Type: ledger.IndicatorAtomic, Active: true}
	eng := fixture{
		categories: []ledger.Category{cat, stale},
		indicators: []ledger.Indicator{ind},
		entries: []ledger.Entry{
			entry(ledger.CategoryRef(cat.ID), march, 30, ledger.KindRevenue),
			entry(ledger.CategoryRef(stale.ID), march, 999, ledger.KindRevenue),
			entry(ledger.IndicatorRef(ind.ID), march, 12, ledger.KindRevenue),
		},
	}.engine()

	v, err := eng.Card(context.Background(), []Component{
		{Ref: ledger.CategoryRef(cat.ID)},
		{Ref: ledger.CategoryRef(stale.ID)},
		{Ref: ledger.IndicatorRef(ind.ID)},
		{Ref: ledger.IndicatorRef(uuid.New())},
	}, march)
	require.NoError(t, err)
	assert.True(t, v.Equal(decimal.NewFromInt(42)), "got %s", v)
}

func TestChartIsDenseAndNamesSeries(t *testing.T) {
	a := ledger.Category{ID: uuid.New(), Name: "Custos", Active: true}
	b := ledger.Category{ID: uuid.New(), Name: "Custos", Active: true}
	eng := fixture{
		categories: []ledger.Category{a, b},
		entries: []ledger.Entry{
			entry(ledger.CategoryRef(a.ID), march, 10, ledger.KindExpense),
		},
	}.engine()
	window, err := period.Window(march, period.ShortWindow)
	require.NoError(t, err)

	chart, err := eng.Chart(context.Background(), []Component{
		{Ref: ledger.CategoryRef(a.ID), Color: "#f00"},
		{Ref: ledger.CategoryRef(b.ID)},
		{Ref: ledger.IndicatorRef(uuid.New())},
	}, window)
	require.NoError(t, err)

	require.Len(t, chart.Series, 3)
	assert.Equal(t, "Custos", chart.Series[0].Name)
	assert.Equal(t, "#f00", chart.Series[0].Color)
	assert.Equal(t, "Custos (2)", chart.Series[1].Name)
	assert.Equal(t, FallbackSeriesName, chart.Series[2].Name)

	require.Len(t, chart.Rows, 6)
	for _, row := range chart.Rows {
		require.Len(t, row.Values, 3, "row %s", row.Label)
	}
	last := chart.Rows[5]
	assert.Equal(t, "3/2024", last.Label)
	assert.True(t, last.Values["Custos"].Equal(decimal.NewFromInt(-10)))
	assert.True(t, chart.Rows[0].Values["Custos"].IsZero())
}

func TestListTruncatesAndSortsByMagnitude(t *testing.T) {
	var f fixture
	for i := 1; i <= 12; i++ {
		cat := ledger.Category{ID: uuid.New(), Name: fmt.Sprintf("Cat %02d", i), Active: true}
		f.categories = append(f.categories, cat)
		kind := ledger.KindRevenue
		if i%2 == 0 {
			kind = ledger.KindExpense
		}
		f.entries = append(f.entries, entry(ledger.CategoryRef(cat.ID), march, int64(i*10), kind))
	}
	eng := f.engine()

	items, err := eng.List(context.Background(), ListByCategory, nil, march, 10)
	require.NoError(t, err)
	require.Len(t, items, 10)
	for i := 1; i < len(items); i++ {
		assert.True(t, items[i-1].Value.Abs().GreaterThanOrEqual(items[i].Value.Abs()))
	}
	assert.Equal(t, "Cat 12", items[0].SubjectName)
	assert.True(t, items[0].Value.Equal(decimal.NewFromInt(-120)))
	assert.Equal(t, "Cat 03", items[9].SubjectName)

	again, err := eng.List(context.Background(), ListByCategory, nil, march, 10)
	require.NoError(t, err)
	assert.Equal(t, items, again)
}

func TestListDefaultsLimitAndKeepsTies(t *testing.T) {
	var f fixture
	var comps []Component
	for i := 0; i < 12; i++ {
		cl := ledger.Client{ID: uuid.New(), Name: fmt.Sprintf("Cliente %d", i), Active: true}
		f.clients = append(f.clients, cl)
		f.entries = append(f.entries, entry(ledger.ClientRef(cl.ID), march, 50, ledger.KindRevenue))
		if i < 11 {
			comps = append(comps, Component{Ref: ledger.ClientRef(cl.ID)})
		}
	}
	items, err := f.engine().List(context.Background(), ListByClient, comps, march, 0)
	require.NoError(t, err)
	require.Len(t, items, DefaultListLimit)
	for i, item := range items {
		assert.Equal(t, fmt.Sprintf("Cliente %d", i), item.SubjectName)
	}
}

func TestListGroupsEntriesPerSubject(t *testing.T) {
	cl := ledger.Client{ID: uuid.New(), Name: "ACME", Active: true}
	other := ledger.Client{ID: uuid.New(), Name: "Globex", Active: true}
	ref := ledger.ClientRef(cl.ID)
	eng := fixture{
		clients: []ledger.Client{cl, other},
		entries: []ledger.Entry{
			entry(ref, march, 70, ledger.KindRevenue),
			entry(ledger.ClientRef(other.ID), march, 20, ledger.KindRevenue),
			entry(ref, march, 30, ledger.KindRevenue),
			entry(ref, march.Prev(), 500, ledger.KindRevenue),
		},
	}.engine()

	items, err := eng.List(context.Background(), ListByClient, []Component{{Ref: ref}}, march, 5)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, cl.ID, items[0].SubjectID)
	assert.True(t, items[0].Value.Equal(decimal.NewFromInt(100)))
}

func TestListByIndicator(t *testing.T) {
	small := ledger.Indicator{ID: uuid.New(), Name: "Pequeno", Type: ledger.IndicatorAtomic, Active: true}
	big := ledger.Indicator{ID: uuid.New(), Name: "Grande", Type: ledger.IndicatorAtomic, Active: true}
	eng := fixture{
		indicators: []ledger.Indicator{small, big},
		entries: []ledger.Entry{
			entry(ledger.IndicatorRef(small.ID), march, 5, ledger.KindRevenue),
			entry(ledger.IndicatorRef(big.ID), march, 80, ledger.KindExpense),
		},
	}.engine()

	items, err := eng.List(context.Background(), ListByIndicator, []Component{
		{Ref: ledger.IndicatorRef(small.ID)},
		{Ref: ledger.IndicatorRef(big.ID)},
	}, march, 10)
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "Grande", items[0].SubjectName)
	assert.True(t, items[0].Value.Equal(decimal.NewFromInt(-80)))
}

func TestListPropagatesCycles(t *testing.T) {
	a := ledger.Indicator{ID: uuid.New(), Name: "A", Type: ledger.IndicatorComposite, Active: true}
	eng := fixture{
		indicators: []ledger.Indicator{a},
		links:      []ledger.CompositionLink{{ID: uuid.New(), IndicatorID: a.ID, Ref: ledger.IndicatorRef(a.ID)}},
	}.engine()

	_, err := eng.List(context.Background(), ListByIndicator, []Component{{Ref: ledger.IndicatorRef(a.ID)}}, march, 10)
	assert.ErrorIs(t, err, indicator.ErrCyclicComposition)
}

func TestVariation(t *testing.T) {
	cases := []struct {
		current, previous, want int64
	}{
		{150, 100, 50},
		{50, 100, -50},
		{-50, -100, 50},
		{10, 0, 0},
		{0, 0, 0},
	}
	for _, tc := range cases {
		got := Variation(decimal.NewFromInt(tc.current), decimal.NewFromInt(tc.previous))
		if !got.Equal(decimal.NewFromInt(tc.want)) {
			t.Fatalf("Variation(%d, %d) = %s, want %d", tc.current, tc.previous, got, tc.want)
		}
	}
}
