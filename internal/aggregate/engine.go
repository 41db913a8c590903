// Package aggregate turns ledger entries and indicator values into the
// presentation structures of the reporting surfaces: card totals, chart
// series, ranked lists and period-over-period variations.
package aggregate

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/period"
)

// DefaultListLimit caps ranked lists when the caller does not provide a limit.
const DefaultListLimit = 10

// FallbackSeriesName labels chart series whose subject has no display name.
const FallbackSeriesName = "Valor"

var hundred = decimal.NewFromInt(100)

// Valuer resolves the signed value of a reference for a period.
// *indicator.Resolver satisfies it.
type Valuer interface {
	Value(ctx context.Context, ref ledger.Ref, p period.Period) (decimal.Decimal, error)
}

// Component is one configured contribution to a visual element.
type Component struct {
	Ref   ledger.Ref
	Color string
}

// Series describes one chart column.
type Series struct {
	Name  string     `json:"name"`
	Ref   ledger.Ref `json:"ref"`
	Color string     `json:"color,omitempty"`
}

// ChartRow holds every series value for one period.
type ChartRow struct {
	Period period.Period              `json:"period"`
	Label  string                     `json:"label"`
	Values map[string]decimal.Decimal `json:"values"`
}

// Chart is a dense period x series table.
type Chart struct {
	Series []Series   `json:"series"`
	Rows   []ChartRow `json:"rows"`
}

// ListSubject selects how ranked lists group their values.
type ListSubject string

const (
	ListByCategory  ListSubject = "categoria"
	ListByClient    ListSubject = "cliente"
	ListByIndicator ListSubject = "indicador"
)

// ListItem is one ranked subject.
type ListItem struct {
	SubjectID   uuid.UUID       `json:"subject_id"`
	SubjectName string          `json:"subject_name"`
	Value       decimal.Decimal `json:"value"`
}

// Engine computes presentation values over one request's ledger snapshot.
// It never mutates its inputs and is safe for concurrent use when its
// Valuer is.
type Engine struct {
	values  Valuer
	index   *ledger.Index
	catalog *ledger.Catalog
}

// NewEngine binds a valuer, the indexed ledger and the reference catalog.
func NewEngine(values Valuer, index *ledger.Index, catalog *ledger.Catalog) *Engine {
	return &Engine{values: values, index: index, catalog: catalog}
}

// Card sums every component's value for p.
func (e *Engine) Card(ctx context.Context, components []Component, p period.Period) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, c := range components {
		v, err := e.values.Value(ctx, c.Ref, p)
		if err != nil {
			return decimal.Zero, err
		}
		total = total.Add(v)
	}
	return total, nil
}

// Chart evaluates each component for every period of window. Every row
// carries a value for every series.
func (e *Engine) Chart(ctx context.Context, components []Component, window []period.Period) (Chart, error) {
	series := e.seriesFor(components)
	rows := make([]ChartRow, 0, len(window))
	for _, p := range window {
		row := ChartRow{Period: p, Label: p.Label(), Values: make(map[string]decimal.Decimal, len(series))}
		for i, c := range components {
			v, err := e.values.Value(ctx, c.Ref, p)
			if err != nil {
				return Chart{}, err
			}
			row.Values[series[i].Name] = v
		}
		rows = append(rows, row)
	}
	return Chart{Series: series, Rows: rows}, nil
}

func (e *Engine) seriesFor(components []Component) []Series {
	series := make([]Series, len(components))
	seen := make(map[string]int, len(components))
	for i, c := range components {
		name, ok := e.catalog.Name(c.Ref)
		if !ok || name == "" {
			name = FallbackSeriesName
		}
		seen[name]++
		if n := seen[name]; n > 1 {
			name = fmt.Sprintf("%s (%d)", name, n)
		}
		series[i] = Series{Name: name, Ref: c.Ref, Color: c.Color}
	}
	return series
}

// List ranks subjects for p by descending absolute value and keeps the first
// limit items. Category and client lists group ledger entries by subject,
// restricted to the configured components when there are any; indicator
// lists resolve each configured indicator. Ties keep first-encountered order.
func (e *Engine) List(ctx context.Context, subject ListSubject, components []Component, p period.Period, limit int) ([]ListItem, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	var (
		items []ListItem
		err   error
	)
	switch subject {
	case ListByIndicator:
		items, err = e.indicatorItems(ctx, components, p)
	case ListByCategory:
		items, err = e.entryItems(ctx, ledger.RefCategory, components, p)
	case ListByClient:
		items, err = e.entryItems(ctx, ledger.RefClient, components, p)
	default:
		return nil, fmt.Errorf("aggregate: unknown list subject %q", subject)
	}
	if err != nil {
		return nil, err
	}
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].Value.Abs().GreaterThan(items[j].Value.Abs())
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items, nil
}

func (e *Engine) indicatorItems(ctx context.Context, components []Component, p period.Period) ([]ListItem, error) {
	items := make([]ListItem, 0, len(components))
	for _, c := range components {
		if c.Ref.Kind != ledger.RefIndicator || !e.catalog.Active(c.Ref) {
			continue
		}
		v, err := e.values.Value(ctx, c.Ref, p)
		if err != nil {
			return nil, err
		}
		name, _ := e.catalog.Name(c.Ref)
		items = append(items, ListItem{SubjectID: c.Ref.ID, SubjectName: name, Value: v})
	}
	return items, nil
}

func (e *Engine) entryItems(ctx context.Context, kind ledger.RefKind, components []Component, p period.Period) ([]ListItem, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var allowed map[uuid.UUID]struct{}
	for _, c := range components {
		if c.Ref.Kind != kind {
			continue
		}
		if allowed == nil {
			allowed = make(map[uuid.UUID]struct{}, len(components))
		}
		allowed[c.Ref.ID] = struct{}{}
	}

	var items []ListItem
	position := make(map[uuid.UUID]int)
	for _, entry := range e.index.Entries(p) {
		ref := entry.Subject
		if ref.Kind != kind {
			continue
		}
		if allowed != nil {
			if _, ok := allowed[ref.ID]; !ok {
				continue
			}
		}
		if i, ok := position[ref.ID]; ok {
			items[i].Value = items[i].Value.Add(entry.Signed())
			continue
		}
		if !e.catalog.Active(ref) {
			continue
		}
		name, _ := e.catalog.Name(ref)
		position[ref.ID] = len(items)
		items = append(items, ListItem{SubjectID: ref.ID, SubjectName: name, Value: entry.Signed()})
	}
	return items, nil
}

// Variation returns the percentage change from previous to current. A zero
// previous value yields zero.
func Variation(current, previous decimal.Decimal) decimal.Decimal {
	if previous.IsZero() {
		return decimal.Zero
	}
	return current.Sub(previous).Div(previous.Abs()).Mul(hundred)
}
