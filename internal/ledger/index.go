package ledger

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finboard/finboard/internal/period"
)

type refPeriod struct {
	ref    Ref
	period period.Period
}

// Index pre-aggregates signed entry amounts per subject and period. It is
// immutable after NewIndex and safe for concurrent reads.
type Index struct {
	sums     map[refPeriod]decimal.Decimal
	byPeriod map[period.Period][]Entry
	size     int
}

// NewIndex builds an index over entries. Entries with an unset subject are ignored.
func NewIndex(entries []Entry) *Index {
	ix := &Index{
		sums:     make(map[refPeriod]decimal.Decimal, len(entries)),
		byPeriod: make(map[period.Period][]Entry),
	}
	for _, e := range entries {
		if e.Subject.IsZero() {
			continue
		}
		key := refPeriod{ref: e.Subject, period: e.Period()}
		ix.sums[key] = ix.sums[key].Add(e.Signed())
		ix.byPeriod[key.period] = append(ix.byPeriod[key.period], e)
		ix.size++
	}
	return ix
}

// Sum returns the signed total posted against ref in p.
func (ix *Index) Sum(ref Ref, p period.Period) decimal.Decimal {
	if ix == nil {
		return decimal.Zero
	}
	return ix.sums[refPeriod{ref: ref, period: p}]
}

// Entries returns the entries of p in the order they were indexed.
func (ix *Index) Entries(p period.Period) []Entry {
	if ix == nil {
		return nil
	}
	return ix.byPeriod[p]
}

// Len reports how many entries were indexed.
func (ix *Index) Len() int {
	if ix == nil {
		return 0
	}
	return ix.size
}

// Catalog is the reference data needed to name and validate subjects.
type Catalog struct {
	Categories map[uuid.UUID]Category
	Clients    map[uuid.UUID]Client
	Indicators map[uuid.UUID]Indicator
}

// NewCatalog indexes reference rows by id.
func NewCatalog(categories []Category, clients []Client, indicators []Indicator) *Catalog {
	c := &Catalog{
		Categories: make(map[uuid.UUID]Category, len(categories)),
		Clients:    make(map[uuid.UUID]Client, len(clients)),
		Indicators: make(map[uuid.UUID]Indicator, len(indicators)),
	}
	for _, cat := range categories {
		c.Categories[cat.ID] = cat
	}
	for _, cl := range clients {
		c.Clients[cl.ID] = cl
	}
	for _, ind := range indicators {
		c.Indicators[ind.ID] = ind
	}
	return c
}

// Name returns the display name of ref when it is known.
func (c *Catalog) Name(ref Ref) (string, bool) {
	if c == nil {
		return "", false
	}
	switch ref.Kind {
	case RefCategory:
		v, ok := c.Categories[ref.ID]
		return v.Name, ok
	case RefIndicator:
		v, ok := c.Indicators[ref.ID]
		return v.Name, ok
	case RefClient:
		v, ok := c.Clients[ref.ID]
		return v.Name, ok
	}
	return "", false
}

// Active reports whether ref exists and is active.
func (c *Catalog) Active(ref Ref) bool {
	if c == nil {
		return false
	}
	switch ref.Kind {
	case RefCategory:
		v, ok := c.Categories[ref.ID]
		return ok && v.Active
	case RefIndicator:
		v, ok := c.Indicators[ref.ID]
		return ok && v.Active
	case RefClient:
		v, ok := c.Clients[ref.ID]
		return ok && v.Active
	}
	return false
}

// DataKind returns the display kind of ref; categories and clients are currency.
func (c *Catalog) DataKind(ref Ref) DataKind {
	if c != nil && ref.Kind == RefIndicator {
		if v, ok := c.Indicators[ref.ID]; ok && v.DataKind != "" {
			return v.DataKind
		}
	}
	return DataCurrency
}
