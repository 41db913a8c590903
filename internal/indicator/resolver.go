package indicator

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/period"
)

// Source yields signed ledger totals per subject and period. *ledger.Index
// satisfies it.
type Source interface {
	Sum(ref ledger.Ref, p period.Period) decimal.Decimal
}

// Key identifies one memoised indicator value.
type Key struct {
	IndicatorID uuid.UUID
	Period      period.Period
}

func (k Key) String() string {
	return k.IndicatorID.String() + "@" + k.Period.Key()
}

// Stats reports resolver activity for instrumentation.
type Stats struct {
	Computed int64
	Hits     int64
	Gaps     int64
}

// Resolver evaluates indicator values for one request. The cache lives as
// long as the Resolver; build a new one per computation.
type Resolver struct {
	graph   *Graph
	source  Source
	catalog *ledger.Catalog

	mu    sync.RWMutex
	cache map[Key]decimal.Decimal
	group singleflight.Group

	computed atomic.Int64
	hits     atomic.Int64
	gaps     atomic.Int64
}

// NewResolver binds a graph and a ledger source. catalog is optional; when
// present, inactive or unknown categories and clients contribute zero.
func NewResolver(graph *Graph, source Source, catalog *ledger.Catalog) *Resolver {
	if graph == nil {
		graph = NewGraph(nil, nil)
	}
	return &Resolver{
		graph:   graph,
		source:  source,
		catalog: catalog,
		cache:   make(map[Key]decimal.Decimal),
	}
}

// Graph exposes the composition graph the resolver evaluates.
func (r *Resolver) Graph() *Graph {
	return r.graph
}

// Stats returns a snapshot of the counters.
func (r *Resolver) Stats() Stats {
	return Stats{Computed: r.computed.Load(), Hits: r.hits.Load(), Gaps: r.gaps.Load()}
}

// Value resolves any reference: categories and clients are direct ledger
// sums, indicators go through Resolve.
func (r *Resolver) Value(ctx context.Context, ref ledger.Ref, p period.Period) (decimal.Decimal, error) {
	switch ref.Kind {
	case ledger.RefIndicator:
		return r.Resolve(ctx, ref.ID, p)
	case ledger.RefCategory, ledger.RefClient:
		if err := ctx.Err(); err != nil {
			return decimal.Zero, err
		}
		if r.catalog != nil && !r.catalog.Active(ref) {
			r.gaps.Add(1)
			return decimal.Zero, nil
		}
		return r.sum(ref, p), nil
	default:
		r.gaps.Add(1)
		return decimal.Zero, nil
	}
}

// Resolve returns the signed value of an indicator for p. Unknown or inactive
// indicators resolve to zero; cyclic ones fail with *CyclicCompositionError.
func (r *Resolver) Resolve(ctx context.Context, id uuid.UUID, p period.Period) (decimal.Decimal, error) {
	return r.resolve(ctx, id, p, nil)
}

func (r *Resolver) resolve(ctx context.Context, id uuid.UUID, p period.Period, path []uuid.UUID) (decimal.Decimal, error) {
	if err := ctx.Err(); err != nil {
		return decimal.Zero, err
	}
	for _, seen := range path {
		if seen == id {
			return decimal.Zero, r.graph.cycleError(append(append([]uuid.UUID{}, path...), id))
		}
	}

	key := Key{IndicatorID: id, Period: p}
	if v, ok := r.lookup(key); ok {
		r.hits.Add(1)
		return v, nil
	}

	ind, ok := r.graph.Indicator(id)
	if !ok || !ind.Active {
		r.gaps.Add(1)
		return decimal.Zero, nil
	}
	if err := r.graph.CheckAcyclic(id); err != nil {
		return decimal.Zero, err
	}

	next := make([]uuid.UUID, len(path), len(path)+1)
	copy(next, path)
	next = append(next, id)

	v, err, _ := r.group.Do(key.String(), func() (any, error) {
		if v, ok := r.lookup(key); ok {
			return v, nil
		}
		value, err := r.compute(ctx, ind, p, next)
		if err != nil {
			return nil, err
		}
		r.store(key, value)
		return value, nil
	})
	if err != nil {
		return decimal.Zero, err
	}
	return v.(decimal.Decimal), nil
}

func (r *Resolver) compute(ctx context.Context, ind ledger.Indicator, p period.Period, path []uuid.UUID) (decimal.Decimal, error) {
	r.computed.Add(1)
	if ind.Type == ledger.IndicatorAtomic {
		return r.sum(ledger.IndicatorRef(ind.ID), p), nil
	}

	links := r.graph.Links(ind.ID)
	switch len(links) {
	case 0:
		return decimal.Zero, nil
	case 1:
		return r.linkValue(ctx, links[0], p, path)
	}

	values := make([]decimal.Decimal, len(links))
	g, gctx := errgroup.WithContext(ctx)
	for i, link := range links {
		g.Go(func() error {
			v, err := r.linkValue(gctx, link, p, path)
			if err != nil {
				return err
			}
			values[i] = v
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total, nil
}

func (r *Resolver) linkValue(ctx context.Context, link ledger.CompositionLink, p period.Period, path []uuid.UUID) (decimal.Decimal, error) {
	switch link.Ref.Kind {
	case ledger.RefIndicator:
		return r.resolve(ctx, link.Ref.ID, p, path)
	case ledger.RefCategory:
		return r.Value(ctx, link.Ref, p)
	default:
		return decimal.Zero, nil
	}
}

func (r *Resolver) sum(ref ledger.Ref, p period.Period) decimal.Decimal {
	if r.source == nil {
		return decimal.Zero
	}
	return r.source.Sum(ref, p)
}

func (r *Resolver) lookup(key Key) (decimal.Decimal, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	v, ok := r.cache[key]
	return v, ok
}

func (r *Resolver) store(key Key, v decimal.Decimal) {
	r.mu.Lock()
	r.cache[key] = v
	r.mu.Unlock()
}
