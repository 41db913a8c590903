// Package indicator resolves atomic and composite indicator values with a
// request-scoped cache.
package indicator

import (
	"sort"

	"github.com/google/uuid"

	"github.com/finboard/finboard/internal/ledger"
)

const (
	white = iota
	grey
	black
)

// Graph is the immutable indicator composition graph of one computation.
// Cycle membership is computed eagerly so resolution never recurses into a
// cycle.
type Graph struct {
	indicators map[uuid.UUID]ledger.Indicator
	links      map[uuid.UUID][]ledger.CompositionLink
	cycles     map[uuid.UUID]*CyclicCompositionError
}

// NewGraph indexes indicators and their links and runs cycle detection.
func NewGraph(indicators []ledger.Indicator, links []ledger.CompositionLink) *Graph {
	g := &Graph{
		indicators: make(map[uuid.UUID]ledger.Indicator, len(indicators)),
		links:      make(map[uuid.UUID][]ledger.CompositionLink),
		cycles:     make(map[uuid.UUID]*CyclicCompositionError),
	}
	for _, ind := range indicators {
		g.indicators[ind.ID] = ind
	}
	for _, link := range links {
		if link.Ref.IsZero() || link.Ref.Kind == ledger.RefClient {
			continue
		}
		g.links[link.IndicatorID] = append(g.links[link.IndicatorID], link)
	}
	for id := range g.links {
		sort.SliceStable(g.links[id], func(i, j int) bool {
			return g.links[id][i].Order < g.links[id][j].Order
		})
	}
	g.detectCycles()
	return g
}

// Indicator returns the definition of id.
func (g *Graph) Indicator(id uuid.UUID) (ledger.Indicator, bool) {
	ind, ok := g.indicators[id]
	return ind, ok
}

// Links returns the ordered composition links of id.
func (g *Graph) Links(id uuid.UUID) []ledger.CompositionLink {
	return g.links[id]
}

// CheckAcyclic returns a *CyclicCompositionError when resolving id would
// revisit an indicator already being resolved.
func (g *Graph) CheckAcyclic(id uuid.UUID) error {
	if err, ok := g.cycles[id]; ok {
		return err
	}
	return nil
}

// expands reports whether resolution recurses into id's links.
func (g *Graph) expands(id uuid.UUID) bool {
	ind, ok := g.indicators[id]
	return ok && ind.Active && ind.Type == ledger.IndicatorComposite
}

func (g *Graph) detectCycles() {
	state := make(map[uuid.UUID]int, len(g.indicators))
	var stack []uuid.UUID

	var visit func(id uuid.UUID) *CyclicCompositionError
	visit = func(id uuid.UUID) *CyclicCompositionError {
		switch state[id] {
		case grey:
			for i, seen := range stack {
				if seen == id {
					path := append(append([]uuid.UUID{}, stack[i:]...), id)
					return g.cycleError(path)
				}
			}
		case black:
			return g.cycles[id]
		}
		if !g.expands(id) {
			state[id] = black
			return nil
		}
		state[id] = grey
		stack = append(stack, id)
		var found *CyclicCompositionError
		for _, link := range g.links[id] {
			if link.Ref.Kind != ledger.RefIndicator {
				continue
			}
			if err := visit(link.Ref.ID); err != nil && found == nil {
				found = err
			}
		}
		stack = stack[:len(stack)-1]
		state[id] = black
		if found != nil {
			g.cycles[id] = found
		}
		return found
	}

	ids := make([]uuid.UUID, 0, len(g.indicators))
	for id := range g.indicators {
		ids = append(ids, id)
	}
	// Deterministic traversal keeps reported cycle paths stable between requests.
	sort.Slice(ids, func(i, j int) bool { return ids[i].String() < ids[j].String() })
	for _, id := range ids {
		if state[id] == white {
			visit(id)
		}
	}
}

func (g *Graph) cycleError(path []uuid.UUID) *CyclicCompositionError {
	names := make([]string, len(path))
	for i, id := range path {
		if ind, ok := g.indicators[id]; ok && ind.Name != "" {
			names[i] = ind.Name
		} else {
			names[i] = id.String()
		}
	}
	return &CyclicCompositionError{Path: path, Names: names}
}
