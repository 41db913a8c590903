package dre

import (
	"context"
	"errors"
	"runtime"
	"sort"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/finboard/finboard/internal/aggregate"
	"github.com/finboard/finboard/internal/period"
)

// ErrEmptyWindow is returned when Compute receives no periods.
var ErrEmptyWindow = errors.New("dre: empty window")

// Forest is the computed statement. Orphans lists accounts whose parent is
// not part of the scoped account set; CycleBreaks lists accounts detached from
// their parent because the parent links formed a cycle. Both are emitted as
// roots.
type Forest struct {
	Accounts    []*ComputedAccount
	Orphans     []uuid.UUID
	CycleBreaks []uuid.UUID
}

// Compute evaluates every account's own components for each period of window,
// links the accounts into a forest, rolls child totals into their parents in
// post-order and sorts siblings by Order at every level.
//
// The trailing total of an account is the sum of every period except the
// oldest one.
func Compute(ctx context.Context, accounts []Account, components []Component, values aggregate.Valuer, window []period.Period) (Forest, error) {
	if len(window) == 0 {
		return Forest{}, ErrEmptyWindow
	}
	byAccount := make(map[uuid.UUID][]Component, len(accounts))
	for _, c := range components {
		byAccount[c.AccountID] = append(byAccount[c.AccountID], c)
	}
	for id := range byAccount {
		sort.SliceStable(byAccount[id], func(i, j int) bool {
			return byAccount[id][i].Order < byAccount[id][j].Order
		})
	}

	nodes := make([]*ComputedAccount, len(accounts))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, acc := range accounts {
		g.Go(func() error {
			node, err := ownTotals(gctx, acc, byAccount[acc.ID], values, window)
			if err != nil {
				return err
			}
			nodes[i] = node
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Forest{}, err
	}

	forest := link(nodes)
	for _, root := range forest.Accounts {
		rollUp(root, window)
	}
	sortSiblings(forest.Accounts)
	return forest, nil
}

func ownTotals(ctx context.Context, acc Account, components []Component, values aggregate.Valuer, window []period.Period) (*ComputedAccount, error) {
	node := &ComputedAccount{
		AccountID:    acc.ID,
		Name:         acc.Name,
		Order:        acc.Order,
		ParentID:     acc.ParentID,
		PeriodTotals: make(map[string]decimal.Decimal, len(window)),
		Variations:   make(map[string]decimal.Decimal, len(window)),
	}
	for i, p := range window {
		total := decimal.Zero
		for _, c := range components {
			v, err := values.Value(ctx, c.Ref, p)
			if err != nil {
				return nil, err
			}
			total = total.Add(c.Sign.Apply(v))
		}
		node.PeriodTotals[p.Key()] = total
		if i > 0 {
			node.TrailingTotal = node.TrailingTotal.Add(total)
		}
	}
	return node, nil
}

// link attaches every node to its parent by id. Unknown parents and parent
// cycles leave the node as a root.
func link(nodes []*ComputedAccount) Forest {
	byID := make(map[uuid.UUID]*ComputedAccount, len(nodes))
	for _, n := range nodes {
		byID[n.AccountID] = n
	}
	// Deterministic visiting order decides which account of a cycle is detached.
	ordered := append([]*ComputedAccount(nil), nodes...)
	sort.SliceStable(ordered, func(i, j int) bool { return less(ordered[i], ordered[j]) })

	var forest Forest
	parent := make(map[uuid.UUID]*ComputedAccount, len(nodes))
	for _, n := range ordered {
		if n.ParentID == nil {
			continue
		}
		p, ok := byID[*n.ParentID]
		if !ok || p == n {
			if !ok {
				forest.Orphans = append(forest.Orphans, n.AccountID)
			} else {
				forest.CycleBreaks = append(forest.CycleBreaks, n.AccountID)
			}
			continue
		}
		parent[n.AccountID] = p
	}

	const (
		unvisited = iota
		walking
		settled
	)
	state := make(map[uuid.UUID]int, len(nodes))
	for _, n := range ordered {
		var path []*ComputedAccount
		cur := n
		for cur != nil && state[cur.AccountID] == unvisited {
			state[cur.AccountID] = walking
			path = append(path, cur)
			cur = parent[cur.AccountID]
		}
		if cur != nil && state[cur.AccountID] == walking {
			// cur closes a cycle made of path[k:], where path[k] == cur.
			k := 0
			for path[k] != cur {
				k++
			}
			victim := path[k]
			for _, member := range path[k+1:] {
				if less(member, victim) {
					victim = member
				}
			}
			delete(parent, victim.AccountID)
			forest.CycleBreaks = append(forest.CycleBreaks, victim.AccountID)
		}
		for _, visited := range path {
			state[visited.AccountID] = settled
		}
	}

	for _, n := range ordered {
		if p, ok := parent[n.AccountID]; ok {
			p.Children = append(p.Children, n)
			continue
		}
		forest.Accounts = append(forest.Accounts, n)
	}
	return forest
}

// rollUp adds every descendant's totals into n, children first.
func rollUp(n *ComputedAccount, window []period.Period) {
	for _, child := range n.Children {
		rollUp(child, window)
		for key, v := range child.PeriodTotals {
			n.PeriodTotals[key] = n.PeriodTotals[key].Add(v)
		}
		n.TrailingTotal = n.TrailingTotal.Add(child.TrailingTotal)
	}
	for i, p := range window {
		if i == 0 {
			n.Variations[p.Key()] = decimal.Zero
			continue
		}
		n.Variations[p.Key()] = aggregate.Variation(n.PeriodTotals[p.Key()], n.PeriodTotals[window[i-1].Key()])
	}
}

func sortSiblings(nodes []*ComputedAccount) {
	sort.SliceStable(nodes, func(i, j int) bool { return less(nodes[i], nodes[j]) })
	for _, n := range nodes {
		sortSiblings(n.Children)
	}
}

func less(a, b *ComputedAccount) bool {
	if a.Order != b.Order {
		return a.Order < b.Order
	}
	if a.Name != b.Name {
		return a.Name < b.Name
	}
	return a.AccountID.String() < b.AccountID.String()
}
