package dre

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/finboard/finboard/internal/indicator"
	"github.com/finboard/finboard/internal/ledger"
	"github.com/finboard/finboard/internal/period"
)

type tableValuer map[ledger.Ref]map[period.Period]int64

func (t tableValuer) Value(_ context.Context, ref ledger.Ref, p period.Period) (decimal.Decimal, error) {
	return decimal.NewFromInt(t[ref][p]), nil
}

var (
	periodX = period.Period{Month: 5, Year: 2024}
	window3 = []period.Period{{Month: 3, Year: 2024}, {Month: 4, Year: 2024}, periodX}
)

func account(name string, order int, parent *Account) Account {
	acc := Account{ID: uuid.New(), Name: name, Order: order, Active: true}
	if parent != nil {
		id := parent.ID
		acc.ParentID = &id
	}
	return acc
}

func component(acc Account, ref ledger.Ref, sign Sign) Component {
	return Component{ID: uuid.New(), AccountID: acc.ID, Ref: ref, Sign: sign}
}

func find(nodes []*ComputedAccount, id uuid.UUID) *ComputedAccount {
	for _, n := range nodes {
		if n.AccountID == id {
			return n
		}
		if found := find(n.Children, id); found != nil {
			return found
		}
	}
	return nil
}

func TestRollUpAddsChildrenIntoParent(t *testing.T) {
	receita := ledger.CategoryRef(uuid.New())
	despesa := ledger.CategoryRef(uuid.New())
	resultado := account("Resultado", 1, nil)
	operacionais := account("Despesas Operacionais", 2, &resultado)
	values := tableValuer{
		receita: {periodX: 500},
		despesa: {periodX: 200},
	}

	forest, err := Compute(context.Background(),
		[]Account{operacionais, resultado},
		[]Component{
			component(resultado, receita, SignPlus),
			component(operacionais, despesa, SignMinus),
		},
		values, window3)
	require.NoError(t, err)

	require.Len(t, forest.Accounts, 1)
	root := forest.Accounts[0]
	assert.Equal(t, "Resultado", root.Name)
	require.Len(t, root.Children, 1)
	assert.True(t, root.Children[0].PeriodTotals[periodX.Key()].Equal(decimal.NewFromInt(-200)))
	assert.True(t, root.PeriodTotals[periodX.Key()].Equal(decimal.NewFromInt(300)), "got %s", root.PeriodTotals[periodX.Key()])
	assert.True(t, root.TrailingTotal.Equal(decimal.NewFromInt(300)))
}

func TestTrailingTotalSkipsOldestPeriod(t *testing.T) {
	cat := ledger.CategoryRef(uuid.New())
	acc := account("Receita", 1, nil)
	values := tableValuer{cat: {window3[0]: 1000, window3[1]: 10, window3[2]: 5}}

	forest, err := Compute(context.Background(), []Account{acc}, []Component{component(acc, cat, SignPlus)}, values, window3)
	require.NoError(t, err)
	node := forest.Accounts[0]
	assert.True(t, node.TrailingTotal.Equal(decimal.NewFromInt(15)), "got %s", node.TrailingTotal)
	assert.True(t, node.PeriodTotals[window3[0].Key()].Equal(decimal.NewFromInt(1000)))
	assert.True(t, node.Variations[window3[0].Key()].IsZero())
	assert.True(t, node.Variations[window3[1].Key()].Equal(decimal.NewFromInt(-99)))
	assert.True(t, node.Variations[window3[2].Key()].Equal(decimal.NewFromInt(-50)))
}

func TestDeepRollUpAndRecursiveOrdering(t *testing.T) {
	cat := ledger.CategoryRef(uuid.New())
	root := account("Lucro", 1, nil)
	mid := account("Operacional", 1, &root)
	late := account("Z last", 9, &mid)
	early := account("A first", 3, &mid)
	other := account("Financeiro", 0, &root)
	values := tableValuer{cat: {periodX: 7}}
	comps := []Component{
		component(late, cat, SignPlus),
		component(early, cat, SignPlus),
		component(other, cat, SignMinus),
	}

	orders := [][]Account{
		{root, mid, late, early, other},
		{early, other, late, mid, root},
	}
	var totals []decimal.Decimal
	for _, accounts := range orders {
		forest, err := Compute(context.Background(), accounts, comps, values, window3)
		require.NoError(t, err)
		require.Len(t, forest.Accounts, 1)
		top := forest.Accounts[0]
		require.Len(t, top.Children, 2)
		assert.Equal(t, "Financeiro", top.Children[0].Name)
		assert.Equal(t, "Operacional", top.Children[1].Name)
		grand := top.Children[1].Children
		require.Len(t, grand, 2)
		assert.Equal(t, "A first", grand[0].Name)
		assert.Equal(t, "Z last", grand[1].Name)
		assert.True(t, top.Children[1].PeriodTotals[periodX.Key()].Equal(decimal.NewFromInt(14)))
		totals = append(totals, top.PeriodTotals[periodX.Key()])
	}
	assert.True(t, totals[0].Equal(decimal.NewFromInt(7)))
	assert.True(t, totals[0].Equal(totals[1]))
}

func TestOrphansBecomeRoots(t *testing.T) {
	ghost := account("Removida", 1, nil)
	orphan := account("Órfã", 2, &ghost)
	root := account("Raiz", 1, nil)

	forest, err := Compute(context.Background(), []Account{orphan, root}, nil, tableValuer{}, window3)
	require.NoError(t, err)
	require.Len(t, forest.Accounts, 2)
	assert.Equal(t, "Raiz", forest.Accounts[0].Name)
	assert.Equal(t, "Órfã", forest.Accounts[1].Name)
	assert.Equal(t, []uuid.UUID{orphan.ID}, forest.Orphans)
}

func TestParentCyclesAreBroken(t *testing.T) {
	a := account("A", 1, nil)
	b := account("B", 2, &a)
	a.ParentID = &b.ID
	self := account("Self", 3, nil)
	self.ParentID = &self.ID
	cat := ledger.CategoryRef(uuid.New())
	values := tableValuer{cat: {periodX: 4}}

	forest, err := Compute(context.Background(), []Account{a, b, self},
		[]Component{component(a, cat, SignPlus), component(b, cat, SignPlus)}, values, window3)
	require.NoError(t, err)

	assert.ElementsMatch(t, []uuid.UUID{a.ID, self.ID}, forest.CycleBreaks)
	require.Len(t, forest.Accounts, 2)
	top := find(forest.Accounts, a.ID)
	require.NotNil(t, top)
	require.Len(t, top.Children, 1)
	assert.Equal(t, b.ID, top.Children[0].AccountID)
	assert.True(t, top.PeriodTotals[periodX.Key()].Equal(decimal.NewFromInt(8)))
}

func TestSignApply(t *testing.T) {
	v := decimal.NewFromInt(12)
	assert.True(t, SignPlus.Apply(v).Equal(v))
	assert.True(t, SignMinus.Apply(v).Equal(v.Neg()))
	assert.True(t, SignEquals.Apply(v).Equal(v.Neg()))
	_, err := ParseSign("*")
	assert.Error(t, err)
}

func TestActiveForScopesByCompany(t *testing.T) {
	company := uuid.New()
	on := account("Ativa", 1, nil)
	off := account("Inativa para empresa", 2, nil)
	disabled := account("Desativada", 3, nil)
	disabled.Active = false
	missing := account("Sem vínculo", 4, nil)

	scoped := ActiveFor(company, []Account{on, off, disabled, missing}, []Activation{
		{AccountID: on.ID, CompanyID: company, Active: true},
		{AccountID: off.ID, CompanyID: company, Active: false},
		{AccountID: off.ID, CompanyID: uuid.New(), Active: true},
		{AccountID: disabled.ID, CompanyID: company, Active: true},
	})
	require.Len(t, scoped, 1)
	assert.Equal(t, on.ID, scoped[0].ID)
}

func TestComputeFailsOnCyclicIndicator(t *testing.T) {
	ind := ledger.Indicator{ID: uuid.New(), Name: "Loop", Type: ledger.IndicatorComposite, Active: true}
	graph := indicator.NewGraph([]ledger.Indicator{ind}, []ledger.CompositionLink{
		{ID: uuid.New(), IndicatorID: ind.ID, Ref: ledger.IndicatorRef(ind.ID)},
	})
	resolver := indicator.NewResolver(graph, ledger.NewIndex(nil), nil)
	acc := account("Resultado", 1, nil)

	_, err := Compute(context.Background(), []Account{acc}, []Component{component(acc, ledger.IndicatorRef(ind.ID), SignPlus)}, resolver, window3)
	assert.ErrorIs(t, err, indicator.ErrCyclicComposition)
}

func TestComputeRejectsEmptyWindow(t *testing.T) {
	_, err := Compute(context.Background(), nil, nil, tableValuer{}, nil)
	assert.ErrorIs(t, err, ErrEmptyWindow)
}
