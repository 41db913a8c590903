// Package dre computes the income statement (Demonstrativo do Resultado do
// Exercício): a forest of ordered accounts whose signed components are
// evaluated per period and rolled up into their parents.
package dre

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finboard/finboard/internal/ledger"
)

// Sign is the symbol stored on an account component.
type Sign string

const (
	SignPlus   Sign = "+"
	SignMinus  Sign = "-"
	SignEquals Sign = "="
)

var minusOne = decimal.NewFromInt(-1)

// ParseSign validates a stored symbol.
func ParseSign(raw string) (Sign, error) {
	switch s := Sign(strings.TrimSpace(raw)); s {
	case SignPlus, SignMinus, SignEquals:
		return s, nil
	default:
		return "", fmt.Errorf("dre: unknown component sign %q", raw)
	}
}

// Apply multiplies v by the sign. Only "+" adds; "-" and "=" subtract.
func (s Sign) Apply(v decimal.Decimal) decimal.Decimal {
	if s == SignPlus {
		return v
	}
	return v.Mul(minusOne)
}

// Account is a node of the statement tree.
type Account struct {
	ID       uuid.UUID  `json:"id"`
	Name     string     `json:"name"`
	Order    int        `json:"order"`
	ParentID *uuid.UUID `json:"parent_id,omitempty"`
	Active   bool       `json:"active"`
}

// Activation toggles an account for one company.
type Activation struct {
	AccountID uuid.UUID
	CompanyID uuid.UUID
	Active    bool
}

// Component is a signed contribution of a category or indicator to an account.
type Component struct {
	ID        uuid.UUID
	AccountID uuid.UUID
	Ref       ledger.Ref
	Sign      Sign
	Order     int
}

// ComputedAccount is an account with its totals over a window. PeriodTotals
// and Variations are keyed by period.Period.Key.
type ComputedAccount struct {
	AccountID     uuid.UUID                  `json:"account_id"`
	Name          string                     `json:"name"`
	Order         int                        `json:"order"`
	ParentID      *uuid.UUID                 `json:"parent_id,omitempty"`
	PeriodTotals  map[string]decimal.Decimal `json:"period_totals"`
	TrailingTotal decimal.Decimal            `json:"trailing_total"`
	Variations    map[string]decimal.Decimal `json:"variations"`
	Children      []*ComputedAccount         `json:"children"`
}

// ActiveFor keeps the accounts that are active and activated for company.
// Accounts without an activation row for the company are excluded.
func ActiveFor(company uuid.UUID, accounts []Account, activations []Activation) []Account {
	enabled := make(map[uuid.UUID]bool, len(activations))
	for _, a := range activations {
		if a.CompanyID == company && a.Active {
			enabled[a.AccountID] = true
		}
	}
	out := make([]Account, 0, len(accounts))
	for _, acc := range accounts {
		if acc.Active && enabled[acc.ID] {
			out = append(out, acc)
		}
	}
	return out
}
