// Package ledger holds the posting and reference-data model shared by the
// dashboard and DRE engines, plus the Postgres repository that reads it.
package ledger

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/finboard/finboard/internal/period"
)

// Kind distinguishes revenue postings from expense postings.
type Kind string

const (
	// KindRevenue adds the amount ("receita").
	KindRevenue Kind = "receita"
	// KindExpense subtracts the amount ("despesa").
	KindExpense Kind = "despesa"
)

// ParseKind accepts the stored values as well as their English aliases.
func ParseKind(raw string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "receita", "revenue":
		return KindRevenue, nil
	case "despesa", "expense":
		return KindExpense, nil
	default:
		return "", fmt.Errorf("ledger: unknown entry kind %q", raw)
	}
}

// Signed applies the revenue-positive / expense-negative convention.
func (k Kind) Signed(amount decimal.Decimal) decimal.Decimal {
	if k == KindExpense {
		return amount.Neg()
	}
	return amount
}

// RefKind tags what a Ref points to.
type RefKind string

const (
	RefCategory  RefKind = "category"
	RefIndicator RefKind = "indicator"
	RefClient    RefKind = "client"
)

// Ref is a tagged reference to a category, an indicator or a client.
type Ref struct {
	Kind RefKind   `json:"kind"`
	ID   uuid.UUID `json:"id"`
}

// CategoryRef references a category.
func CategoryRef(id uuid.UUID) Ref { return Ref{Kind: RefCategory, ID: id} }

// IndicatorRef references an indicator.
func IndicatorRef(id uuid.UUID) Ref { return Ref{Kind: RefIndicator, ID: id} }

// ClientRef references a client.
func ClientRef(id uuid.UUID) Ref { return Ref{Kind: RefClient, ID: id} }

// IsZero reports an unset reference.
func (r Ref) IsZero() bool {
	return r.Kind == "" || r.ID == uuid.Nil
}

func (r Ref) String() string {
	return string(r.Kind) + ":" + r.ID.String()
}

// RefFromColumns converts the nullable foreign-key columns used by the store
// into a Ref. Exactly one column must be set.
func RefFromColumns(categoryID, indicatorID, clientID *uuid.UUID) (Ref, error) {
	var refs []Ref
	if categoryID != nil {
		refs = append(refs, CategoryRef(*categoryID))
	}
	if indicatorID != nil {
		refs = append(refs, IndicatorRef(*indicatorID))
	}
	if clientID != nil {
		refs = append(refs, ClientRef(*clientID))
	}
	if len(refs) != 1 {
		return Ref{}, fmt.Errorf("%w: expected exactly one reference, got %d", ErrInvalidRef, len(refs))
	}
	return refs[0], nil
}

// Columns splits a Ref back into the nullable store columns.
func (r Ref) Columns() (categoryID, indicatorID, clientID *uuid.UUID) {
	id := r.ID
	switch r.Kind {
	case RefCategory:
		categoryID = &id
	case RefIndicator:
		indicatorID = &id
	case RefClient:
		clientID = &id
	}
	return categoryID, indicatorID, clientID
}

// Entry is a single posting ("lançamento").
type Entry struct {
	ID        uuid.UUID       `json:"id"`
	CompanyID uuid.UUID       `json:"company_id"`
	Subject   Ref             `json:"subject"`
	Month     int             `json:"month"`
	Year      int             `json:"year"`
	Amount    decimal.Decimal `json:"amount"`
	Kind      Kind            `json:"kind"`
}

// Period returns the calendar month of the entry.
func (e Entry) Period() period.Period {
	return period.Period{Month: e.Month, Year: e.Year}
}

// Signed returns the entry amount with the kind sign applied.
func (e Entry) Signed() decimal.Decimal {
	return e.Kind.Signed(e.Amount)
}

// Category is a leaf classification of postings.
type Category struct {
	ID     uuid.UUID `json:"id"`
	Code   string    `json:"code"`
	Name   string    `json:"name"`
	Active bool      `json:"active"`
}

// Client is the counterparty a posting can be tagged with.
type Client struct {
	ID     uuid.UUID `json:"id"`
	Name   string    `json:"name"`
	Active bool      `json:"active"`
}

// IndicatorType separates postable indicators from compositions.
type IndicatorType string

const (
	// IndicatorAtomic is populated directly by postings ("único").
	IndicatorAtomic IndicatorType = "único"
	// IndicatorComposite sums its composition links ("composto").
	IndicatorComposite IndicatorType = "composto"
)

// DataKind hints how an indicator value is displayed.
type DataKind string

const (
	DataCurrency   DataKind = "moeda"
	DataNumber     DataKind = "numero"
	DataPercentage DataKind = "percentual"
)

// Indicator is a named derived metric.
type Indicator struct {
	ID       uuid.UUID     `json:"id"`
	Code     string        `json:"code"`
	Name     string        `json:"name"`
	Type     IndicatorType `json:"type"`
	DataKind DataKind      `json:"data_kind"`
	Active   bool          `json:"active"`
}

// ParseIndicatorType normalises the stored indicator type.
func ParseIndicatorType(raw string) IndicatorType {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "único", "unico", "atomic":
		return IndicatorAtomic
	default:
		return IndicatorComposite
	}
}

// ParseDataKind normalises the stored data kind, defaulting to currency.
func ParseDataKind(raw string) DataKind {
	switch DataKind(strings.ToLower(strings.TrimSpace(raw))) {
	case DataNumber:
		return DataNumber
	case DataPercentage:
		return DataPercentage
	default:
		return DataCurrency
	}
}

// CompositionLink declares a contribution into a composite indicator. Ref is
// either an indicator or a category.
type CompositionLink struct {
	ID          uuid.UUID `json:"id"`
	IndicatorID uuid.UUID `json:"indicator_id"`
	Ref         Ref       `json:"ref"`
	Order       int       `json:"order"`
}
