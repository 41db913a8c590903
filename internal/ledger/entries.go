package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/finboard/finboard/internal/period"
)

// EntryStore persists postings.
type EntryStore interface {
	CreateEntry(ctx context.Context, e Entry) (Entry, error)
	DeleteEntry(ctx context.Context, companyID, id uuid.UUID) error
	CompanyExists(ctx context.Context, companyID uuid.UUID) (bool, error)
}

// ReferenceLoader yields the current reference data.
type ReferenceLoader interface {
	Load(ctx context.Context) (ReferenceData, error)
}

// EntryService validates and records postings.
type EntryService struct {
	store EntryStore
	refs  ReferenceLoader
}

// NewEntryService wires the entry write path.
func NewEntryService(store EntryStore, refs ReferenceLoader) *EntryService {
	return &EntryService{store: store, refs: refs}
}

// Record stores e after checking its period, amount, company and subject.
// Indicator subjects must be active atomic indicators.
func (s *EntryService) Record(ctx context.Context, e Entry) (Entry, error) {
	if err := (period.Period{Month: e.Month, Year: e.Year}).Validate(); err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrInvalidEntry, err)
	}
	if !e.Amount.IsPositive() {
		return Entry{}, fmt.Errorf("%w: amount must be positive", ErrInvalidEntry)
	}
	if e.Kind != KindRevenue && e.Kind != KindExpense {
		return Entry{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidEntry, e.Kind)
	}
	if e.Subject.IsZero() {
		return Entry{}, fmt.Errorf("%w: subject required", ErrInvalidEntry)
	}

	exists, err := s.store.CompanyExists(ctx, e.CompanyID)
	if err != nil {
		return Entry{}, err
	}
	if !exists {
		return Entry{}, fmt.Errorf("%w: company %s is not active", ErrInvalidEntry, e.CompanyID)
	}
	refs, err := s.refs.Load(ctx)
	if err != nil {
		return Entry{}, err
	}
	if err := checkSubject(refs, e.Subject); err != nil {
		return Entry{}, err
	}
	return s.store.CreateEntry(ctx, e)
}

// Delete removes a posting owned by companyID.
func (s *EntryService) Delete(ctx context.Context, companyID, id uuid.UUID) error {
	return s.store.DeleteEntry(ctx, companyID, id)
}

func checkSubject(refs ReferenceData, ref Ref) error {
	catalog := refs.Catalog()
	if !catalog.Active(ref) {
		return fmt.Errorf("%w: %w: %s", ErrInvalidEntry, ErrConfigurationGap, ref)
	}
	if ref.Kind == RefIndicator && catalog.Indicators[ref.ID].Type != IndicatorAtomic {
		return fmt.Errorf("%w: %s is a composite indicator", ErrInvalidEntry, ref)
	}
	return nil
}
