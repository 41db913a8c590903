package ledger

import "errors"

var (
	// ErrUpstreamFetch wraps any failure reading from the ledger store. It
	// aborts the whole computation.
	ErrUpstreamFetch = errors.New("ledger: upstream fetch failed")
	// ErrConfigurationGap marks a reference to a missing or inactive
	// category, indicator or client.
	ErrConfigurationGap = errors.New("ledger: configuration gap")
	// ErrInvalidRef is returned when a row does not reference exactly one subject.
	ErrInvalidRef = errors.New("ledger: invalid reference")
	// ErrInvalidEntry is returned when an entry fails validation.
	ErrInvalidEntry = errors.New("ledger: invalid entry")
	// ErrEntryNotFound is returned when an entry id does not exist for the company.
	ErrEntryNotFound = errors.New("ledger: entry not found")
)
