package ledger

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/finboard/finboard/internal/platform/cache"
)

// ReferenceData is the slowly changing configuration every computation needs.
type ReferenceData struct {
	Categories   []Category        `json:"categories"`
	Clients      []Client          `json:"clients"`
	Indicators   []Indicator       `json:"indicators"`
	Compositions []CompositionLink `json:"compositions"`
}

// Catalog indexes the reference rows by id.
func (d ReferenceData) Catalog() *Catalog {
	return NewCatalog(d.Categories, d.Clients, d.Indicators)
}

// ReferenceReader is the subset of Repository the reference store reads.
type ReferenceReader interface {
	ListCategories(ctx context.Context) ([]Category, error)
	ListClients(ctx context.Context) ([]Client, error)
	ListIndicators(ctx context.Context) ([]Indicator, error)
	ListCompositions(ctx context.Context) ([]CompositionLink, error)
}

// ReferenceStore loads reference data through the versioned Redis cache.
type ReferenceStore struct {
	repo   ReferenceReader
	cache  *cache.Versioned
	logger *slog.Logger
}

// NewReferenceStore wires the reader with an optional cache.
func NewReferenceStore(repo ReferenceReader, c *cache.Versioned, logger *slog.Logger) *ReferenceStore {
	if logger == nil {
		logger = slog.Default()
	}
	return &ReferenceStore{repo: repo, cache: c, logger: logger}
}

// Load returns the reference data, fetching the four tables concurrently on a
// cache miss.
func (s *ReferenceStore) Load(ctx context.Context) (ReferenceData, error) {
	key, err := s.cache.BuildKey(ctx, "finboard", "reference")
	if err != nil {
		s.logger.Warn("reference cache unavailable", slog.Any("error", err))
		return s.fetch(ctx)
	}
	data, err := cache.FetchJSON(ctx, s.cache, key, s.fetch)
	switch {
	case err == nil:
		return data, nil
	case errors.Is(err, ErrUpstreamFetch), ctx.Err() != nil:
		return ReferenceData{}, err
	default:
		s.logger.Warn("reference cache unavailable", slog.Any("error", err))
		return s.fetch(ctx)
	}
}

// Invalidate bumps the cache version after reference data changes.
func (s *ReferenceStore) Invalidate(ctx context.Context) error {
	ver, err := s.cache.Bump(ctx)
	if err != nil {
		return err
	}
	s.logger.Debug("reference cache bumped", slog.Int64("version", ver))
	return nil
}

func (s *ReferenceStore) fetch(ctx context.Context) (ReferenceData, error) {
	var data ReferenceData
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		data.Categories, err = s.repo.ListCategories(gctx)
		return err
	})
	g.Go(func() (err error) {
		data.Clients, err = s.repo.ListClients(gctx)
		return err
	})
	g.Go(func() (err error) {
		data.Indicators, err = s.repo.ListIndicators(gctx)
		return err
	})
	g.Go(func() (err error) {
		data.Compositions, err = s.repo.ListCompositions(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return ReferenceData{}, err
	}
	return data, nil
}
