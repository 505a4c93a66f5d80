// Package reporting aggregates the staff dashboard from read-only views of
// the catalog and the lending ledger.
package reporting

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	catalogmodels "biblioteca/internal/catalog/models"
	lendingmodels "biblioteca/internal/lending/models"
	dErrors "biblioteca/pkg/domain-errors"
	"biblioteca/pkg/platform/circuit"
)

// Dashboard is the library's state as of one calendar date.
type Dashboard struct {
	AsOf         time.Time                  `json:"as_of"`
	TotalItems   int                        `json:"total_items"`
	ItemsByGenre []catalogmodels.GenreCount `json:"items_by_genre"`
	ActiveLoans  int                        `json:"active_loans"`
	OverdueLoans int                        `json:"overdue_loans"`
	TotalFines   lendingmodels.Money        `json:"total_fines"`
}

type CatalogReader interface {
	CountItems(ctx context.Context) (int, error)
	CountByGenre(ctx context.Context) ([]catalogmodels.GenreCount, error)
}

type LoanReader interface {
	CountActive(ctx context.Context) (int, error)
	CountOverdue(ctx context.Context, asOf time.Time) (int, error)
	SumFines(ctx context.Context) (lendingmodels.Money, error)
}

// Cache holds computed dashboards. Get reports ok=false on a miss.
type Cache interface {
	Get(ctx context.Context, key string) (*Dashboard, bool, error)
	Set(ctx context.Context, key string, dashboard *Dashboard) error
}

type Service struct {
	catalog  CatalogReader
	loans    LoanReader
	cache    Cache
	logger   *slog.Logger
	location *time.Location
}

type Option func(*Service)

// WithCache serves dashboards from cache when present. Cache failures are
// logged and fall through to the stores; repeated failures trip a breaker
// that skips the cache until it recovers.
func WithCache(cache Cache, opts ...circuit.Option) Option {
	return func(s *Service) {
		if cache != nil {
			s.cache = newGuardedCache(cache, circuit.New("dashboard-cache", opts...))
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithLocation sets the time zone whose calendar decides asOf's date.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func New(catalog CatalogReader, loans LoanReader, opts ...Option) *Service {
	s := &Service{catalog: catalog, loans: loans, location: time.UTC}
	for _, opt := range opts {
		opt(s)
	}
	if g, ok := s.cache.(*guardedCache); ok {
		g.logger = s.logger
	}
	return s
}

// Dashboard computes the dashboard as of asOf's date. A loan is overdue when
// it is active and was due before that date.
func (s *Service) Dashboard(ctx context.Context, asOf time.Time) (*Dashboard, error) {
	date := lendingmodels.DateOf(asOf.In(s.location))
	key := "dashboard:" + date.Format(time.DateOnly)

	if s.cache != nil {
		cached, ok, err := s.cache.Get(ctx, key)
		switch {
		case err != nil:
			s.warn(ctx, "dashboard cache read failed", err)
		case ok:
			return cached, nil
		}
	}

	d := &Dashboard{AsOf: date}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		n, err := s.catalog.CountItems(gctx)
		d.TotalItems = n
		return err
	})
	g.Go(func() error {
		counts, err := s.catalog.CountByGenre(gctx)
		d.ItemsByGenre = counts
		return err
	})
	g.Go(func() error {
		n, err := s.loans.CountActive(gctx)
		d.ActiveLoans = n
		return err
	})
	g.Go(func() error {
		n, err := s.loans.CountOverdue(gctx, date)
		d.OverdueLoans = n
		return err
	})
	g.Go(func() error {
		total, err := s.loans.SumFines(gctx)
		d.TotalFines = total
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build dashboard")
	}
	if d.ItemsByGenre == nil {
		d.ItemsByGenre = []catalogmodels.GenreCount{}
	}

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, d); err != nil {
			s.warn(ctx, "dashboard cache write failed", err)
		}
	}
	return d, nil
}

func (s *Service) warn(ctx context.Context, msg string, err error) {
	if s.logger != nil {
		s.logger.WarnContext(ctx, msg, "error", err)
	}
}
