// Package store persists loans.
package store

import (
	"context"
	"slices"
	"sync"
	"time"

	"biblioteca/internal/lending/models"
	id "biblioteca/pkg/domain"
	"biblioteca/pkg/platform/sentinel"
)

// ErrNotFound is returned when a loan lookup misses.
var ErrNotFound = sentinel.ErrNotFound

type InMemory struct {
	mu    sync.RWMutex
	loans map[id.LoanID]*models.Loan
}

func NewInMemory() *InMemory {
	return &InMemory{loans: make(map[id.LoanID]*models.Loan)}
}

func (s *InMemory) Create(_ context.Context, loan *models.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.loans[loan.ID] = loan.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, loanID id.LoanID) (*models.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	loan, ok := s.loans[loanID]
	if !ok {
		return nil, ErrNotFound
	}
	return loan.Clone(), nil
}

// Execute runs validate and mutate on the loan under the store lock.
func (s *InMemory) Execute(_ context.Context, loanID id.LoanID, validate func(*models.Loan) error, mutate func(*models.Loan)) (*models.Loan, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.loans[loanID]
	if !ok {
		return nil, ErrNotFound
	}
	working := current.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.loans[loanID] = working
	return working.Clone(), nil
}

// ListActiveByAccount returns the account's active loans, soonest due first.
func (s *InMemory) ListActiveByAccount(_ context.Context, accountID id.AccountID) ([]*models.Loan, error) {
	out := s.filter(func(l *models.Loan) bool { return l.AccountID == accountID && l.IsActive() })
	sortByDue(out)
	return out, nil
}

// ListReturnedByAccount returns the account's most recently returned loans.
func (s *InMemory) ListReturnedByAccount(_ context.Context, accountID id.AccountID, limit int) ([]*models.Loan, error) {
	out := s.filter(func(l *models.Loan) bool { return l.AccountID == accountID && !l.IsActive() })
	slices.SortFunc(out, func(a, b *models.Loan) int {
		if c := b.ReturnedOn.Compare(*a.ReturnedOn); c != 0 {
			return c
		}
		return b.BorrowedOn.Compare(a.BorrowedOn)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ListFinedByAccount returns returned loans with a non-zero fine and active
// loans, the two inputs of a fine summary.
func (s *InMemory) ListFinedByAccount(_ context.Context, accountID id.AccountID) ([]*models.Loan, error) {
	out := s.filter(func(l *models.Loan) bool {
		return l.AccountID == accountID && (l.IsActive() || l.Fine > 0)
	})
	sortByDue(out)
	return out, nil
}

// ListActive returns every active loan, soonest due first.
func (s *InMemory) ListActive(_ context.Context) ([]*models.Loan, error) {
	out := s.filter(func(l *models.Loan) bool { return l.IsActive() })
	sortByDue(out)
	return out, nil
}

func (s *InMemory) CountActive(_ context.Context) (int, error) {
	return len(s.filter(func(l *models.Loan) bool { return l.IsActive() })), nil
}

func (s *InMemory) CountOverdue(_ context.Context, asOf time.Time) (int, error) {
	return len(s.filter(func(l *models.Loan) bool { return l.IsOverdue(asOf) })), nil
}

func (s *InMemory) SumFines(_ context.Context) (models.Money, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var total models.Money
	for _, l := range s.loans {
		total += l.Fine
	}
	return total, nil
}

func (s *InMemory) filter(keep func(*models.Loan) bool) []*models.Loan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Loan
	for _, l := range s.loans {
		if keep(l) {
			out = append(out, l.Clone())
		}
	}
	return out
}

func sortByDue(loans []*models.Loan) {
	slices.SortFunc(loans, func(a, b *models.Loan) int {
		if c := a.DueOn.Compare(b.DueOn); c != 0 {
			return c
		}
		return a.BorrowedOn.Compare(b.BorrowedOn)
	})
}
