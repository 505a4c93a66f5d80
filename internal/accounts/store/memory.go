package store

import (
	"context"
	"slices"
	"strings"
	"sync"

	"biblioteca/internal/accounts/models"
	id "biblioteca/pkg/domain"
)

// InMemory is a process-local account store. Uniqueness of handle, email and
// national id is checked and claimed under a single lock so concurrent
// registrations behave like the unique constraints of the Postgres store.
type InMemory struct {
	mu       sync.RWMutex
	accounts map[id.AccountID]*models.Account
}

func NewInMemory() *InMemory {
	return &InMemory{accounts: make(map[id.AccountID]*models.Account)}
}

// Create inserts a new account together with its profile.
func (s *InMemory) Create(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkUniqueLocked(account); err != nil {
		return err
	}
	s.accounts[account.ID] = account.Clone()
	return nil
}

// Update overwrites an existing account, re-checking uniqueness against
// every other account.
func (s *InMemory) Update(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.accounts[account.ID]; !ok {
		return ErrNotFound
	}
	if err := s.checkUniqueLocked(account); err != nil {
		return err
	}
	s.accounts[account.ID] = account.Clone()
	return nil
}

// Execute loads the account, runs validate and then mutate while holding the
// store lock, and persists the result.
func (s *InMemory) Execute(_ context.Context, accountID id.AccountID, validate func(*models.Account) error, mutate func(*models.Account)) (*models.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.accounts[accountID]
	if !ok {
		return nil, ErrNotFound
	}
	working := current.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	if err := s.checkUniqueLocked(working); err != nil {
		return nil, err
	}
	s.accounts[accountID] = working
	return working.Clone(), nil
}

func (s *InMemory) FindByID(_ context.Context, accountID id.AccountID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if a, ok := s.accounts[accountID]; ok {
		return a.Clone(), nil
	}
	return nil, ErrNotFound
}

// FindByEmail matches case-insensitively.
func (s *InMemory) FindByEmail(_ context.Context, email string) (*models.Account, error) {
	return s.findFirst(func(a *models.Account) bool {
		return strings.EqualFold(a.Email, email)
	})
}

func (s *InMemory) FindByHandle(_ context.Context, handle string) (*models.Account, error) {
	return s.findFirst(func(a *models.Account) bool {
		return a.Handle == handle
	})
}

func (s *InMemory) FindByNationalID(_ context.Context, nationalID string) (*models.Account, error) {
	return s.findFirst(func(a *models.Account) bool {
		return a.Profile != nil && a.Profile.NationalID == nationalID
	})
}

// FindByIDs returns the accounts that exist among ids, keyed by id.
func (s *InMemory) FindByIDs(_ context.Context, ids []id.AccountID) (map[id.AccountID]*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[id.AccountID]*models.Account, len(ids))
	for _, accountID := range ids {
		if a, ok := s.accounts[accountID]; ok {
			out[accountID] = a.Clone()
		}
	}
	return out, nil
}

// List returns every account ordered by creation time.
func (s *InMemory) List(_ context.Context) ([]*models.Account, error) {
	s.mu.RLock()
	out := make([]*models.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, a.Clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b *models.Account) int {
		if c := a.CreatedAt.Compare(b.CreatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.Handle, b.Handle)
	})
	return out, nil
}

func (s *InMemory) findFirst(match func(*models.Account) bool) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, a := range s.accounts {
		if match(a) {
			return a.Clone(), nil
		}
	}
	return nil, ErrNotFound
}

// checkUniqueLocked must be called with mu held.
func (s *InMemory) checkUniqueLocked(candidate *models.Account) error {
	for otherID, other := range s.accounts {
		if otherID == candidate.ID {
			continue
		}
		if other.Handle == candidate.Handle {
			return ErrHandleTaken
		}
		if strings.EqualFold(other.Email, candidate.Email) {
			return ErrEmailTaken
		}
		if candidate.Profile != nil && other.Profile != nil &&
			other.Profile.NationalID == candidate.Profile.NationalID {
			return ErrNationalIDTaken
		}
	}
	return nil
}
