//go:build integration

package store_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"biblioteca/internal/accounts/models"
	"biblioteca/internal/accounts/store"
	id "biblioteca/pkg/domain"
	"biblioteca/pkg/platform/sentinel"
	"biblioteca/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	err := s.postgres.TruncateTables(context.Background(), "audit_events", "loans", "profiles", "accounts")
	s.Require().NoError(err)
}

func newAccount(handle, email, nationalID string) *models.Account {
	accountID := id.NewAccountID()
	now := time.Now().UTC().Truncate(time.Microsecond)
	return &models.Account{
		ID:           accountID,
		Handle:       handle,
		Email:        email,
		PasswordHash: "hash",
		FirstName:    "Ana",
		LastName:     "Rojas",
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
		Profile: &models.Profile{
			AccountID:  accountID,
			Role:       id.RoleReader,
			NationalID: nationalID,
		},
	}
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	ctx := context.Background()
	acc := newAccount("ana", "ana@example.com", "123456785")
	s.Require().NoError(s.store.Create(ctx, acc))

	found, err := s.store.FindByEmail(ctx, "ana@example.com")
	s.Require().NoError(err)
	s.Equal(acc.ID, found.ID)
	s.Require().NotNil(found.Profile)
	s.Equal(id.RoleReader, found.Profile.Role)

	found, err = s.store.FindByHandle(ctx, "ana")
	s.Require().NoError(err)
	s.Equal(acc.ID, found.ID)

	found, err = s.store.FindByNationalID(ctx, "123456785")
	s.Require().NoError(err)
	s.Equal(acc.ID, found.ID)

	_, err = s.store.FindByID(ctx, id.NewAccountID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestAccountWithoutProfile() {
	ctx := context.Background()
	acc := newAccount("sinperfil", "sin@example.com", "")
	acc.Profile = nil
	s.Require().NoError(s.store.Create(ctx, acc))

	found, err := s.store.FindByID(ctx, acc.ID)
	s.Require().NoError(err)
	s.Nil(found.Profile)
}

func (s *PostgresStoreSuite) TestUniqueConstraints() {
	ctx := context.Background()
	s.Require().NoError(s.store.Create(ctx, newAccount("ana", "ana@example.com", "123456785")))

	err := s.store.Create(ctx, newAccount("ana", "otra@example.com", "10000013K"))
	s.ErrorIs(err, store.ErrHandleTaken)

	err = s.store.Create(ctx, newAccount("ana1", "ana@example.com", "10000013K"))
	s.ErrorIs(err, store.ErrEmailTaken)

	err = s.store.Create(ctx, newAccount("ana2", "ana2@example.com", "123456785"))
	s.ErrorIs(err, store.ErrNationalIDTaken)

	_, err = s.store.FindByHandle(ctx, "ana2")
	s.ErrorIs(err, sentinel.ErrNotFound, "failed insert must not leave a partial account")
}

// TestConcurrentHandleClaim verifies the unique constraint lets exactly one
// of many racing inserts claim a handle.
func (s *PostgresStoreSuite) TestConcurrentHandleClaim() {
	ctx := context.Background()
	const goroutines = 20
	ruts := []string{"123456785", "10000013K", "6K", "00", "111111111", "222222222", "333333333", "444444444"}

	var wg sync.WaitGroup
	var ok, taken atomic.Int32
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			acc := newAccount("juan", "juan"+string(rune('a'+i))+"@example.com", ruts[i%len(ruts)]+string(rune('a'+i)))
			err := s.store.Create(ctx, acc)
			switch {
			case err == nil:
				ok.Add(1)
			case errors.Is(err, store.ErrHandleTaken):
				taken.Add(1)
			default:
				s.T().Errorf("unexpected error: %v", err)
			}
		}(i)
	}
	wg.Wait()

	s.Equal(int32(1), ok.Load())
	s.Equal(int32(goroutines-1), taken.Load())
}

func (s *PostgresStoreSuite) TestExecuteAndListings() {
	ctx := context.Background()
	admin := newAccount("admin", "admin@example.com", "123456785")
	reader := newAccount("lector", "lector@example.com", "10000013K")
	s.Require().NoError(s.store.Create(ctx, admin))
	s.Require().NoError(s.store.Create(ctx, reader))

	updated, err := s.store.Execute(ctx, reader.ID,
		func(a *models.Account) error { return a.CanChangeRole(admin.ID, id.RoleLibrarian) },
		func(a *models.Account) { a.ApplyRole(id.RoleLibrarian, time.Now()) },
	)
	s.Require().NoError(err)
	s.Equal(id.RoleLibrarian, updated.Profile.Role)

	found, err := s.store.FindByIDs(ctx, []id.AccountID{admin.ID, reader.ID, id.NewAccountID()})
	s.Require().NoError(err)
	s.Len(found, 2)
	s.Equal(id.RoleLibrarian, found[reader.ID].Profile.Role)

	all, err := s.store.List(ctx)
	s.Require().NoError(err)
	s.Len(all, 2)
}
