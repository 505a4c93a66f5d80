package service

//go:generate mockgen -source=service.go -destination=mocks/mocks.go -package=mocks Store,Inventory,AccountDirectory,AuditPublisher

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	accountmodels "biblioteca/internal/accounts/models"
	accountstore "biblioteca/internal/accounts/store"
	catalogmodels "biblioteca/internal/catalog/models"
	catalogstore "biblioteca/internal/catalog/store"
	"biblioteca/internal/lending/metrics"
	"biblioteca/internal/lending/models"
	"biblioteca/internal/lending/service/mocks"
	"biblioteca/internal/lending/store"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/platform/audit/publisher"
	auditmemory "biblioteca/pkg/platform/audit/store/memory"
	"biblioteca/pkg/requestcontext"
)

type LendingServiceSuite struct {
	suite.Suite
	accounts *accountstore.InMemory
	catalog  *catalogstore.InMemory
	loans    *store.InMemory
	audit    *auditmemory.InMemoryStore
	service  *Service
	reader   *accountmodels.Account
	lastCopy *catalogmodels.Item
	shelf    *catalogmodels.Item
}

func TestLendingServiceSuite(t *testing.T) {
	suite.Run(t, new(LendingServiceSuite))
}

func (s *LendingServiceSuite) SetupTest() {
	s.accounts = accountstore.NewInMemory()
	s.catalog = catalogstore.NewInMemory()
	s.loans = store.NewInMemory()
	s.audit = auditmemory.NewInMemoryStore()
	s.service = New(s.loans, s.catalog, s.accounts,
		WithAuditPublisher(publisher.NewPublisher(s.audit)),
		WithMetrics(metrics.New(prometheus.NewRegistry())),
	)
	s.reader = s.addAccount("lector", "12345678-5")
	s.lastCopy = s.addItem("Rayuela", 1)
	s.shelf = s.addItem("Ficciones", 3)
}

func (s *LendingServiceSuite) addAccount(handle, rut string) *accountmodels.Account {
	acc, err := accountmodels.NewAccount(id.NewAccountID(), handle+"@example.com", "hash", "Ana", "Rojas",
		accountmodels.Profile{Role: id.RoleReader, NationalID: rut}, time.Now())
	s.Require().NoError(err)
	acc.Handle = handle
	s.Require().NoError(s.accounts.Create(context.Background(), acc))
	return acc
}

func (s *LendingServiceSuite) addItem(title string, copies int) *catalogmodels.Item {
	item, err := catalogmodels.NewItem(id.NewItemID(), title, "Autor", "Novela", copies, time.Now())
	s.Require().NoError(err)
	s.Require().NoError(s.catalog.Create(context.Background(), item))
	return item
}

func on(day int) context.Context {
	return requestcontext.WithTime(context.Background(), time.Date(2024, 1, day, 10, 0, 0, 0, time.UTC))
}

func (s *LendingServiceSuite) available(item *catalogmodels.Item) int {
	found, err := s.catalog.FindByID(context.Background(), item.ID)
	s.Require().NoError(err)
	return found.AvailableCopies
}

func (s *LendingServiceSuite) requireCode(err error, code dErrors.Code, msg string) {
	s.Require().Error(err)
	s.Require().True(dErrors.HasCode(err, code), "expected %s, got %v", code, err)
	if msg != "" {
		s.Equal(msg, dErrors.MessageOf(err))
	}
}

func (s *LendingServiceSuite) actions() []string {
	events, err := s.audit.ListByAccount(context.Background(), s.reader.ID)
	s.Require().NoError(err)
	out := make([]string, 0, len(events))
	for _, e := range events {
		out = append(out, e.Action)
	}
	return out
}

func (s *LendingServiceSuite) TestBorrow() {
	s.Run("default loan length", func() {
		loan, err := s.service.Borrow(on(1), s.reader.ID, s.shelf.ID, 0)
		s.Require().NoError(err)
		s.Equal(models.StatusActive, loan.Status())
		s.Equal(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), loan.BorrowedOn)
		s.Equal(time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), loan.DueOn)
		s.Equal(2, s.available(s.shelf))
		s.Contains(s.actions(), string(audit.EventLoanCreated))
	})

	s.Run("explicit loan length", func() {
		loan, err := s.service.Borrow(on(1), s.reader.ID, s.shelf.ID, 3)
		s.Require().NoError(err)
		s.Equal(time.Date(2024, 1, 4, 0, 0, 0, 0, time.UTC), loan.DueOn)
	})

	s.Run("no copies left is a capacity error", func() {
		_, err := s.service.Borrow(on(1), s.reader.ID, s.lastCopy.ID, 7)
		s.Require().NoError(err)

		_, err = s.service.Borrow(on(1), s.reader.ID, s.lastCopy.ID, 7)
		s.requireCode(err, dErrors.CodeCapacity, MsgNoCopies)
		s.Equal(0, s.available(s.lastCopy))
		s.Contains(s.actions(), string(audit.EventBorrowRejected))
	})

	s.Run("unknown item", func() {
		_, err := s.service.Borrow(on(1), s.reader.ID, id.NewItemID(), 7)
		s.requireCode(err, dErrors.CodeNotFound, MsgItemNotFound)
	})

	s.Run("unknown borrower", func() {
		_, err := s.service.Borrow(on(1), id.NewAccountID(), s.shelf.ID, 7)
		s.requireCode(err, dErrors.CodeNotFound, MsgBorrowerUnknown)
	})

	s.Run("inactive borrower", func() {
		blocked := s.addAccount("bloqueado", "11111111-1")
		blocked.Active = false
		s.Require().NoError(s.accounts.Update(context.Background(), blocked))

		_, err := s.service.Borrow(on(1), blocked.ID, s.shelf.ID, 7)
		s.requireCode(err, dErrors.CodeInvalidState, MsgBorrowerBlocked)
	})
}

func (s *LendingServiceSuite) TestBorrow_ConcurrentLastCopy() {
	other := s.addAccount("otro", "22222222-2")
	borrowers := []id.AccountID{s.reader.ID, other.ID}

	var wg sync.WaitGroup
	errs := make([]error, len(borrowers))
	for i, borrower := range borrowers {
		wg.Add(1)
		go func(i int, borrower id.AccountID) {
			defer wg.Done()
			_, errs[i] = s.service.Borrow(on(1), borrower, s.lastCopy.ID, 7)
		}(i, borrower)
	}
	wg.Wait()

	var ok, capacity int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case dErrors.HasCode(err, dErrors.CodeCapacity):
			capacity++
		default:
			s.Failf("unexpected error", "%v", err)
		}
	}
	s.Equal(1, ok)
	s.Equal(1, capacity)
	s.Equal(0, s.available(s.lastCopy))

	active, err := s.loans.CountActive(context.Background())
	s.Require().NoError(err)
	s.Equal(1, active)
}

func (s *LendingServiceSuite) TestReturn() {
	s.Run("late return fixes the fine once", func() {
		loan, err := s.service.Borrow(on(1), s.reader.ID, s.lastCopy.ID, 9)
		s.Require().NoError(err)
		s.Equal(time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC), loan.DueOn)

		returned, err := s.service.Return(on(15), loan.ID, nil)
		s.Require().NoError(err)
		s.Equal(models.StatusReturned, returned.Status())
		s.Equal(models.Money(5000), returned.Fine)
		s.Equal("5000.00", returned.Fine.String())
		s.Equal(1, s.available(s.lastCopy))
		s.Contains(s.actions(), string(audit.EventFineAssessed))

		_, err = s.service.Return(on(20), loan.ID, nil)
		s.requireCode(err, dErrors.CodeInvalidState, "")
		stored, err := s.loans.FindByID(context.Background(), loan.ID)
		s.Require().NoError(err)
		s.Equal(models.Money(5000), stored.Fine)
		s.Equal(1, s.available(s.lastCopy))
	})

	s.Run("on-time return has no fine", func() {
		s.audit.Clear()
		loan, err := s.service.Borrow(on(1), s.reader.ID, s.shelf.ID, 14)
		s.Require().NoError(err)

		returned, err := s.service.Return(on(15), loan.ID, &s.reader.ID)
		s.Require().NoError(err)
		s.Zero(returned.Fine)
		s.NotContains(s.actions(), string(audit.EventFineAssessed))
	})

	s.Run("someone else's loan is not found", func() {
		loan, err := s.service.Borrow(on(1), s.reader.ID, s.shelf.ID, 14)
		s.Require().NoError(err)
		stranger := id.NewAccountID()

		_, err = s.service.Return(on(2), loan.ID, &stranger)
		s.requireCode(err, dErrors.CodeNotFound, MsgLoanNotFound)
	})

	s.Run("unknown loan", func() {
		_, err := s.service.Return(on(2), id.NewLoanID(), nil)
		s.requireCode(err, dErrors.CodeNotFound, MsgLoanNotFound)
	})
}

func (s *LendingServiceSuite) TestReturn_Concurrent() {
	loan, err := s.service.Borrow(on(1), s.reader.ID, s.lastCopy.ID, 2)
	s.Require().NoError(err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.service.Return(on(5), loan.ID, nil)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidState), "unexpected %v", err)
	}
	s.Equal(1, ok)
	s.Equal(1, s.available(s.lastCopy))
}

func (s *LendingServiceSuite) TestAccountViews() {
	overdue, err := s.service.Borrow(on(1), s.reader.ID, s.lastCopy.ID, 2)
	s.Require().NoError(err)
	current, err := s.service.Borrow(on(1), s.reader.ID, s.shelf.ID, 10)
	s.Require().NoError(err)
	settled, err := s.service.Borrow(on(1), s.reader.ID, s.shelf.ID, 1)
	s.Require().NoError(err)
	_, err = s.service.Return(on(4), settled.ID, nil)
	s.Require().NoError(err)

	asOf := time.Date(2024, 1, 6, 18, 0, 0, 0, time.UTC)

	s.Run("active loans soonest due first", func() {
		active, err := s.service.ActiveLoans(on(6), s.reader.ID, asOf)
		s.Require().NoError(err)
		s.Require().Len(active, 2)
		s.Equal(overdue.ID, active[0].Loan.ID)
		s.Equal("Rayuela", active[0].ItemTitle)
		s.Equal(-3, active[0].DaysRemaining)
		s.True(active[0].Overdue)
		s.Equal(models.Money(3000), active[0].FineEstimate)
		s.Equal(current.ID, active[1].Loan.ID)
		s.Equal(5, active[1].DaysRemaining)
		s.Zero(active[1].FineEstimate)
	})

	s.Run("history", func() {
		history, err := s.service.History(on(6), s.reader.ID, 0)
		s.Require().NoError(err)
		s.Require().Len(history, 1)
		s.Equal(settled.ID, history[0].Loan.ID)
		s.Equal(models.StatusReturned, history[0].Status)
		s.Equal(models.Money(2000), history[0].FineEstimate)
	})

	s.Run("fines", func() {
		summary, err := s.service.Fines(on(6), s.reader.ID, asOf)
		s.Require().NoError(err)
		s.Len(summary.Settled, 1)
		s.Len(summary.Accruing, 1)
		s.Equal(models.Money(2000), summary.Fixed)
		s.Equal(models.Money(3000), summary.Estimated)
		s.Equal(models.Money(5000), summary.Total)
	})

	s.Run("staff listing carries the borrower", func() {
		all, err := s.service.ListAllActive(on(6), asOf)
		s.Require().NoError(err)
		s.Require().Len(all, 2)
		s.Equal("lector", all[0].Borrower)
	})
}

func TestService_RateAndLocation(t *testing.T) {
	loc := time.FixedZone("CLT", -3*60*60)
	loans := store.NewInMemory()
	catalog := catalogstore.NewInMemory()
	accounts := accountstore.NewInMemory()
	svc := New(loans, catalog, accounts, WithFinePerDay(250), WithDefaultLoanDays(7), WithLocation(loc))

	acc, err := accountmodels.NewAccount(id.NewAccountID(), "ana@example.com", "hash", "Ana", "Rojas",
		accountmodels.Profile{Role: id.RoleReader, NationalID: "123456785"}, time.Now())
	require.NoError(t, err)
	acc.Handle = "ana"
	require.NoError(t, accounts.Create(context.Background(), acc))
	item, err := catalogmodels.NewItem(id.NewItemID(), "Rayuela", "Cortázar", "Novela", 1, time.Now())
	require.NoError(t, err)
	require.NoError(t, catalog.Create(context.Background(), item))

	// 01:00 UTC on the 2nd is still the 1st at UTC-3.
	ctx := requestcontext.WithTime(context.Background(), time.Date(2024, 1, 2, 1, 0, 0, 0, time.UTC))
	loan, err := svc.Borrow(ctx, acc.ID, item.ID, 0)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), loan.BorrowedOn)
	assert.Equal(t, time.Date(2024, 1, 8, 0, 0, 0, 0, time.UTC), loan.DueOn)

	returned, err := svc.Return(requestcontext.WithTime(context.Background(), time.Date(2024, 1, 12, 12, 0, 0, 0, time.UTC)), loan.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.Money(1000), returned.Fine)
	assert.Equal(t, models.Money(250), svc.FinePerDay())
}

func TestService_InfrastructureErrors(t *testing.T) {
	ctrl := gomock.NewController(t)
	mockStore := mocks.NewMockStore(ctrl)
	mockInventory := mocks.NewMockInventory(ctrl)
	mockAccounts := mocks.NewMockAccountDirectory(ctrl)
	svc := New(mockStore, mockInventory, mockAccounts)
	ctx := context.Background()
	dbDown := errors.New("connection refused")

	borrower := &accountmodels.Account{ID: id.NewAccountID(), Active: true}
	itemID := id.NewItemID()

	t.Run("borrower lookup failure is internal", func(t *testing.T) {
		mockAccounts.EXPECT().FindByIDs(gomock.Any(), []id.AccountID{borrower.ID}).Return(nil, dbDown)

		_, err := svc.Borrow(ctx, borrower.ID, itemID, 7)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
		assert.ErrorIs(t, err, dbDown)
	})

	t.Run("loan insert failure is internal", func(t *testing.T) {
		mockAccounts.EXPECT().FindByIDs(gomock.Any(), gomock.Any()).
			Return(map[id.AccountID]*accountmodels.Account{borrower.ID: borrower}, nil)
		gomock.InOrder(
			mockInventory.EXPECT().ReserveCopy(gomock.Any(), itemID).Return(nil),
			mockStore.EXPECT().Create(gomock.Any(), gomock.Any()).Return(dbDown),
			mockInventory.EXPECT().ReleaseCopy(gomock.Any(), itemID).Return(nil),
		)

		_, err := svc.Borrow(ctx, borrower.ID, itemID, 7)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("release failure on return is internal", func(t *testing.T) {
		loan, err := models.NewLoan(id.NewLoanID(), borrower.ID, itemID, time.Now(), 7)
		require.NoError(t, err)
		mockStore.EXPECT().Execute(gomock.Any(), loan.ID, gomock.Any(), gomock.Any()).Return(loan, nil)
		mockInventory.EXPECT().ReleaseCopy(gomock.Any(), itemID).Return(dbDown)

		_, err = svc.Return(ctx, loan.ID, nil)
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})

	t.Run("full shelf on return still closes the loan", func(t *testing.T) {
		var buf bytes.Buffer
		logged := New(mockStore, mockInventory, mockAccounts, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))
		loan, err := models.NewLoan(id.NewLoanID(), borrower.ID, itemID, time.Now(), 7)
		require.NoError(t, err)
		mockStore.EXPECT().Execute(gomock.Any(), loan.ID, gomock.Any(), gomock.Any()).Return(loan, nil)
		mockInventory.EXPECT().ReleaseCopy(gomock.Any(), itemID).Return(catalogstore.ErrAllCopiesIn)

		returned, err := logged.Return(ctx, loan.ID, nil)
		require.NoError(t, err)
		assert.Equal(t, loan.ID, returned.ID)
		assert.Contains(t, buf.String(), "returned copy not put back on the shelf")
	})

	t.Run("listing failure is internal", func(t *testing.T) {
		mockStore.EXPECT().ListActiveByAccount(gomock.Any(), borrower.ID).Return(nil, dbDown)

		_, err := svc.ActiveLoans(ctx, borrower.ID, time.Now())
		assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))
	})
}

func TestShardedTx_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := NewShardedTx().RunInTx(ctx, "key", func(context.Context) error {
		called = true
		return nil
	})
	assert.True(t, dErrors.HasCode(err, dErrors.CodeTimeout))
	assert.False(t, called)
}

func (s *LendingServiceSuite) TestBorrow_LoanTerm() {
	s.Run("out of range terms are rejected", func() {
		for _, days := range []int{-1, defaultMaxLoanDays + 1, 36500} {
			_, err := s.service.Borrow(on(1), s.reader.ID, s.shelf.ID, days)
			s.requireCode(err, dErrors.CodeValidation, "")
		}
		s.Equal(3, s.available(s.shelf))
	})

	s.Run("maximum term is accepted", func() {
		loan, err := s.service.Borrow(on(1), s.reader.ID, s.shelf.ID, defaultMaxLoanDays)
		s.Require().NoError(err)
		s.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), loan.DueOn)
	})
}

func TestService_MaxLoanDaysNeverBelowDefault(t *testing.T) {
	svc := New(store.NewInMemory(), catalogstore.NewInMemory(), accountstore.NewInMemory(),
		WithDefaultLoanDays(30), WithMaxLoanDays(10))
	assert.Equal(t, 30, svc.maxLoanDays)
}

// failingLoans rejects every insert so the borrow has to be unwound.
type failingLoans struct {
	*store.InMemory
}

func (failingLoans) Create(context.Context, *models.Loan) error {
	return errors.New("disk full")
}

func TestService_FailedBorrowGivesCopyBack(t *testing.T) {
	accounts := accountstore.NewInMemory()
	catalog := catalogstore.NewInMemory()
	svc := New(failingLoans{store.NewInMemory()}, catalog, accounts)

	acc, err := accountmodels.NewAccount(id.NewAccountID(), "ana@example.com", "hash", "Ana", "Rojas",
		accountmodels.Profile{Role: id.RoleReader, NationalID: "123456785"}, time.Now())
	require.NoError(t, err)
	require.NoError(t, accounts.Create(context.Background(), acc))
	item, err := catalogmodels.NewItem(id.NewItemID(), "Rayuela", "Cortázar", "Novela", 1, time.Now())
	require.NoError(t, err)
	require.NoError(t, catalog.Create(context.Background(), item))

	_, err = svc.Borrow(context.Background(), acc.ID, item.ID, 7)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeInternal))

	found, err := catalog.FindByID(context.Background(), item.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, found.AvailableCopies)
}

func TestShardedTx_UnwindsOnFailure(t *testing.T) {
	var steps []string
	err := NewShardedTx().RunInTx(context.Background(), "key", func(ctx context.Context) error {
		onRollback(ctx, func(context.Context) { steps = append(steps, "first") })
		onRollback(ctx, func(context.Context) { steps = append(steps, "second") })
		return errors.New("boom")
	})
	require.Error(t, err)
	assert.Equal(t, []string{"second", "first"}, steps)

	steps = nil
	require.NoError(t, NewShardedTx().RunInTx(context.Background(), "key", func(ctx context.Context) error {
		onRollback(ctx, func(context.Context) { steps = append(steps, "never") })
		return nil
	}))
	assert.Empty(t, steps)
}
