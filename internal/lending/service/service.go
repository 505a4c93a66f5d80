package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	accountmodels "biblioteca/internal/accounts/models"
	catalogmodels "biblioteca/internal/catalog/models"
	"biblioteca/internal/lending/metrics"
	"biblioteca/internal/lending/models"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/platform/sentinel"
	"biblioteca/pkg/requestcontext"
)

const (
	// DefaultHistoryLimit is how many returned loans History shows by default.
	DefaultHistoryLimit = 5

	defaultFinePerDay  = models.Money(1000)
	defaultLoanDays    = 14
	defaultMaxLoanDays = 60
)

const (
	MsgNoCopies        = "No hay copias disponibles de este libro"
	MsgLoanNotFound    = "Préstamo no encontrado"
	MsgItemNotFound    = "Libro no encontrado"
	MsgBorrowerUnknown = "Usuario no encontrado"
	MsgBorrowerBlocked = "La cuenta del usuario está desactivada"
	MsgLoanTerm        = "El plazo del préstamo debe estar entre 1 y %d días"
)

type Store interface {
	Create(ctx context.Context, loan *models.Loan) error
	FindByID(ctx context.Context, loanID id.LoanID) (*models.Loan, error)
	Execute(ctx context.Context, loanID id.LoanID, validate func(*models.Loan) error, mutate func(*models.Loan)) (*models.Loan, error)
	ListActiveByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Loan, error)
	ListReturnedByAccount(ctx context.Context, accountID id.AccountID, limit int) ([]*models.Loan, error)
	ListFinedByAccount(ctx context.Context, accountID id.AccountID) ([]*models.Loan, error)
	ListActive(ctx context.Context) ([]*models.Loan, error)
}

// Inventory is the catalog's copy bookkeeping.
type Inventory interface {
	ReserveCopy(ctx context.Context, itemID id.ItemID) error
	ReleaseCopy(ctx context.Context, itemID id.ItemID) error
	FindByIDs(ctx context.Context, ids []id.ItemID) (map[id.ItemID]*catalogmodels.Item, error)
}

// AccountDirectory resolves borrowers.
type AccountDirectory interface {
	FindByIDs(ctx context.Context, ids []id.AccountID) (map[id.AccountID]*accountmodels.Account, error)
}

type AuditPublisher interface {
	Emit(ctx context.Context, event audit.Event) error
}

// Service runs the loan lifecycle: borrow, return and the fine figures
// derived from it.
type Service struct {
	store          Store
	inventory      Inventory
	accounts       AccountDirectory
	tx             LedgerTx
	logger         *slog.Logger
	auditPublisher AuditPublisher
	metrics        *metrics.Metrics
	tracer         trace.Tracer
	finePerDay     models.Money
	loanDays       int
	maxLoanDays    int
	location       *time.Location
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func WithAuditPublisher(publisher AuditPublisher) Option {
	return func(s *Service) {
		s.auditPublisher = publisher
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithLedgerTx replaces the in-memory sharded transaction, e.g. with a
// database transaction.
func WithLedgerTx(tx LedgerTx) Option {
	return func(s *Service) {
		s.tx = tx
	}
}

// WithFinePerDay sets the late fee charged per day. Non-positive values are ignored.
func WithFinePerDay(amount models.Money) Option {
	return func(s *Service) {
		if amount > 0 {
			s.finePerDay = amount
		}
	}
}

// WithDefaultLoanDays sets the loan length used when a borrow does not ask
// for one. Non-positive values are ignored.
func WithDefaultLoanDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.loanDays = days
		}
	}
}

// WithMaxLoanDays caps the loan length a borrow may ask for. Non-positive
// values are ignored; the cap never drops below the default length.
func WithMaxLoanDays(days int) Option {
	return func(s *Service) {
		if days > 0 {
			s.maxLoanDays = days
		}
	}
}

// WithLocation sets the time zone whose calendar decides what "today" is.
func WithLocation(loc *time.Location) Option {
	return func(s *Service) {
		if loc != nil {
			s.location = loc
		}
	}
}

func New(store Store, inventory Inventory, accounts AccountDirectory, opts ...Option) *Service {
	s := &Service{
		store:       store,
		inventory:   inventory,
		accounts:    accounts,
		tx:          NewShardedTx(),
		tracer:      otel.Tracer("biblioteca/lending"),
		finePerDay:  defaultFinePerDay,
		loanDays:    defaultLoanDays,
		maxLoanDays: defaultMaxLoanDays,
		location:    time.UTC,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.maxLoanDays = max(s.maxLoanDays, s.loanDays)
	return s
}

// FinePerDay is the rate currently charged for each late day.
func (s *Service) FinePerDay() models.Money {
	return s.finePerDay
}

// Borrow lends one copy of itemID to accountID. A zero dueInDays uses the
// configured default loan length; otherwise it must be within 1 and the
// configured maximum.
func (s *Service) Borrow(ctx context.Context, accountID id.AccountID, itemID id.ItemID, dueInDays int) (*models.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "lending.Borrow",
		trace.WithAttributes(attribute.String("item_id", itemID.String())),
	)
	defer span.End()
	start := time.Now()

	if dueInDays == 0 {
		dueInDays = s.loanDays
	}
	if dueInDays < 1 || dueInDays > s.maxLoanDays {
		err := dErrors.New(dErrors.CodeValidation, fmt.Sprintf(MsgLoanTerm, s.maxLoanDays))
		recordSpanError(span, err)
		return nil, err
	}
	if err := s.checkBorrower(ctx, accountID); err != nil {
		recordSpanError(span, err)
		return nil, err
	}
	loan, err := models.NewLoan(id.NewLoanID(), accountID, itemID, s.today(ctx), dueInDays)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to build loan")
	}

	err = s.tx.RunInTx(ctx, itemID.String(), func(ctx context.Context) error {
		if err := s.inventory.ReserveCopy(ctx, itemID); err != nil {
			return err
		}
		onRollback(ctx, func(ctx context.Context) {
			if err := s.inventory.ReleaseCopy(ctx, itemID); err != nil {
				s.inconsistency(ctx, "reserved copy not released after failed borrow", "item_id", itemID.String(), "error", err)
			}
		})
		return s.store.Create(ctx, loan)
	})
	if s.metrics != nil {
		s.metrics.ObserveLedgerTx("borrow", start)
	}
	if err != nil {
		err = s.wrapBorrowErr(ctx, accountID, itemID, err)
		recordSpanError(span, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementLoansCreated()
	}
	s.logAudit(ctx, audit.EventLoanCreated, loan,
		"due_on", loan.DueOn.Format(time.DateOnly),
	)
	return loan, nil
}

// Return closes an active loan on today's date and fixes its fine. When
// owner is set the loan must belong to that account; a loan owned by
// someone else is reported as not found.
func (s *Service) Return(ctx context.Context, loanID id.LoanID, owner *id.AccountID) (*models.Loan, error) {
	ctx, span := s.tracer.Start(ctx, "lending.Return",
		trace.WithAttributes(attribute.String("loan_id", loanID.String())),
	)
	defer span.End()
	start := time.Now()

	today := s.today(ctx)
	finePerDay := s.finePerDay
	var returned *models.Loan
	err := s.tx.RunInTx(ctx, loanID.String(), func(ctx context.Context) error {
		loan, err := s.store.Execute(ctx, loanID,
			func(l *models.Loan) error {
				if owner != nil && l.AccountID != *owner {
					return sentinel.ErrNotFound
				}
				return l.CanReturn()
			},
			func(l *models.Loan) {
				l.ApplyReturn(today, finePerDay)
			},
		)
		if err != nil {
			return err
		}
		if err := s.inventory.ReleaseCopy(ctx, loan.ItemID); err != nil {
			// The loan is closed either way; a shelf count that is already
			// full or an item that is gone only needs a look from staff.
			if !errors.Is(err, sentinel.ErrInvalidState) && !errors.Is(err, sentinel.ErrNotFound) {
				return err
			}
			s.inconsistency(ctx, "returned copy not put back on the shelf",
				"loan_id", loan.ID.String(), "item_id", loan.ItemID.String(), "error", err)
		}
		returned = loan
		return nil
	})
	if s.metrics != nil {
		s.metrics.ObserveLedgerTx("return", start)
	}
	if err != nil {
		err = wrapReturnErr(err)
		recordSpanError(span, err)
		return nil, err
	}

	if s.metrics != nil {
		s.metrics.IncrementReturned(int64(returned.Fine))
	}
	s.logAudit(ctx, audit.EventLoanReturned, returned,
		"returned_on", returned.ReturnedOn.Format(time.DateOnly),
	)
	if returned.Fine > 0 {
		s.logAudit(ctx, audit.EventFineAssessed, returned,
			"fine", returned.Fine.String(),
			"reason", "late_return",
		)
	}
	return returned, nil
}

// ActiveLoans lists the account's open loans, soonest due first, with the
// figures as of asOf.
func (s *Service) ActiveLoans(ctx context.Context, accountID id.AccountID, asOf time.Time) ([]models.LoanDetails, error) {
	loans, err := s.store.ListActiveByAccount(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active loans")
	}
	return s.describe(ctx, loans, asOf, false)
}

// History lists the account's most recently returned loans. A non-positive
// limit shows DefaultHistoryLimit loans.
func (s *Service) History(ctx context.Context, accountID id.AccountID, limit int) ([]models.LoanDetails, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	loans, err := s.store.ListReturnedByAccount(ctx, accountID, limit)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list loan history")
	}
	return s.describe(ctx, loans, s.today(ctx), false)
}

// Fines sums what the account owes as of asOf: fines already fixed on
// returned loans plus estimates for overdue active loans at today's rate.
func (s *Service) Fines(ctx context.Context, accountID id.AccountID, asOf time.Time) (*models.FineSummary, error) {
	loans, err := s.store.ListFinedByAccount(ctx, accountID)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list fines")
	}
	details, err := s.describe(ctx, loans, asOf, false)
	if err != nil {
		return nil, err
	}
	summary := &models.FineSummary{
		Settled:  []models.LoanDetails{},
		Accruing: []models.LoanDetails{},
	}
	for _, d := range details {
		switch {
		case !d.Loan.IsActive() && d.Loan.Fine > 0:
			summary.Settled = append(summary.Settled, d)
			summary.Fixed += d.Loan.Fine
		case d.Overdue:
			summary.Accruing = append(summary.Accruing, d)
			summary.Estimated += d.FineEstimate
		}
	}
	summary.Total = summary.Fixed + summary.Estimated
	return summary, nil
}

// ListAllActive lists every open loan with its borrower, for staff.
func (s *Service) ListAllActive(ctx context.Context, asOf time.Time) ([]models.LoanDetails, error) {
	loans, err := s.store.ListActive(ctx)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to list active loans")
	}
	return s.describe(ctx, loans, asOf, true)
}

// Today is the current calendar date in the library's time zone.
func (s *Service) Today(ctx context.Context) time.Time {
	return s.today(ctx)
}

func (s *Service) today(ctx context.Context) time.Time {
	return models.DateOf(requestcontext.Now(ctx).In(s.location))
}

func (s *Service) describe(ctx context.Context, loans []*models.Loan, asOf time.Time, withBorrower bool) ([]models.LoanDetails, error) {
	out := make([]models.LoanDetails, 0, len(loans))
	if len(loans) == 0 {
		return out, nil
	}
	asOf = models.DateOf(asOf.In(s.location))

	itemIDs := make([]id.ItemID, 0, len(loans))
	accountIDs := make([]id.AccountID, 0, len(loans))
	for _, l := range loans {
		itemIDs = append(itemIDs, l.ItemID)
		accountIDs = append(accountIDs, l.AccountID)
	}
	items, err := s.inventory.FindByIDs(ctx, itemIDs)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load items")
	}
	var borrowers map[id.AccountID]*accountmodels.Account
	if withBorrower {
		borrowers, err = s.accounts.FindByIDs(ctx, accountIDs)
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to load borrowers")
		}
	}

	for _, l := range loans {
		d := models.LoanDetails{
			Loan:          l,
			Status:        l.Status(),
			DaysRemaining: models.DaysRemaining(l, asOf),
			FineEstimate:  models.OverdueFineEstimate(l, asOf, s.finePerDay),
			Overdue:       l.IsOverdue(asOf),
		}
		if item, ok := items[l.ItemID]; ok {
			d.ItemTitle = item.Title
		}
		if account, ok := borrowers[l.AccountID]; ok {
			d.Borrower = account.Handle
		}
		out = append(out, d)
	}
	return out, nil
}

// inconsistency logs copy bookkeeping that drifted from the loan records.
func (s *Service) inconsistency(ctx context.Context, msg string, args ...any) {
	if s.metrics != nil {
		s.metrics.IncrementInconsistency()
	}
	if s.logger != nil {
		s.logger.ErrorContext(ctx, msg, args...)
	}
}

func (s *Service) checkBorrower(ctx context.Context, accountID id.AccountID) error {
	found, err := s.accounts.FindByIDs(ctx, []id.AccountID{accountID})
	if err != nil {
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to load borrower")
	}
	account, ok := found[accountID]
	if !ok {
		return dErrors.New(dErrors.CodeNotFound, MsgBorrowerUnknown)
	}
	if !account.Active {
		return dErrors.New(dErrors.CodeInvalidState, MsgBorrowerBlocked)
	}
	return nil
}

func (s *Service) wrapBorrowErr(ctx context.Context, accountID id.AccountID, itemID id.ItemID, err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrExhausted):
		if s.metrics != nil {
			s.metrics.IncrementCapacityRejection()
		}
		s.logAudit(ctx, audit.EventBorrowRejected, &models.Loan{AccountID: accountID, ItemID: itemID},
			"reason", "no_copies",
		)
		return dErrors.New(dErrors.CodeCapacity, MsgNoCopies)
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, MsgItemNotFound)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to borrow item")
	}
}

func wrapReturnErr(err error) error {
	var de *dErrors.Error
	switch {
	case errors.As(err, &de):
		return err
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, MsgLoanNotFound)
	default:
		return dErrors.Wrap(err, dErrors.CodeInternal, "failed to return loan")
	}
}

func recordSpanError(span trace.Span, err error) {
	if dErrors.IsInfrastructure(err) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}
