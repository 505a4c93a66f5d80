// Package library assembles the guarded operations offered to callers. Each
// operation is wrapped exactly once with the authorization gate here; the
// services underneath trust that the caller was checked.
package library

import (
	"context"
	"time"

	accountmodels "biblioteca/internal/accounts/models"
	"biblioteca/internal/authz"
	catalogmodels "biblioteca/internal/catalog/models"
	lendingmodels "biblioteca/internal/lending/models"
	"biblioteca/internal/reporting"
	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
	audit "biblioteca/pkg/platform/audit"
	"biblioteca/pkg/requestcontext"
)

// Role groups used by the guards.
var (
	AnyRole = []id.Role{id.RoleReader, id.RoleLibrarian, id.RoleAdmin}
	Staff   = []id.Role{id.RoleLibrarian, id.RoleAdmin}
	Admins  = []id.Role{id.RoleAdmin}
)

type AccountService interface {
	Register(ctx context.Context, req *accountmodels.RegisterRequest) (*accountmodels.Account, error)
	Authenticate(ctx context.Context, login, password string) (*accountmodels.Account, error)
	CreateLibrarian(ctx context.Context, actor id.AccountID, req *accountmodels.RegisterRequest) (*accountmodels.Account, error)
	Get(ctx context.Context, accountID id.AccountID) (*accountmodels.Account, error)
	List(ctx context.Context) ([]*accountmodels.Account, error)
	Promote(ctx context.Context, actor, target id.AccountID, rawRole string) (*accountmodels.Account, error)
	ToggleActive(ctx context.Context, actor, target id.AccountID) (*accountmodels.Account, error)
	UpdateDetails(ctx context.Context, caller id.AccountID, req *accountmodels.UpdateDetailsRequest) (*accountmodels.Account, error)
	ChangeHandle(ctx context.Context, caller id.AccountID, req *accountmodels.ChangeHandleRequest) (*accountmodels.Account, error)
	ChangePassword(ctx context.Context, caller id.AccountID, req *accountmodels.ChangePasswordRequest) error
}

type CatalogService interface {
	CreateItem(ctx context.Context, actor id.AccountID, req *catalogmodels.CreateItemRequest) (*catalogmodels.Item, error)
	ListItems(ctx context.Context, availableOnly bool) ([]*catalogmodels.Item, error)
	GetItem(ctx context.Context, itemID id.ItemID) (*catalogmodels.Item, error)
}

type LendingService interface {
	Borrow(ctx context.Context, accountID id.AccountID, itemID id.ItemID, dueInDays int) (*lendingmodels.Loan, error)
	Return(ctx context.Context, loanID id.LoanID, owner *id.AccountID) (*lendingmodels.Loan, error)
	ActiveLoans(ctx context.Context, accountID id.AccountID, asOf time.Time) ([]lendingmodels.LoanDetails, error)
	History(ctx context.Context, accountID id.AccountID, limit int) ([]lendingmodels.LoanDetails, error)
	Fines(ctx context.Context, accountID id.AccountID, asOf time.Time) (*lendingmodels.FineSummary, error)
	ListAllActive(ctx context.Context, asOf time.Time) ([]lendingmodels.LoanDetails, error)
	Today(ctx context.Context) time.Time
}

type ReportingService interface {
	Dashboard(ctx context.Context, asOf time.Time) (*reporting.Dashboard, error)
}

// AuditLog reads back recorded audit events.
type AuditLog interface {
	List(ctx context.Context, accountID id.AccountID) ([]audit.Event, error)
	Recent(ctx context.Context, limit int) ([]audit.Event, error)
}

// DefaultAuditLimit is how many events AuditLog returns without a limit.
const DefaultAuditLimit = 50

// Empty is the request of operations that take no input.
type Empty struct{}

type LoginInput struct {
	Login    string
	Password string
}

type PromoteInput struct {
	Target id.AccountID
	Role   string
}

// BorrowInput borrows ItemID. Staff may set Borrower to lend on behalf of
// another account; for everyone else it must be nil or the caller. Only
// staff may choose DueInDays; readers always get the default term.
type BorrowInput struct {
	ItemID    id.ItemID
	Borrower  *id.AccountID
	DueInDays int
}

// AccountScope selects whose loans to show. A nil Account is the caller.
type AccountScope struct {
	Account *id.AccountID
	Limit   int
}

// AuditQuery selects audit events: one account's trail, oldest first, or
// the latest Limit events across all accounts.
type AuditQuery struct {
	Account *id.AccountID
	Limit   int
}

// Library is the set of operations exposed to transports and tools.
type Library struct {
	Register authz.Operation[*accountmodels.RegisterRequest, *accountmodels.Account]
	Login    authz.Operation[LoginInput, *accountmodels.Account]
	Catalog  authz.Operation[bool, []*catalogmodels.Item]
	Item     authz.Operation[id.ItemID, *catalogmodels.Item]

	Me             authz.Operation[Empty, *accountmodels.Account]
	UpdateDetails  authz.Operation[*accountmodels.UpdateDetailsRequest, *accountmodels.Account]
	ChangeHandle   authz.Operation[*accountmodels.ChangeHandleRequest, *accountmodels.Account]
	ChangePassword authz.Operation[*accountmodels.ChangePasswordRequest, Empty]

	Borrow      authz.Operation[BorrowInput, *lendingmodels.Loan]
	Return      authz.Operation[id.LoanID, *lendingmodels.Loan]
	ActiveLoans authz.Operation[AccountScope, []lendingmodels.LoanDetails]
	History     authz.Operation[AccountScope, []lendingmodels.LoanDetails]
	Fines       authz.Operation[AccountScope, *lendingmodels.FineSummary]

	CreateItem     authz.Operation[*catalogmodels.CreateItemRequest, *catalogmodels.Item]
	AllActiveLoans authz.Operation[Empty, []lendingmodels.LoanDetails]
	Dashboard      authz.Operation[Empty, *reporting.Dashboard]

	ListAccounts    authz.Operation[Empty, []*accountmodels.Account]
	CreateLibrarian authz.Operation[*accountmodels.RegisterRequest, *accountmodels.Account]
	Promote         authz.Operation[PromoteInput, *accountmodels.Account]
	ToggleActive    authz.Operation[id.AccountID, *accountmodels.Account]
	AuditLog        authz.Operation[AuditQuery, []audit.Event]
}

// New wires every operation to its guard.
func New(gate *authz.Gate, accounts AccountService, catalog CatalogService, lending LendingService, reports ReportingService, audits AuditLog) *Library {
	l := &Library{
		Register: func(ctx context.Context, _ authz.Caller, req *accountmodels.RegisterRequest) (*accountmodels.Account, error) {
			return accounts.Register(ctx, req)
		},
		Login: func(ctx context.Context, _ authz.Caller, in LoginInput) (*accountmodels.Account, error) {
			return accounts.Authenticate(ctx, in.Login, in.Password)
		},
		Catalog: func(ctx context.Context, _ authz.Caller, availableOnly bool) ([]*catalogmodels.Item, error) {
			return catalog.ListItems(ctx, availableOnly)
		},
		Item: func(ctx context.Context, _ authz.Caller, itemID id.ItemID) (*catalogmodels.Item, error) {
			return catalog.GetItem(ctx, itemID)
		},
	}

	l.Me = authz.Authenticated(gate, func(ctx context.Context, caller authz.Caller, _ Empty) (*accountmodels.Account, error) {
		return accounts.Get(ctx, caller.ID())
	})
	l.UpdateDetails = authz.Authenticated(gate, func(ctx context.Context, caller authz.Caller, req *accountmodels.UpdateDetailsRequest) (*accountmodels.Account, error) {
		return accounts.UpdateDetails(ctx, caller.ID(), req)
	})
	l.ChangeHandle = authz.Authenticated(gate, func(ctx context.Context, caller authz.Caller, req *accountmodels.ChangeHandleRequest) (*accountmodels.Account, error) {
		return accounts.ChangeHandle(ctx, caller.ID(), req)
	})
	l.ChangePassword = authz.Authenticated(gate, func(ctx context.Context, caller authz.Caller, req *accountmodels.ChangePasswordRequest) (Empty, error) {
		return Empty{}, accounts.ChangePassword(ctx, caller.ID(), req)
	})

	l.Borrow = authz.Authorize(gate, func(ctx context.Context, caller authz.Caller, in BorrowInput) (*lendingmodels.Loan, error) {
		borrower, err := onBehalfOf(ctx, gate, caller, in.Borrower)
		if err != nil {
			return nil, err
		}
		dueInDays := in.DueInDays
		if !gate.Permits(caller, Staff...) {
			dueInDays = 0
		}
		return lending.Borrow(ctx, borrower, in.ItemID, dueInDays)
	}, AnyRole...)
	l.Return = authz.Authorize(gate, func(ctx context.Context, caller authz.Caller, loanID id.LoanID) (*lendingmodels.Loan, error) {
		if gate.Permits(caller, Staff...) {
			return lending.Return(ctx, loanID, nil)
		}
		owner := caller.ID()
		return lending.Return(ctx, loanID, &owner)
	}, AnyRole...)
	l.ActiveLoans = authz.Authenticated(gate, func(ctx context.Context, caller authz.Caller, scope AccountScope) ([]lendingmodels.LoanDetails, error) {
		accountID, err := onBehalfOf(ctx, gate, caller, scope.Account)
		if err != nil {
			return nil, err
		}
		return lending.ActiveLoans(ctx, accountID, lending.Today(ctx))
	})
	l.History = authz.Authenticated(gate, func(ctx context.Context, caller authz.Caller, scope AccountScope) ([]lendingmodels.LoanDetails, error) {
		accountID, err := onBehalfOf(ctx, gate, caller, scope.Account)
		if err != nil {
			return nil, err
		}
		return lending.History(ctx, accountID, scope.Limit)
	})
	l.Fines = authz.Authenticated(gate, func(ctx context.Context, caller authz.Caller, scope AccountScope) (*lendingmodels.FineSummary, error) {
		accountID, err := onBehalfOf(ctx, gate, caller, scope.Account)
		if err != nil {
			return nil, err
		}
		return lending.Fines(ctx, accountID, lending.Today(ctx))
	})

	l.CreateItem = authz.Authorize(gate, func(ctx context.Context, caller authz.Caller, req *catalogmodels.CreateItemRequest) (*catalogmodels.Item, error) {
		return catalog.CreateItem(ctx, caller.ID(), req)
	}, Staff...)
	l.AllActiveLoans = authz.Authorize(gate, func(ctx context.Context, _ authz.Caller, _ Empty) ([]lendingmodels.LoanDetails, error) {
		return lending.ListAllActive(ctx, lending.Today(ctx))
	}, Staff...)
	l.Dashboard = authz.Authorize(gate, func(ctx context.Context, _ authz.Caller, _ Empty) (*reporting.Dashboard, error) {
		return reports.Dashboard(ctx, requestcontext.Now(ctx))
	}, Staff...)

	l.ListAccounts = authz.Authorize(gate, func(ctx context.Context, _ authz.Caller, _ Empty) ([]*accountmodels.Account, error) {
		return accounts.List(ctx)
	}, Admins...)
	l.CreateLibrarian = authz.Authorize(gate, func(ctx context.Context, caller authz.Caller, req *accountmodels.RegisterRequest) (*accountmodels.Account, error) {
		return accounts.CreateLibrarian(ctx, caller.ID(), req)
	}, Admins...)
	l.Promote = authz.Authorize(gate, func(ctx context.Context, caller authz.Caller, in PromoteInput) (*accountmodels.Account, error) {
		return accounts.Promote(ctx, caller.ID(), in.Target, in.Role)
	}, Admins...)
	l.ToggleActive = authz.Authorize(gate, func(ctx context.Context, caller authz.Caller, target id.AccountID) (*accountmodels.Account, error) {
		return accounts.ToggleActive(ctx, caller.ID(), target)
	}, Admins...)
	l.AuditLog = authz.Authorize(gate, func(ctx context.Context, _ authz.Caller, q AuditQuery) ([]audit.Event, error) {
		var (
			events []audit.Event
			err    error
		)
		if q.Account != nil && !q.Account.IsNil() {
			events, err = audits.List(ctx, *q.Account)
		} else {
			limit := q.Limit
			if limit <= 0 {
				limit = DefaultAuditLimit
			}
			events, err = audits.Recent(ctx, limit)
		}
		if err != nil {
			return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to read audit log")
		}
		if events == nil {
			events = []audit.Event{}
		}
		return events, nil
	}, Admins...)

	return l
}

// onBehalfOf resolves the account an operation acts on. Acting on someone
// else's account requires a staff role.
func onBehalfOf(ctx context.Context, gate *authz.Gate, caller authz.Caller, target *id.AccountID) (id.AccountID, error) {
	if target == nil || target.IsNil() || *target == caller.ID() {
		return caller.ID(), nil
	}
	if err := gate.Check(ctx, caller, Staff...); err != nil {
		return id.AccountID{}, err
	}
	return *target, nil
}
