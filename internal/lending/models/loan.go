package models

import (
	"time"

	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
)

type Status string

const (
	StatusActive   Status = "ACTIVE"
	StatusReturned Status = "RETURNED"
)

// Loan records one copy of an item lent to an account.
//
// Invariants:
//   - ReturnedOn is nil while the loan is active and is set exactly once
//   - Fine is fixed when the loan is returned and never changes afterwards
//   - BorrowedOn, DueOn and ReturnedOn are calendar dates (see DateOf)
type Loan struct {
	ID         id.LoanID    `json:"id"`
	AccountID  id.AccountID `json:"account_id"`
	ItemID     id.ItemID    `json:"item_id"`
	BorrowedOn time.Time    `json:"borrowed_on"`
	DueOn      time.Time    `json:"due_on"`
	ReturnedOn *time.Time   `json:"returned_on,omitempty"`
	Fine       Money        `json:"fine"`
}

func NewLoan(loanID id.LoanID, accountID id.AccountID, itemID id.ItemID, today time.Time, dueInDays int) (*Loan, error) {
	if dueInDays < 1 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "loan must last at least one day")
	}
	borrowed := DateOf(today)
	return &Loan{
		ID:         loanID,
		AccountID:  accountID,
		ItemID:     itemID,
		BorrowedOn: borrowed,
		DueOn:      AddDays(borrowed, dueInDays),
	}, nil
}

func (l *Loan) Status() Status {
	if l.ReturnedOn != nil {
		return StatusReturned
	}
	return StatusActive
}

func (l *Loan) IsActive() bool {
	return l.ReturnedOn == nil
}

// IsOverdue reports whether an active loan was due before asOf's date.
func (l *Loan) IsOverdue(asOf time.Time) bool {
	return l.IsActive() && l.DueOn.Before(DateOf(asOf))
}

// CanReturn checks that the loan is still active.
// Use with ApplyReturn in Execute callbacks.
func (l *Loan) CanReturn() error {
	if !l.IsActive() {
		return dErrors.New(dErrors.CodeInvalidState, "El préstamo ya fue devuelto")
	}
	return nil
}

// ApplyReturn closes the loan on today's date and fixes its fine.
// Call CanReturn first.
func (l *Loan) ApplyReturn(today time.Time, finePerDay Money) {
	returned := DateOf(today)
	l.ReturnedOn = &returned
	l.Fine = FineFor(l.DueOn, returned, finePerDay)
}

// Clone returns a copy that does not share ReturnedOn.
func (l *Loan) Clone() *Loan {
	c := *l
	if l.ReturnedOn != nil {
		r := *l.ReturnedOn
		c.ReturnedOn = &r
	}
	return &c
}

// FineFor charges finePerDay for every day on is past due.
func FineFor(due, on time.Time, finePerDay Money) Money {
	late := DaysBetween(due, on)
	if late <= 0 {
		return 0
	}
	return Money(late) * finePerDay
}

// DaysRemaining is DueOn - asOf in days. A negative value means the loan is
// overdue by that many days. Returned loans have nothing remaining.
func DaysRemaining(loan *Loan, asOf time.Time) int {
	if !loan.IsActive() {
		return 0
	}
	return DaysBetween(asOf, loan.DueOn)
}

// OverdueFineEstimate is what the loan would be fined if returned on asOf.
// A returned loan reports its stored fine.
func OverdueFineEstimate(loan *Loan, asOf time.Time, finePerDay Money) Money {
	if !loan.IsActive() {
		return loan.Fine
	}
	return FineFor(loan.DueOn, asOf, finePerDay)
}
