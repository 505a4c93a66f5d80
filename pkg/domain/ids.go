package domain

import (
	"github.com/google/uuid"

	dErrors "biblioteca/pkg/domain-errors"
)

// Typed identifiers keep account, item and loan ids from being mixed up at
// call sites. All of them share the same parsing rules.
type (
	AccountID uuid.UUID
	ItemID    uuid.UUID
	LoanID    uuid.UUID
)

// ParseAccountID parses an account id from external input.
func ParseAccountID(s string) (AccountID, error) {
	u, err := parseUUID(s, "account id")
	return AccountID(u), err
}

// ParseItemID parses an item id from external input.
func ParseItemID(s string) (ItemID, error) {
	u, err := parseUUID(s, "item id")
	return ItemID(u), err
}

// ParseLoanID parses a loan id from external input.
func ParseLoanID(s string) (LoanID, error) {
	u, err := parseUUID(s, "loan id")
	return LoanID(u), err
}

func parseUUID(s, name string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, name+" cannot be empty")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "invalid "+name)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, name+" cannot be nil")
	}
	return u, nil
}

func NewAccountID() AccountID { return AccountID(uuid.New()) }
func NewItemID() ItemID       { return ItemID(uuid.New()) }
func NewLoanID() LoanID       { return LoanID(uuid.New()) }

func (id AccountID) String() string { return uuid.UUID(id).String() }
func (id AccountID) IsNil() bool    { return uuid.UUID(id) == uuid.Nil }
func (id ItemID) String() string    { return uuid.UUID(id).String() }
func (id ItemID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }
func (id LoanID) String() string    { return uuid.UUID(id).String() }
func (id LoanID) IsNil() bool       { return uuid.UUID(id) == uuid.Nil }

// Text marshalling keeps ids as canonical UUID strings in JSON.

func (id AccountID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id ItemID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id LoanID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }

func (id *AccountID) UnmarshalText(b []byte) error { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *ItemID) UnmarshalText(b []byte) error    { return unmarshalUUID((*uuid.UUID)(id), b) }
func (id *LoanID) UnmarshalText(b []byte) error    { return unmarshalUUID((*uuid.UUID)(id), b) }

func unmarshalUUID(dst *uuid.UUID, b []byte) error {
	u, err := uuid.ParseBytes(b)
	if err != nil {
		return dErrors.New(dErrors.CodeInvalidInput, "invalid id")
	}
	*dst = u
	return nil
}
