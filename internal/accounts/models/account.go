package models

import (
	"time"

	id "biblioteca/pkg/domain"
	dErrors "biblioteca/pkg/domain-errors"
)

// PlaceholderNationalIDPrefix marks a synthetic national id attached when an
// administrator promotes an account that never completed its profile. The
// value is unique per account and is never run through checksum validation.
const PlaceholderNationalIDPrefix = "SINRUT-"

// PlaceholderNationalID returns the synthetic national id for accountID.
func PlaceholderNationalID(accountID id.AccountID) string {
	return PlaceholderNationalIDPrefix + accountID.String()
}

// Account is a login identity. Accounts are never deleted, only deactivated.
//
// Invariants:
//   - Handle and Email are unique across accounts
//   - PasswordHash is a bcrypt hash, never the clear password
//   - Profile is optional; a nil Profile carries no role
type Account struct {
	ID           id.AccountID `json:"id"`
	Handle       string       `json:"handle"`
	Email        string       `json:"email"`
	PasswordHash string       `json:"-"`
	FirstName    string       `json:"first_name"`
	LastName     string       `json:"last_name"`
	Active       bool         `json:"active"`
	CreatedAt    time.Time    `json:"created_at"`
	UpdatedAt    time.Time    `json:"updated_at"`
	Profile      *Profile     `json:"profile,omitempty"`
}

// Profile holds the library-specific attributes of an account.
type Profile struct {
	AccountID  id.AccountID `json:"account_id"`
	Role       id.Role      `json:"role"`
	NationalID string       `json:"national_id"`
	Address    string       `json:"address"`
	Phone      string       `json:"phone"`
}

// HasPlaceholderNationalID reports whether the profile carries the synthetic id.
func (p *Profile) HasPlaceholderNationalID() bool {
	return len(p.NationalID) >= len(PlaceholderNationalIDPrefix) &&
		p.NationalID[:len(PlaceholderNationalIDPrefix)] == PlaceholderNationalIDPrefix
}

// Role returns the account's role and whether it has one at all.
func (a *Account) Role() (id.Role, bool) {
	if a == nil || a.Profile == nil {
		return "", false
	}
	return a.Profile.Role, true
}

// FullName joins first and last name.
func (a *Account) FullName() string {
	switch {
	case a.FirstName == "":
		return a.LastName
	case a.LastName == "":
		return a.FirstName
	}
	return a.FirstName + " " + a.LastName
}

// Clone returns a deep copy so stores never share the profile pointer.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	if a.Profile != nil {
		p := *a.Profile
		c.Profile = &p
	}
	return &c
}

// CanChangeRole checks that actor may set a role on a.
// Use with ApplyRole in Execute callbacks.
func (a *Account) CanChangeRole(actor id.AccountID, role id.Role) error {
	if a.ID == actor {
		return dErrors.New(dErrors.CodeInvalidState, "No puedes cambiar tu propio rol")
	}
	if !role.IsAssignable() {
		return dErrors.New(dErrors.CodeValidation, "Rol no válido")
	}
	return nil
}

// ApplyRole sets the role, attaching a placeholder profile when the account
// has none. Call CanChangeRole first.
func (a *Account) ApplyRole(role id.Role, now time.Time) {
	if a.Profile == nil {
		a.Profile = &Profile{
			AccountID:  a.ID,
			NationalID: PlaceholderNationalID(a.ID),
		}
	}
	a.Profile.Role = role
	a.UpdatedAt = now
}

// CanToggleActive checks that actor may flip a's active flag.
func (a *Account) CanToggleActive(actor id.AccountID) error {
	if a.ID == actor {
		return dErrors.New(dErrors.CodeInvalidState, "No puedes desactivar tu propia cuenta")
	}
	return nil
}

// ApplyToggleActive flips the active flag. Call CanToggleActive first.
func (a *Account) ApplyToggleActive(now time.Time) {
	a.Active = !a.Active
	a.UpdatedAt = now
}

// NewAccount builds an active account with a profile of the given role.
func NewAccount(accountID id.AccountID, email, passwordHash, firstName, lastName string, profile Profile, now time.Time) (*Account, error) {
	if accountID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "account id cannot be nil")
	}
	if email == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "email cannot be empty")
	}
	if passwordHash == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "password hash cannot be empty")
	}
	if !profile.Role.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid role")
	}
	profile.AccountID = accountID
	return &Account{
		ID:           accountID,
		Email:        email,
		PasswordHash: passwordHash,
		FirstName:    firstName,
		LastName:     lastName,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
		Profile:      &profile,
	}, nil
}
