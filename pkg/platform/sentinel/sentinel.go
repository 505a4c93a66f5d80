// Package sentinel defines the storage-level facts that stores report and
// services translate into domain errors.
package sentinel

import "errors"

// Stores return these, possibly wrapped with fmt.Errorf("...: %w"):
//
//   - ErrNotFound: no account, item or loan with that id
//   - ErrConflict: a unique constraint (email, handle, national id) rejected the write
//   - ErrInvalidState: the loan was already returned
//   - ErrExhausted: the item has no available copies left
//
// Input validation never produces a sentinel; it uses pkg/domain-errors.
var (
	ErrNotFound     = errors.New("not found")
	ErrConflict     = errors.New("conflict")
	ErrInvalidState = errors.New("invalid state")
	ErrExhausted    = errors.New("exhausted")
)
