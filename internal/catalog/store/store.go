// Package store persists catalog items. Both implementations expose the same
// compare-and-decrement primitive on available copies that lending relies on
// to never lend more copies than exist.
package store

import "biblioteca/pkg/platform/sentinel"

var (
	// ErrNotFound is returned when an item lookup misses.
	ErrNotFound = sentinel.ErrNotFound
	// ErrNoCopies is returned by ReserveCopy when nothing is left to lend.
	ErrNoCopies = sentinel.ErrExhausted
	// ErrAllCopiesIn is returned by ReleaseCopy when every copy is already on the shelf.
	ErrAllCopiesIn = sentinel.ErrInvalidState
)
