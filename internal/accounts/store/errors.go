package store

import (
	"fmt"

	"biblioteca/pkg/platform/sentinel"
)

// ErrNotFound is returned when an account lookup misses.
var ErrNotFound = sentinel.ErrNotFound

// Unique constraint violations. Each wraps sentinel.ErrConflict so callers
// that only care about "some conflict" can match on that.
var (
	ErrHandleTaken     = fmt.Errorf("handle already registered: %w", sentinel.ErrConflict)
	ErrEmailTaken      = fmt.Errorf("email already registered: %w", sentinel.ErrConflict)
	ErrNationalIDTaken = fmt.Errorf("national id already registered: %w", sentinel.ErrConflict)
)
