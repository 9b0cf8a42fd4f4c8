package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidInput marks input that can never be scored or applied as given;
	// callers may retry after fixing it.
	ErrInvalidInput = errors.New("invalid input")
	// ErrConflict marks a request that would violate a consistency rule
	// (duplicate record, lost serialization, unknown target).
	ErrConflict = errors.New("conflict")

	ErrDimensionMismatch = fmt.Errorf("%w: embedding dimension mismatch", ErrInvalidInput)
	ErrEmptyText         = fmt.Errorf("%w: empty chunk text", ErrInvalidInput)
	ErrUnknownAction     = fmt.Errorf("%w: unknown feedback action", ErrInvalidInput)

	ErrUnknownDecision   = fmt.Errorf("%w: unknown scoring decision", ErrConflict)
	ErrDuplicateDecision = fmt.Errorf("%w: decision already exists for chunk and user", ErrConflict)
	ErrStaleCentroid     = fmt.Errorf("%w: centroid version changed during update", ErrConflict)
)

// Dimension builds an ErrDimensionMismatch with the offending sizes attached.
func Dimension(want, got int) error {
	return fmt.Errorf("%w: want %d, got %d", ErrDimensionMismatch, want, got)
}
