package models

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the store, indexer, retriever, and resolver.
var (
	// ErrValidation indicates malformed input (shape or length mismatch, missing fields).
	ErrValidation = errors.New("validation error")

	// ErrDimensionMismatch indicates an embedding width that differs from the bound index dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")

	// ErrStorage indicates the underlying file or database is unavailable or a write failed.
	ErrStorage = errors.New("storage error")

	// ErrNotFound indicates a requested entity does not exist.
	ErrNotFound = errors.New("not found")
)

// DimensionMismatchError reports the bound and offered embedding widths.
type DimensionMismatchError struct {
	Expected int
	Got      int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: index is bound to %d, got %d", e.Expected, e.Got)
}

// Is reports whether target is ErrDimensionMismatch.
func (e *DimensionMismatchError) Is(target error) bool {
	return target == ErrDimensionMismatch
}

// StorageError wraps err so that it matches ErrStorage while keeping the cause.
func StorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}
