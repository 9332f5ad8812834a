package models

import (
	"errors"
	"io"
	"testing"
)

func TestDimensionMismatchError_Is(t *testing.T) {
	var err error = &DimensionMismatchError{Expected: 4, Got: 3}
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Error("DimensionMismatchError should match ErrDimensionMismatch")
	}
	var dm *DimensionMismatchError
	if !errors.As(err, &dm) || dm.Expected != 4 || dm.Got != 3 {
		t.Errorf("errors.As: got %+v", dm)
	}
}

func TestStorageError(t *testing.T) {
	if StorageError("noop", nil) != nil {
		t.Error("nil cause should give nil error")
	}
	err := StorageError("append metadata", io.ErrShortWrite)
	if !errors.Is(err, ErrStorage) || !errors.Is(err, io.ErrShortWrite) {
		t.Errorf("StorageError should match both ErrStorage and cause: %v", err)
	}
}
