package domain

import (
	"errors"
	"testing"
)

func TestValidationError(t *testing.T) {
	err := &ValidationError{Field: "amount", Err: ErrInvalidAmount}

	expected := "validation failed [amount]: invalid amount"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}

	if !errors.Is(err, ErrInvalidAmount) {
		t.Error("Expected error to wrap ErrInvalidAmount")
	}
	if errors.Is(err, ErrInvalidPrice) {
		t.Error("Did not expect error to match ErrInvalidPrice")
	}
}

func TestPersistenceError(t *testing.T) {
	base := errors.New("disk full")
	err := &PersistenceError{Path: "records/2025/3/14/7.yml", Err: base}

	expected := "persistence failed [records/2025/3/14/7.yml]: disk full"
	if err.Error() != expected {
		t.Errorf("Error message = %q, want %q", err.Error(), expected)
	}

	if !errors.Is(err, base) {
		t.Error("Expected error to wrap the underlying error")
	}
}
