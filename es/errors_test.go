package es

import (
	"errors"
	"testing"
)

func TestValidationErrorMessage(t *testing.T) {
	withPath := &ValidationError{Path: "data.email", Message: "must be a string"}
	if got := withPath.Error(); got == "" {
		t.Fatalf("expected non-empty error message")
	}

	withoutPath := &ValidationError{Message: "must be a string"}
	if withoutPath.Error() == withPath.Error() {
		t.Fatalf("expected path to change the rendered message")
	}
}

func TestHandlerErrorUnwrap(t *testing.T) {
	cause := errors.New("boom")
	he := &HandlerError{Record: Record{Type: "Widget"}, Cause: cause}

	if !errors.Is(he, cause) {
		t.Fatalf("expected errors.Is to see through HandlerError to its cause")
	}
}

func TestStorageErrorUnwrap(t *testing.T) {
	cause := errors.New("connection reset")
	se := &StorageError{Cause: cause}

	if !errors.Is(se, cause) {
		t.Fatalf("expected errors.Is to see through StorageError to its cause")
	}
}

func TestConflictError(t *testing.T) {
	c := &Conflict{Reason: ConflictStreamTimestampExhausted}
	if c.Error() == "" {
		t.Fatalf("expected non-empty error message")
	}
}
