package apperrors

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfWrapped(t *testing.T) {
	base := New(ModelLoading, "Model is loading. Please try again in a few moments.")
	wrapped := fmt.Errorf("detect: %w", base)

	if KindOf(wrapped) != ModelLoading {
		t.Errorf("Expected ModelLoading, got %s", KindOf(wrapped))
	}
	if MessageOf(wrapped) != base.Message {
		t.Errorf("Unexpected message %q", MessageOf(wrapped))
	}
}

func TestKindOfPlainError(t *testing.T) {
	err := errors.New("boom")
	if KindOf(err) != Internal {
		t.Errorf("Expected Internal, got %s", KindOf(err))
	}
	if MessageOf(err) != "boom" {
		t.Errorf("Unexpected message %q", MessageOf(err))
	}
}

func TestWrapUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Wrap(Unreachable, "API request failed", cause)

	if !errors.Is(err, cause) {
		t.Error("Wrapped error should unwrap to its cause")
	}
	if err.Error() != "UNREACHABLE: API request failed: connection refused" {
		t.Errorf("Unexpected text %q", err.Error())
	}
}
