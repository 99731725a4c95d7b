package apperr

import (
	"errors"
	"testing"
)

func TestIsMatchesSentinel(t *testing.T) {
	err := New(NotFound, "mailbox not found", nil)
	if !errors.Is(err, ErrNotFound) {
		t.Fatal("expected errors.Is to match ErrNotFound sentinel")
	}
	if errors.Is(err, ErrConflict) {
		t.Fatal("did not expect match against a different kind")
	}
}

func TestIsMatchesWrappedCause(t *testing.T) {
	cause := errors.New("driver: connection refused")
	err := New(ProviderTransient, "list messages", cause)
	if !errors.Is(err, ErrProviderTransient) {
		t.Fatal("expected match on ProviderTransient")
	}
	if !errors.Is(err, cause) {
		t.Fatal("expected Unwrap to expose the original cause")
	}
}

func TestOfReportsKind(t *testing.T) {
	err := New(Validation, "bad title", nil)
	kind, ok := Of(err)
	if !ok || kind != Validation {
		t.Fatalf("got kind=%v ok=%v, want Validation/true", kind, ok)
	}

	_, ok = Of(errors.New("plain"))
	if ok {
		t.Fatal("expected ok=false for a non-apperr error")
	}
}
