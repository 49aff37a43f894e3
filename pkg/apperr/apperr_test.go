package apperr

import (
	"errors"
	"fmt"
	"testing"
)

func TestKindOfClassifiesWrappedErrors(t *testing.T) {
	base := errors.New("connection refused")
	err := Wrap(KindProvider, base, "create provider assistant")
	if got := KindOf(err); got != KindProvider {
		t.Fatalf("KindOf = %q, want %q", got, KindProvider)
	}
	// Extra wrapping keeps the kind reachable.
	wrapped := fmt.Errorf("handle task: %w", err)
	if got := KindOf(wrapped); got != KindProvider {
		t.Fatalf("KindOf through wrap = %q, want %q", got, KindProvider)
	}
	if !errors.Is(wrapped, base) {
		t.Fatalf("cause lost through wrapping")
	}
}

func TestKindOfDefaultsToInternal(t *testing.T) {
	if got := KindOf(errors.New("plain")); got != KindInternal {
		t.Fatalf("KindOf = %q, want %q", got, KindInternal)
	}
}

func TestErrorString(t *testing.T) {
	err := New(KindNotFound, "document not found: %s", "doc-1")
	want := "not_found: document not found: doc-1"
	if err.Error() != want {
		t.Fatalf("Error() = %q, want %q", err.Error(), want)
	}

	wrapped := Wrap(KindInternal, errors.New("db down"), "load document")
	want = "internal: load document: db down"
	if wrapped.Error() != want {
		t.Fatalf("Error() = %q, want %q", wrapped.Error(), want)
	}
}

func TestIsKind(t *testing.T) {
	err := New(KindForbidden, "not yours")
	if !IsKind(err, KindForbidden) {
		t.Fatalf("IsKind(forbidden) = false")
	}
	if IsKind(err, KindNotFound) {
		t.Fatalf("IsKind(not_found) = true")
	}
	if IsKind(nil, KindInternal) {
		t.Fatalf("IsKind(nil) = true")
	}
}
