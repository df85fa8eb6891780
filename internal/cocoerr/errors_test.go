package cocoerr

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsAndClassOf(t *testing.T) {
	base := errors.New("disk full")
	err := Wrap(ClassTransientIO, "path /root/a.md", base)

	if !Is(err, ClassTransientIO) {
		t.Fatalf("expected Is(err, ClassTransientIO)")
	}
	if Is(err, ClassFatalIndex) {
		t.Fatalf("did not expect Is(err, ClassFatalIndex)")
	}
	if got := ClassOf(err); got != ClassTransientIO {
		t.Fatalf("ClassOf() = %v, want %v", got, ClassTransientIO)
	}
	if !errors.Is(err, err) {
		t.Fatalf("expected errors.Is to hold for identical error")
	}
	wrapped := fmt.Errorf("upstream: %w", err)
	if !Is(wrapped, ClassTransientIO) {
		t.Fatalf("expected Is to see through fmt.Errorf wrapping")
	}
}

func TestIsRetryable(t *testing.T) {
	if !IsRetryable(NotReady("index is building")) {
		t.Errorf("NotReady should be retryable")
	}
	if IsRetryable(InvalidInput("bad query")) {
		t.Errorf("InvalidInput should not be retryable")
	}
	if IsRetryable(InvariantViolation("orphan child index")) {
		t.Errorf("InvariantViolation should not be retryable")
	}
}
