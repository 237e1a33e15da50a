package rrd

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorIsMatchesKind(t *testing.T) {
	err := newErr(KindDefinitionError, "bad step %d", 0)
	if !Is(err, KindDefinitionError) {
		t.Error("Is did not match the error's own kind")
	}
	if Is(err, KindStorageError) {
		t.Error("Is matched an unrelated kind")
	}
}

func TestErrorIsUnwrapsWrappedErrors(t *testing.T) {
	base := newErr(KindStorageError, "disk full")
	wrapped := fmt.Errorf("context: %w", base)
	if !Is(wrapped, KindStorageError) {
		t.Error("Is did not unwrap through fmt.Errorf wrapping")
	}
}

func TestWrapErrPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := wrapErr(KindStorageError, cause, "writing header")
	if !errors.Is(err, cause) {
		t.Error("wrapErr's Unwrap does not surface the original cause")
	}
	if err.Error() == "" {
		t.Error("Error() returned empty string")
	}
}
