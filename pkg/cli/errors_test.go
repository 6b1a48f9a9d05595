package cli

import (
	"errors"
	"strings"
	"testing"
)

func TestConfigError(t *testing.T) {
	err := NewConfigError("store.backend", "unknown backend")
	if !strings.Contains(err.Error(), "store.backend") {
		t.Errorf("Error() = %q", err.Error())
	}

	err = NewConfigError("", "file missing")
	if got := err.Error(); got != "config error: file missing" {
		t.Errorf("Error() = %q", got)
	}
}

func TestCommandErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	err := NewCommandError("run", inner)

	if !errors.Is(err, inner) {
		t.Error("expected the wrapped error to be reachable")
	}
	if !strings.Contains(err.Error(), "run") {
		t.Errorf("Error() = %q", err.Error())
	}
}
