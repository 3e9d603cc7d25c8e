package services_test

import (
	"errors"
	"strings"
	"testing"

	"famforge/internal/services"
)

func TestWrapIncludesContext(t *testing.T) {
	base := errors.New("boom")
	err := services.Wrap(services.ErrExternalTool, "pipeline", "liftover", "submit failed", base)
	if err == nil {
		t.Fatal("expected error")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected marker to be retained, got %v", err)
	}
	if !errors.Is(err, base) {
		t.Fatalf("expected wrapped error to contain base error, got %v", err)
	}
	msg := err.Error()
	for _, fragment := range []string{"pipeline", "liftover", "submit failed"} {
		if !strings.Contains(msg, fragment) {
			t.Fatalf("expected %q in error string %q", fragment, msg)
		}
	}
}

func TestWrapDefaultsMarker(t *testing.T) {
	err := services.Wrap(nil, "", "", "", nil)
	if !errors.Is(err, services.ErrTransient) {
		t.Fatalf("expected transient marker, got %v", err)
	}
	if !strings.Contains(err.Error(), "service failure") {
		t.Fatalf("expected fallback detail, got %q", err.Error())
	}
}

func TestIsFatalRun(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"configuration", services.Wrap(services.ErrConfiguration, "config", "load", "missing pfamrc", nil), true},
		{"input", services.Wrap(services.ErrNotFound, "pipeline", "align", "cluster file missing", nil), true},
		{"tool", services.Wrap(services.ErrExternalTool, "pipeline", "pfbuild", "exit 1", nil), false},
		{"conversion", services.Wrap(services.ErrConversion, "pipeline", "convert", "empty seed", nil), false},
		{"nil", nil, false},
	}
	for _, tc := range cases {
		if got := services.IsFatalRun(tc.err); got != tc.want {
			t.Fatalf("%s: IsFatalRun = %v, want %v", tc.name, got, tc.want)
		}
	}
}
