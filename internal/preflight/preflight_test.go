package preflight

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"famforge/internal/services"
	"famforge/internal/testsupport"
)

func TestCheckDirectoryAccess_OK(t *testing.T) {
	dir := t.TempDir()
	result := CheckDirectoryAccess("test", dir)
	if !result.Passed {
		t.Fatalf("expected pass for temp dir, got: %s", result.Detail)
	}
}

func TestCheckDirectoryAccess_NotExist(t *testing.T) {
	result := CheckDirectoryAccess("test", filepath.Join(t.TempDir(), "nope"))
	if result.Passed {
		t.Fatal("expected failure for missing dir")
	}
	if result.Detail == "" {
		t.Fatal("expected non-empty detail")
	}
}

func TestCheckDirectoryAccess_NotDir(t *testing.T) {
	f := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(f, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	result := CheckDirectoryAccess("test", f)
	if result.Passed {
		t.Fatal("expected failure for file path")
	}
}

func TestCheckRequiredFile(t *testing.T) {
	dir := t.TempDir()
	rc := filepath.Join(dir, "pfamrc")
	if err := os.WriteFile(rc, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if result := CheckRequiredFile(rc); !result.Passed {
		t.Fatalf("expected pass, got %s", result.Detail)
	}
	if result := CheckRequiredFile(filepath.Join(dir, "missing")); result.Passed {
		t.Fatal("expected failure for missing file")
	}
	if result := CheckRequiredFile(dir); result.Passed {
		t.Fatal("expected failure for directory")
	}
}

func TestVerifyPassesWithStubbedTools(t *testing.T) {
	cfg := testsupport.NewConfig(t, testsupport.WithStubbedBinaries())
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(cfg.Paths.ClusterDir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := Verify(context.Background(), cfg); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestVerifyReportsEveryProblem(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	cfg.Environment.RequiredFiles = []string{filepath.Join(testsupport.BaseDir(cfg), "pfamrc")}
	cfg.Tools.Build.Command = "clearly-not-present-pfbuild"

	err := Verify(context.Background(), cfg)
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
	for _, want := range []string{"pfamrc", "Cluster directory", "clearly-not-present-pfbuild"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}
