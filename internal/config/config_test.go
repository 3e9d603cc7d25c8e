package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"famforge/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatal("expected config to be reported missing")
	}
	if resolved != path {
		t.Fatalf("expected resolved path %q, got %q", path, resolved)
	}
	if cfg.Workflow.MaxAttempts != 2 {
		t.Fatalf("expected default max_attempts 2, got %d", cfg.Workflow.MaxAttempts)
	}
	if cfg.Stages.Liftover.MemoryLimitExitCode != 25 {
		t.Fatalf("expected memory limit exit code 25, got %d", cfg.Stages.Liftover.MemoryLimitExitCode)
	}
	if !filepath.IsAbs(cfg.Paths.StateDir) {
		t.Fatalf("expected state dir to be absolute, got %q", cfg.Paths.StateDir)
	}
	if len(cfg.PostProcess) != 6 {
		t.Fatalf("expected 6 default post-processing steps, got %d", len(cfg.PostProcess))
	}
}

func TestLoadOverridesFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "famforge.toml")
	content := `
[paths]
aligned_root = "` + filepath.Join(dir, "aligned") + `"
state_dir = "` + filepath.Join(dir, "state") + `"

[tools.pfbuild]
command = "/opt/pfam/pfbuild"
args = ["-withpfmake", "SEED"]

[workflow]
max_attempts = 3
poll_interval = 1
max_poll_interval = 10

[logging]
format = "JSON"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected config to exist")
	}
	if cfg.Tools.Build.Command != "/opt/pfam/pfbuild" {
		t.Fatalf("unexpected pfbuild command %q", cfg.Tools.Build.Command)
	}
	if cfg.Workflow.MaxAttempts != 3 || cfg.MaxRetries() != 2 {
		t.Fatalf("unexpected attempts: max=%d retries=%d", cfg.Workflow.MaxAttempts, cfg.MaxRetries())
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("expected normalized json format, got %q", cfg.Logging.Format)
	}
	if cfg.Tools.Liftover.Command != "perl" {
		t.Fatalf("expected untouched tools to keep defaults, got %q", cfg.Tools.Liftover.Command)
	}
	if cfg.QueueDBPath() != filepath.Join(dir, "state", "queue.db") {
		t.Fatalf("unexpected queue path %q", cfg.QueueDBPath())
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"attempts", func(c *config.Config) { c.Workflow.MaxAttempts = 0 }, "workflow.max_attempts"},
		{"poll", func(c *config.Config) { c.Workflow.MaxPollInterval = 1; c.Workflow.PollInterval = 5 }, "workflow.max_poll_interval"},
		{"tool", func(c *config.Config) { c.Tools.Liftover.Command = "" }, "tools.liftover.command"},
		{"pattern", func(c *config.Config) { c.Stages.Build.ErrorPatterns = []string{"("} }, "stages.build.error_patterns"},
		{"marker", func(c *config.Config) { c.Stages.Liftover.FinishedMarker = "" }, "stages.liftover.finished_marker"},
		{"postprocess", func(c *config.Config) {
			c.PostProcess = append(config.DefaultPostProcess(), config.PostProcessStep{Name: "swissprot", Command: "perl"})
		}, "postprocess.swissprot"},
		{"format", func(c *config.Config) { c.Logging.Format = "xml" }, "logging.format"},
	}
	for _, tc := range cases {
		cfg := config.Default()
		tc.mutate(&cfg)
		err := cfg.Validate()
		if err == nil {
			t.Fatalf("%s: expected validation error", tc.name)
		}
		if !strings.Contains(err.Error(), tc.want) {
			t.Fatalf("%s: expected %q in %q", tc.name, tc.want, err.Error())
		}
	}
}

func TestApplyDataDirFillsUnsetPaths(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Default()
	cfg.Paths.ClusterDir = "/custom/clusters"
	if err := cfg.ApplyDataDir(dir); err != nil {
		t.Fatalf("ApplyDataDir failed: %v", err)
	}
	if cfg.Paths.AlignedRoot != filepath.Join(dir, "Pfam-M") {
		t.Fatalf("unexpected aligned root %q", cfg.Paths.AlignedRoot)
	}
	if cfg.Paths.ClusterDir != "/custom/clusters" {
		t.Fatalf("expected explicit cluster dir to be kept, got %q", cfg.Paths.ClusterDir)
	}
	if cfg.Paths.NamesFile != filepath.Join(dir, "corresponding_clusters.txt") {
		t.Fatalf("unexpected names file %q", cfg.Paths.NamesFile)
	}
}

func TestCreateSampleRoundTrips(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}
	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load sample failed: %v", err)
	}
	if !exists {
		t.Fatal("expected sample to exist")
	}
	if cfg.Stages.Build.Artifact != "PFAMOUT" {
		t.Fatalf("unexpected build artifact %q", cfg.Stages.Build.Artifact)
	}
}
