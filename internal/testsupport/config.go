package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"famforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// Tool command names used by NewConfig. Each tool gets its own command name
// so a scripted Executor can tell invocations apart.
const (
	ToolCreateAlignment  = "create_alignment"
	ToolToStockholm      = "to_stockholm"
	ToolLiftover         = "liftover"
	ToolRedundancyFilter = "redundancy_filter"
	ToolTrim             = "trim"
	ToolPartialFilter    = "partial_filter"
	ToolBuild            = "pfbuild"
)

// NewConfig produces a config seeded with unique temp directories per test.
// External tools keep their default arguments but are renamed to the Tool*
// constants, no required files are checked, and polling delays are zero.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	if err := cfgVal.ApplyDataDir(base); err != nil {
		t.Fatalf("apply data dir: %v", err)
	}
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Environment.RequiredFiles = nil
	cfgVal.Environment.GroupWritable = false
	cfgVal.PostProcess = config.DefaultPostProcess()

	tools := &cfgVal.Tools
	tools.CreateAlignment.Command = ToolCreateAlignment
	tools.ToStockholm.Command = ToolToStockholm
	tools.Liftover.Command = ToolLiftover
	tools.RedundancyFilter.Command = ToolRedundancyFilter
	tools.Trim.Command = ToolTrim
	tools.PartialFilter.Command = ToolPartialFilter
	tools.Build.Command = ToolBuild
	for i := range cfgVal.PostProcess {
		cfgVal.PostProcess[i].Command = cfgVal.PostProcess[i].Name
	}

	cfgVal.Workflow.PollInterval = 0
	cfgVal.Workflow.MaxPollInterval = 0
	cfgVal.Workflow.IdleWait = 0
	cfgVal.Workflow.ConversionBackoff = 0
	cfgVal.Workflow.WatchLogs = false

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithKeepDone leaves successful families in the aligned root.
func WithKeepDone() ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Workflow.MoveCompleted = false
	}
}

// WithStubbedBinaries writes stub executables for the provided names and
// prepends them to PATH. If names is empty, every configured tool command is
// stubbed.
func WithStubbedBinaries(names ...string) ConfigOption {
	return func(b *configBuilder) {
		if len(names) == 0 {
			for _, cmd := range b.cfg.ToolCommands() {
				names = append(names, cmd)
			}
		}
		binDir := filepath.Join(b.baseDir, "bin")
		if err := os.MkdirAll(binDir, 0o755); err != nil {
			b.t.Fatalf("mkdir bin dir: %v", err)
		}
		script := []byte("#!/bin/sh\nexit 0\n")
		for _, name := range names {
			target := filepath.Join(binDir, name)
			if err := os.WriteFile(target, script, 0o755); err != nil {
				b.t.Fatalf("write stub %s: %v", name, err)
			}
		}

		oldPath := os.Getenv("PATH")
		if err := os.Setenv("PATH", binDir+string(os.PathListSeparator)+oldPath); err != nil {
			b.t.Fatalf("set PATH: %v", err)
		}
		b.t.Cleanup(func() {
			_ = os.Setenv("PATH", oldPath)
		})
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StateDir)
}
