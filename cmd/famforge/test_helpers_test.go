package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"famforge/internal/config"
	"famforge/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	configPath string
	baseDir    string
	binDir     string
}

// stubTools are shell scripts standing in for the external pipeline tools.
// They write the files the real tools produce in the family directory.
var stubTools = map[string]string{
	testsupport.ToolCreateAlignment:  "printf '>seq1\\nMKVLAAG\\n>seq2\\nMKVLSAG\\n'",
	testsupport.ToolToStockholm:      "printf 'seq1 MKVLAAG\\nseq2 MKVLSAG\\n//\\n'",
	testsupport.ToolLiftover:         "cp \"$3\" \"$3.phmmer\"\nprintf 'Successfully completed.\\n\\nResource usage summary:\\n' > liftover.log",
	testsupport.ToolRedundancyFilter: "cat SEED4",
	testsupport.ToolTrim:             "cp SEED3 SEED2",
	testsupport.ToolPartialFilter:    "cat SEED2",
	testsupport.ToolBuild:            "printf 'hits\\n' > PFAMOUT\nprintf 'ID   ShortName\\nAU   Who RU\\n' > DESC\nprintf 'Resource usage summary:\\n' > pfbuild.log",
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	base := testsupport.BaseDir(cfg)
	t.Setenv("HOME", filepath.Join(base, "home"))

	binDir := filepath.Join(base, "bin")
	if err := os.MkdirAll(binDir, 0o755); err != nil {
		t.Fatalf("mkdir bin: %v", err)
	}
	for name, body := range stubTools {
		writeScript(t, binDir, name, body)
	}
	for _, step := range cfg.PostProcess {
		writeScript(t, binDir, step.Command, "exit 0")
	}
	t.Setenv("PATH", binDir+string(os.PathListSeparator)+os.Getenv("PATH"))

	pfamrc := filepath.Join(base, "pfamrc")
	testsupport.WriteFile(t, pfamrc, "export PFAM_CONFIG=test\n")
	cfg.Environment.RequiredFiles = []string{pfamrc}
	cfg.Workflow.PollInterval = 1
	cfg.Workflow.MaxPollInterval = 1
	cfg.Workflow.IdleWait = 1
	cfg.Workflow.ConversionAttempts = 1
	cfg.Logging.Level = "warn"
	if err := os.MkdirAll(cfg.Paths.ClusterDir, 0o755); err != nil {
		t.Fatalf("mkdir clusters: %v", err)
	}

	configPath := filepath.Join(base, "famforge.toml")
	writeTestConfig(t, configPath, cfg)

	return &cliTestEnv{cfg: cfg, configPath: configPath, baseDir: base, binDir: binDir}
}

func writeScript(t *testing.T, dir, name, body string) {
	t.Helper()
	script := "#!/bin/sh\n" + body + "\n"
	if err := os.WriteFile(filepath.Join(dir, name), []byte(script), 0o755); err != nil {
		t.Fatalf("write stub %s: %v", name, err)
	}
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	data, err := toml.Marshal(cfg)
	if err != nil {
		t.Fatalf("marshal config: %v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func (env *cliTestEnv) run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := newRootCommand()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(append([]string{"--config", env.configPath}, args...))
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func (env *cliTestEnv) mustRun(t *testing.T, args ...string) string {
	t.Helper()
	out, err := env.run(t, args...)
	if err != nil {
		t.Fatalf("famforge %s: %v\n%s", strings.Join(args, " "), err, out)
	}
	return out
}
