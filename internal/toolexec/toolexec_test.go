package toolexec_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"famforge/internal/config"
	"famforge/internal/services"
	"famforge/internal/toolexec"
)

func TestExpandSubstitutesFamilyVariables(t *testing.T) {
	vars := toolexec.Vars{Family: "Pfam-M_000042", Cluster: "/data/clusters/MGYP0000/MGYP000012.fa", Dir: "/data/Pfam-M/Pfam-M_000042"}
	tool := config.Tool{
		Command:        "belvu",
		Args:           []string{"-o", "mul", "{family}", "--cluster={cluster}"},
		Stdout:         "{seed}",
		Exclude:        []string{"//"},
		TimeoutSeconds: 30,
	}

	cmd := toolexec.Expand(tool, vars)
	if cmd.Name != "belvu" {
		t.Fatalf("unexpected name %q", cmd.Name)
	}
	wantArgs := []string{"-o", "mul", "Pfam-M_000042", "--cluster=/data/clusters/MGYP0000/MGYP000012.fa"}
	if strings.Join(cmd.Args, " ") != strings.Join(wantArgs, " ") {
		t.Fatalf("unexpected args %v", cmd.Args)
	}
	if cmd.Stdout != "Pfam-M_000042_SEED" {
		t.Fatalf("unexpected stdout %q", cmd.Stdout)
	}
	if cmd.Dir != vars.Dir {
		t.Fatalf("unexpected dir %q", cmd.Dir)
	}
	if cmd.Timeout != 30*time.Second {
		t.Fatalf("unexpected timeout %s", cmd.Timeout)
	}
	if got := cmd.String(); got != "belvu -o mul Pfam-M_000042 --cluster=/data/clusters/MGYP0000/MGYP000012.fa > Pfam-M_000042_SEED" {
		t.Fatalf("unexpected rendering %q", got)
	}
}

func TestExecutorRedirectsAndFiltersStdout(t *testing.T) {
	dir := t.TempDir()
	exec := toolexec.NewExecutor()

	cmd := toolexec.Command{
		Name:    "sh",
		Args:    []string{"-c", "printf '# STOCKHOLM 1.0\\nseq1 ACGT\\n//\\n'"},
		Dir:     dir,
		Stdout:  "SEED",
		Exclude: []string{"//"},
	}
	if _, err := exec.Run(context.Background(), cmd); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(dir, "SEED"))
	if err != nil {
		t.Fatalf("read SEED: %v", err)
	}
	if string(content) != "# STOCKHOLM 1.0\nseq1 ACGT\n" {
		t.Fatalf("unexpected filtered output %q", content)
	}
}

func TestExecutorRunsInCommandDir(t *testing.T) {
	dir := t.TempDir()
	exec := toolexec.NewExecutor()

	if _, err := exec.Run(context.Background(), toolexec.Command{Name: "sh", Args: []string{"-c", "echo hi > marker"}, Dir: dir}); err != nil {
		t.Fatalf("Run returned error: %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "marker")); err != nil {
		t.Fatalf("expected marker written in command dir: %v", err)
	}
}

func TestExecutorReportsNonZeroExit(t *testing.T) {
	exec := toolexec.NewExecutor()

	result, err := exec.Run(context.Background(), toolexec.Command{Name: "sh", Args: []string{"-c", "echo boom >&2; exit 3"}, Dir: t.TempDir()})
	if err == nil {
		t.Fatal("expected error for non-zero exit")
	}
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if result.ExitCode != 3 {
		t.Fatalf("expected exit code 3, got %d", result.ExitCode)
	}
	if result.Stderr != "boom" {
		t.Fatalf("expected stderr captured, got %q", result.Stderr)
	}
}

func TestExecutorTimeout(t *testing.T) {
	exec := toolexec.NewExecutor()

	_, err := exec.Run(context.Background(), toolexec.Command{Name: "sleep", Args: []string{"5"}, Timeout: 50 * time.Millisecond})
	if !errors.Is(err, services.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
}

func TestExecutorStartFailureHasNoExitCode(t *testing.T) {
	result, err := toolexec.NewExecutor().Run(context.Background(),
		toolexec.Command{Name: "famforge-no-such-tool", Dir: t.TempDir()})
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("expected ErrExternalTool, got %v", err)
	}
	if result.ExitCode >= 0 {
		t.Fatalf("exit code = %d, want negative for a command that never started", result.ExitCode)
	}
}

func TestExecutorRejectsEmptyCommand(t *testing.T) {
	_, err := toolexec.NewExecutor().Run(context.Background(), toolexec.Command{})
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected ErrConfiguration, got %v", err)
	}
}
