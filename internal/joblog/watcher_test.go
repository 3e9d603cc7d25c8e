package joblog

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"famforge/internal/config"
)

func liftoverWatcher(t *testing.T) *TextWatcher {
	t.Helper()
	w, err := NewTextWatcher(config.Default().Stages.Liftover)
	if err != nil {
		t.Fatalf("NewTextWatcher: %v", err)
	}
	return w
}

func writeLog(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "liftover.log")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	return path
}

func TestInspectClassifiesLogs(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    LogRecord
	}{
		{
			name:    "memory limit",
			content: "Sender: LSF\nResource usage summary:\n\nExited with exit code 25.\n",
			want: LogRecord{
				Present:            true,
				Finished:           true,
				ErrorLines:         []string{"Exited with exit code 25."},
				ExitCode:           25,
				IsMemoryLimitError: true,
			},
		},
		{
			name:    "generic failure",
			content: "Resource usage summary:\nExited with exit code 1.\n",
			want: LogRecord{
				Present:    true,
				Finished:   true,
				ErrorLines: []string{"Exited with exit code 1."},
				ExitCode:   1,
			},
		},
		{
			name:    "still running",
			content: "Job <123> is submitted\nExited with exit code 1.\n",
			want: LogRecord{
				Present:    true,
				ErrorLines: []string{"Exited with exit code 1."},
				ExitCode:   1,
			},
		},
		{
			name:    "finished clean",
			content: "Successfully completed.\n\nResource usage summary:\n\n    CPU time : 12.00 sec.\n",
			want:    LogRecord{Present: true, Finished: true},
		},
		{
			name:    "marker must be a whole line",
			content: "see Resource usage summary: below\n",
			want:    LogRecord{Present: true},
		},
		{
			name:    "error pattern anchored at line start",
			content: "Resource usage summary:\nJob Exited with exit code 1.\n",
			want:    LogRecord{Present: true, Finished: true},
		},
		{
			name:    "empty log",
			content: "",
			want:    LogRecord{},
		},
	}

	w := liftoverWatcher(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := w.Inspect(writeLog(t, tt.content))
			if err != nil {
				t.Fatalf("Inspect returned error: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("Inspect = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestInspectMissingLog(t *testing.T) {
	got, err := liftoverWatcher(t).Inspect(filepath.Join(t.TempDir(), "missing.log"))
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if got.Present || got.Finished {
		t.Fatalf("expected empty record, got %+v", got)
	}
}

func TestBuildWatcherRecognisesNoSpaceError(t *testing.T) {
	w, err := NewTextWatcher(config.Default().Stages.Build)
	if err != nil {
		t.Fatalf("NewTextWatcher: %v", err)
	}
	path := writeLog(t, "sh: cannot create temp file for here-document: No space left on device\nResource usage summary:\n")
	got, err := w.Inspect(path)
	if err != nil {
		t.Fatalf("Inspect returned error: %v", err)
	}
	if !got.Failed() {
		t.Fatalf("expected failed record, got %+v", got)
	}
	if got.IsMemoryLimitError {
		t.Fatalf("no-space error must not count as memory limit")
	}
}

func TestNewTextWatcherRejectsBadPattern(t *testing.T) {
	stage := config.Default().Stages.Liftover
	stage.ErrorPatterns = []string{"("}
	if _, err := NewTextWatcher(stage); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestClearScratchRemovesMatchingFiles(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"a.fa", "liftover.log", "x.aln", "HMM.hmm", "hmmsearch.tbl", "SEED", "Pfam-M_000001_SEED"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "keep.fa"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	removed, err := ClearScratch(dir, config.Default().Stages.Liftover.Scratch)
	if err != nil {
		t.Fatalf("ClearScratch returned error: %v", err)
	}
	want := []string{"HMM.hmm", "a.fa", "hmmsearch.tbl", "liftover.log", "x.aln"}
	if !reflect.DeepEqual(removed, want) {
		t.Fatalf("removed = %v, want %v", removed, want)
	}
	for _, kept := range []string{"SEED", "Pfam-M_000001_SEED", "keep.fa"} {
		if _, err := os.Stat(filepath.Join(dir, kept)); err != nil {
			t.Fatalf("expected %s kept: %v", kept, err)
		}
	}
}
