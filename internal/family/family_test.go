package family

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"famforge/internal/services"
)

func newTestLayout(t *testing.T, keepDone bool) *Layout {
	t.Helper()
	l := NewLayout(filepath.Join(t.TempDir(), "Pfam-M"), keepDone)
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return fixed }
	return l
}

func TestNameForLine(t *testing.T) {
	tests := map[int]string{
		1:      "Pfam-M_000001",
		42:     "Pfam-M_000042",
		123456: "Pfam-M_123456",
	}
	for line, want := range tests {
		if got := NameForLine(line); got != want {
			t.Fatalf("NameForLine(%d) = %q, want %q", line, got, want)
		}
	}
}

func TestClusterFile(t *testing.T) {
	tests := []struct {
		rep  string
		want string
	}{
		{"MGYP000123456789", "/data/clusters/MGYP0001/MGYP000123456789.fa"},
		{"A0A1B2C3D4", "/data/clusters/A0A/A0A1B2C3D4.fa"},
		{"MGY12", "/data/clusters/MGY/MGY12.fa"},
	}
	for _, tt := range tests {
		if got := ClusterFile("/data/clusters", tt.rep); got != tt.want {
			t.Fatalf("ClusterFile(%q) = %q, want %q", tt.rep, got, tt.want)
		}
	}
}

func TestParseDisposition(t *testing.T) {
	tests := map[string]Disposition{
		"done":        Done,
		"DONE_MERGED": DoneMerged,
		"ignore":      Ignored,
		"ignored":     Ignored,
		"FUNCTION":    Function,
		"duf":         DUF,
		"pending":     Pending,
	}
	for input, want := range tests {
		got, err := ParseDisposition(input)
		if err != nil {
			t.Fatalf("ParseDisposition(%q) error: %v", input, err)
		}
		if got != want {
			t.Fatalf("ParseDisposition(%q) = %q, want %q", input, got, want)
		}
	}
	if _, err := ParseDisposition("archived"); err == nil {
		t.Fatal("expected error for unknown disposition")
	}
}

func TestLabels(t *testing.T) {
	if got := DoneMerged.Label(); got != "Done Merged" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := DUF.Label(); got != "DUF" {
		t.Fatalf("unexpected label %q", got)
	}
	if got := StageLiftover.Label(); got != "Liftover" {
		t.Fatalf("unexpected label %q", got)
	}
}

func TestClaimRejectsExistingFamilyAnywhere(t *testing.T) {
	l := newTestLayout(t, false)
	ctx := context.Background()

	if err := os.MkdirAll(filepath.Join(l.Root, "IGNORE", "Pfam-M_000002"), 0o755); err != nil {
		t.Fatal(err)
	}
	if _, _, err := l.Claim(ctx, "Pfam-M_000002", "", "run"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists for ignored family, got %v", err)
	}

	rec, dir, err := l.Claim(ctx, "Pfam-M_000001", "/clusters/A0A/A0A1.fa", "run-1")
	if err != nil {
		t.Fatalf("Claim returned error: %v", err)
	}
	if dir != l.ActiveDir("Pfam-M_000001") {
		t.Fatalf("unexpected dir %q", dir)
	}
	if rec.Disposition != Pending || rec.Stage != StageAlignment {
		t.Fatalf("unexpected initial record %+v", rec)
	}
	if _, _, err := l.Claim(ctx, "Pfam-M_000001", "", "run-2"); !errors.Is(err, ErrExists) {
		t.Fatalf("expected ErrExists on second claim, got %v", err)
	}
}

func TestConcurrentClaimsCreateOnce(t *testing.T) {
	l := newTestLayout(t, false)
	ctx := context.Background()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		winners int
	)
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, _, err := l.Claim(ctx, "Pfam-M_000009", "", "run"); err == nil {
				mu.Lock()
				winners++
				mu.Unlock()
			} else if !errors.Is(err, ErrExists) {
				t.Errorf("unexpected claim error: %v", err)
			}
		}()
	}
	wg.Wait()
	if winners != 1 {
		t.Fatalf("expected exactly one successful claim, got %d", winners)
	}
}

func TestRecordRoundTripPersistsAttempts(t *testing.T) {
	l := newTestLayout(t, false)
	rec, dir, err := l.Claim(context.Background(), "Pfam-M_000003", "", "run")
	if err != nil {
		t.Fatal(err)
	}
	rec.EnterStage(StageLiftover, l.clock())
	rec.SetAttempts(StageLiftover, 1)
	rec.SetAttempts(StageLiftover, 0)
	rec.AddWarning("postprocess swissprot: exit code 2")
	if err := l.Save(rec); err != nil {
		t.Fatal(err)
	}

	loaded, loadedDir, err := l.Load("Pfam-M_000003")
	if err != nil {
		t.Fatal(err)
	}
	if loadedDir != dir {
		t.Fatalf("unexpected dir %q", loadedDir)
	}
	if loaded.AttemptsFor(StageLiftover) != 1 {
		t.Fatalf("attempts not persisted or decreased: %+v", loaded.Attempts)
	}
	if !reflect.DeepEqual(loaded.Warnings, []string{"postprocess swissprot: exit code 2"}) {
		t.Fatalf("unexpected warnings %v", loaded.Warnings)
	}
	if loaded.Stage != StageLiftover {
		t.Fatalf("unexpected stage %q", loaded.Stage)
	}
}

func TestTransitionMovesDirectory(t *testing.T) {
	l := newTestLayout(t, false)
	rec, _, err := l.Claim(context.Background(), "Pfam-M_000004", "", "run")
	if err != nil {
		t.Fatal(err)
	}

	dir, err := l.Transition(rec, Failed, "memory limit")
	if err != nil {
		t.Fatalf("Transition returned error: %v", err)
	}
	if want := filepath.Join(l.Root, "FAILED", "Pfam-M_000004"); dir != want {
		t.Fatalf("dir = %q, want %q", dir, want)
	}
	if _, err := os.Stat(l.ActiveDir("Pfam-M_000004")); !os.IsNotExist(err) {
		t.Fatalf("active dir still present: %v", err)
	}

	loaded, _, err := l.Load("Pfam-M_000004")
	if err != nil {
		t.Fatal(err)
	}
	if loaded.Disposition != Failed || loaded.FailureReason != "memory limit" {
		t.Fatalf("unexpected record %+v", loaded)
	}
}

func TestTransitionDoneKeepsDirectoryWhenConfigured(t *testing.T) {
	l := newTestLayout(t, true)
	rec, dir, err := l.Claim(context.Background(), "Pfam-M_000005", "", "run")
	if err != nil {
		t.Fatal(err)
	}
	got, err := l.Transition(rec, Done, "")
	if err != nil {
		t.Fatal(err)
	}
	if got != dir {
		t.Fatalf("expected family kept in place, got %q", got)
	}
	if rec.Stage != StageComplete {
		t.Fatalf("expected complete stage, got %q", rec.Stage)
	}
}

func TestReconcileFinishesInterruptedMove(t *testing.T) {
	l := newTestLayout(t, false)
	rec, dir, err := l.Claim(context.Background(), "Pfam-M_000006", "", "run")
	if err != nil {
		t.Fatal(err)
	}
	rec.Disposition = Done
	if err := WriteRecord(dir, rec); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(l.Root, "DONE", "Pfam-M_000007"), 0o755); err != nil {
		t.Fatal(err)
	}

	moved, err := l.Reconcile()
	if err != nil {
		t.Fatalf("Reconcile returned error: %v", err)
	}
	if !reflect.DeepEqual(moved, []string{"Pfam-M_000006"}) {
		t.Fatalf("moved = %v", moved)
	}
	done, err := l.List(Done)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(done, []string{"Pfam-M_000006", "Pfam-M_000007"}) {
		t.Fatalf("DONE listing = %v", done)
	}
}

func TestLoadWithoutRecordUsesLocation(t *testing.T) {
	l := newTestLayout(t, false)
	if err := os.MkdirAll(filepath.Join(l.Root, "DUF", "Pfam-M_000008"), 0o755); err != nil {
		t.Fatal(err)
	}
	rec, _, err := l.Load("Pfam-M_000008")
	if err != nil {
		t.Fatal(err)
	}
	if rec.Disposition != DUF {
		t.Fatalf("expected DUF disposition, got %q", rec.Disposition)
	}
	if _, _, err := l.Load("Pfam-M_999999"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListSkipsDispositionDirs(t *testing.T) {
	l := newTestLayout(t, false)
	for _, dir := range []string{"FAILED", "DONE", "Pfam-M_000010", "custom_family"} {
		if err := os.MkdirAll(filepath.Join(l.Root, dir), 0o755); err != nil {
			t.Fatal(err)
		}
	}
	ids, err := l.List(Pending)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(ids, []string{"Pfam-M_000010", "custom_family"}) {
		t.Fatalf("unexpected pending listing %v", ids)
	}
}
