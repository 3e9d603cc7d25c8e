package logs_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"famforge/internal/config"
	"famforge/internal/family"
	"famforge/internal/logs"
	"famforge/internal/services"
)

func TestLatestRunLog(t *testing.T) {
	dir := t.TempDir()
	if _, err := logs.LatestRunLog(dir); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	old := filepath.Join(dir, "famforge-old.log")
	recent := filepath.Join(dir, "famforge-new.log")
	other := filepath.Join(dir, "notes.log")
	for _, path := range []string{old, recent, other} {
		if err := os.WriteFile(path, []byte("x\n"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	past := time.Now().Add(-time.Hour)
	if err := os.Chtimes(old, past, past); err != nil {
		t.Fatal(err)
	}
	future := time.Now().Add(time.Hour)
	if err := os.Chtimes(other, future, future); err != nil {
		t.Fatal(err)
	}

	got, err := logs.LatestRunLog(dir)
	if err != nil {
		t.Fatal(err)
	}
	if got != recent {
		t.Fatalf("latest = %s, want %s", got, recent)
	}
}

func TestStageLog(t *testing.T) {
	cfg := config.Default()
	dir := "/data/Pfam-M/Pfam-M_000001"
	rec := family.NewRecord("Pfam-M_000001", "/clusters/x.fa", "run", time.Now())

	tests := []struct {
		stage family.Stage
		want  string
		ok    bool
	}{
		{family.StageAlignment, "", false},
		{family.StageLiftover, filepath.Join(dir, "liftover.log"), true},
		{family.StageBuild, filepath.Join(dir, "pfbuild.log"), true},
		{family.StageComplete, "", false},
	}
	for _, tc := range tests {
		rec.Stage = tc.stage
		got, ok := logs.StageLog(&cfg, rec, dir)
		if got != tc.want || ok != tc.ok {
			t.Errorf("%s: got (%q, %v), want (%q, %v)", tc.stage, got, ok, tc.want, tc.ok)
		}
	}
}
