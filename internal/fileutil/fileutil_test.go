package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestCopyFile(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "Pfam-M_000001_SEED.phmmer")
	dst := filepath.Join(dir, "SEED4")

	content := []byte("# STOCKHOLM 1.0\nseq1/1-10 ACDEFGHIKL\n")
	if err := os.WriteFile(src, content, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(dst, []byte("stale content that is longer than the source file"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := CopyFile(src, dst); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(dst)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != string(content) {
		t.Fatalf("content mismatch: got %q, want %q", got, content)
	}
}

func TestNonEmpty(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty")
	full := filepath.Join(dir, "full")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(full, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if NonEmpty(empty) {
		t.Fatal("empty file reported non-empty")
	}
	if !NonEmpty(full) {
		t.Fatal("full file reported empty")
	}
	if NonEmpty(filepath.Join(dir, "missing")) {
		t.Fatal("missing file reported non-empty")
	}
	if NonEmpty(dir) {
		t.Fatal("directory reported as non-empty file")
	}
}

func TestAtomicWriteKeepsBackup(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")

	if err := AtomicWrite(path, []byte("v: 1\n"), nil); err != nil {
		t.Fatal(err)
	}
	if err := AtomicWrite(path, []byte("v: 2\n"), nil); err != nil {
		t.Fatal(err)
	}

	got, _ := os.ReadFile(path)
	if string(got) != "v: 2\n" {
		t.Fatalf("unexpected content %q", got)
	}
	bak, _ := os.ReadFile(path + ".bak")
	if string(bak) != "v: 1\n" {
		t.Fatalf("unexpected backup %q", bak)
	}
}

func TestAtomicWriteValidationFailureLeavesOriginal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "record.yaml")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	reject := errors.New("rejected")
	err := AtomicWrite(path, []byte("new"), func([]byte) error { return reject })
	if !errors.Is(err, reject) {
		t.Fatalf("expected validation error, got %v", err)
	}
	got, _ := os.ReadFile(path)
	if string(got) != "original" {
		t.Fatalf("original overwritten: %q", got)
	}
	entries, _ := os.ReadDir(filepath.Dir(path))
	if len(entries) != 1 {
		t.Fatalf("expected temp file cleaned up, found %d entries", len(entries))
	}
}

func TestMoveDir(t *testing.T) {
	root := t.TempDir()
	src := filepath.Join(root, "Pfam-M_000001")
	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(src, "SEED"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	dst := filepath.Join(root, "FAILED", "Pfam-M_000001")
	if err := MoveDir(src, dst); err != nil {
		t.Fatal(err)
	}
	if DirExists(src) {
		t.Fatal("source still exists after move")
	}
	if !NonEmpty(filepath.Join(dst, "SEED")) {
		t.Fatal("moved content missing")
	}

	if err := os.MkdirAll(src, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := MoveDir(src, dst); err == nil {
		t.Fatal("expected error when destination exists")
	}
}

func TestGroupWritable(t *testing.T) {
	root := t.TempDir()
	sub := filepath.Join(root, "fam")
	if err := os.MkdirAll(sub, 0o755); err != nil {
		t.Fatal(err)
	}
	file := filepath.Join(sub, "DESC")
	if err := os.WriteFile(file, []byte("ID   x\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := GroupWritable(sub); err != nil {
		t.Fatal(err)
	}
	for _, path := range []string{sub, file} {
		info, err := os.Stat(path)
		if err != nil {
			t.Fatal(err)
		}
		if info.Mode().Perm()&0o020 == 0 {
			t.Fatalf("%s not group writable: %o", path, info.Mode().Perm())
		}
	}
}
