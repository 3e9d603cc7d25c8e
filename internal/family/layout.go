package family

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/gofrs/flock"

	"famforge/internal/fileutil"
	"famforge/internal/services"
)

const (
	claimLockFile   = ".famforge-claim.lock"
	claimRetryDelay = 50 * time.Millisecond
)

// ErrExists reports that a family directory already exists somewhere under
// the aligned root.
var ErrExists = errors.New("family already exists")

// Layout maps family identifiers to directories under the aligned root.
type Layout struct {
	Root string
	// KeepDone leaves successfully built families in the active root instead
	// of moving them under DONE.
	KeepDone bool
	now      func() time.Time
}

// NewLayout returns a layout rooted at root.
func NewLayout(root string, keepDone bool) *Layout {
	return &Layout{Root: root, KeepDone: keepDone, now: time.Now}
}

func (l *Layout) clock() time.Time {
	if l.now == nil {
		return time.Now()
	}
	return l.now()
}

// ActiveDir is the directory of a family that has not reached a terminal
// disposition.
func (l *Layout) ActiveDir(id string) string {
	return filepath.Join(l.Root, id)
}

// DirFor returns where a family with disposition d belongs.
func (l *Layout) DirFor(id string, d Disposition) string {
	if d == Pending || (d == Done && l.KeepDone) || !d.Terminal() {
		return l.ActiveDir(id)
	}
	return filepath.Join(l.Root, d.DirName(), id)
}

// Locate searches the active root and every disposition directory for id.
// The returned disposition reflects the directory the family was found in.
func (l *Layout) Locate(id string) (string, Disposition, bool) {
	if dir := l.ActiveDir(id); fileutil.DirExists(dir) {
		return dir, Pending, true
	}
	for _, d := range TerminalDispositions() {
		dir := filepath.Join(l.Root, d.DirName(), id)
		if fileutil.DirExists(dir) {
			return dir, d, true
		}
	}
	return "", "", false
}

// Exists reports whether id has a directory anywhere under the root.
func (l *Layout) Exists(id string) bool {
	_, _, ok := l.Locate(id)
	return ok
}

// Load returns the record of id together with its current directory. A
// directory without a record (created before records existed, or by hand)
// yields a synthesized record whose disposition matches the location.
func (l *Layout) Load(id string) (*Record, string, error) {
	dir, located, ok := l.Locate(id)
	if !ok {
		return nil, "", services.Wrap(services.ErrNotFound, "family", "load", id, nil)
	}
	rec, err := ReadRecord(dir)
	if errors.Is(err, os.ErrNotExist) {
		rec = &Record{Family: id, Disposition: located}
		if located == Pending {
			rec.Stage = StageLiftover
		} else {
			rec.Stage = StageComplete
		}
		return rec, dir, nil
	}
	if err != nil {
		return nil, "", err
	}
	if rec.Family == "" {
		rec.Family = id
	}
	return rec, dir, nil
}

// Save persists rec in the directory the family currently occupies.
func (l *Layout) Save(rec *Record) error {
	dir, _, ok := l.Locate(rec.Family)
	if !ok {
		return services.Wrap(services.ErrNotFound, "family", "save", rec.Family, nil)
	}
	rec.UpdatedAt = l.clock().UTC()
	return WriteRecord(dir, rec)
}

// Claim creates the active directory and initial record for id. It fails
// with ErrExists when the family already has a directory in any location.
func (l *Layout) Claim(ctx context.Context, id, cluster, runID string) (*Record, string, error) {
	var rec *Record
	dir := l.ActiveDir(id)
	err := l.withClaimLock(ctx, func() error {
		if l.Exists(id) {
			return ErrExists
		}
		if err := os.MkdirAll(dir, 0o775); err != nil {
			return fmt.Errorf("create family directory: %w", err)
		}
		rec = NewRecord(id, cluster, runID, l.clock())
		return WriteRecord(dir, rec)
	})
	if err != nil {
		return nil, "", err
	}
	return rec, dir, nil
}

// Recreate removes any existing directory for id and claims it afresh.
func (l *Layout) Recreate(ctx context.Context, id, cluster, runID string) (*Record, string, error) {
	err := l.withClaimLock(ctx, func() error {
		if dir, _, ok := l.Locate(id); ok {
			if err := os.RemoveAll(dir); err != nil {
				return fmt.Errorf("remove previous family directory: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return nil, "", err
	}
	return l.Claim(ctx, id, cluster, runID)
}

func (l *Layout) withClaimLock(ctx context.Context, fn func() error) error {
	if err := os.MkdirAll(l.Root, 0o775); err != nil {
		return fmt.Errorf("create aligned root: %w", err)
	}
	lock := flock.New(filepath.Join(l.Root, claimLockFile))
	ok, err := lock.TryLockContext(ctx, claimRetryDelay)
	if err != nil {
		return fmt.Errorf("acquire claim lock: %w", err)
	}
	if !ok {
		return fmt.Errorf("acquire claim lock: %w", ctx.Err())
	}
	defer func() { _ = lock.Unlock() }()
	return fn()
}

// Transition records the new disposition and then moves the directory to the
// disposition's location. The record is written before the move so that an
// interrupted move can be finished by Reconcile.
func (l *Layout) Transition(rec *Record, to Disposition, note string) (string, error) {
	from, _, ok := l.Locate(rec.Family)
	if !ok {
		return "", services.Wrap(services.ErrNotFound, "family", "transition", rec.Family, nil)
	}
	now := l.clock().UTC()
	rec.Disposition = to
	if to == Failed && note != "" {
		rec.FailureReason = note
	}
	if to == Done {
		rec.Stage = StageComplete
	}
	rec.UpdatedAt = now
	rec.History = append(rec.History, Event{At: now, Stage: rec.Stage, Disposition: to, Note: note})
	if err := WriteRecord(from, rec); err != nil {
		return "", err
	}

	if l.placed(from, rec.Family, to) {
		return from, nil
	}
	target := l.DirFor(rec.Family, to)
	if err := fileutil.MoveDir(from, target); err != nil {
		return from, fmt.Errorf("move family %s to %s: %w", rec.Family, target, err)
	}
	return target, nil
}

// placed reports whether dir is an acceptable location for a family with
// disposition d. Done families may sit under DONE even when KeepDone is set.
func (l *Layout) placed(dir, id string, d Disposition) bool {
	dir = filepath.Clean(dir)
	if dir == filepath.Clean(l.DirFor(id, d)) {
		return true
	}
	return d == Done && dir == filepath.Join(l.Root, d.DirName(), id)
}

// Reconcile finishes moves that were interrupted after the record was
// written. It returns the families it moved.
func (l *Layout) Reconcile() ([]string, error) {
	ids, err := l.list(l.Root)
	if err != nil {
		return nil, err
	}
	for _, d := range TerminalDispositions() {
		more, err := l.list(filepath.Join(l.Root, d.DirName()))
		if err != nil {
			return nil, err
		}
		ids = append(ids, more...)
	}

	var moved []string
	var errs []error
	for _, id := range ids {
		dir, _, ok := l.Locate(id)
		if !ok {
			continue
		}
		rec, err := ReadRecord(dir)
		if err != nil {
			continue
		}
		if l.placed(dir, id, rec.Disposition) {
			continue
		}
		if err := fileutil.MoveDir(dir, l.DirFor(id, rec.Disposition)); err != nil {
			errs = append(errs, fmt.Errorf("reconcile %s: %w", id, err))
			continue
		}
		moved = append(moved, id)
	}
	sort.Strings(moved)
	return moved, errors.Join(errs...)
}

// List returns the families located under disposition d, sorted.
func (l *Layout) List(d Disposition) ([]string, error) {
	if d == Pending {
		return l.list(l.Root)
	}
	return l.list(filepath.Join(l.Root, d.DirName()))
}

func (l *Layout) list(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var ids []string
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() || strings.HasPrefix(name, ".") || isDispositionDir(name) {
			continue
		}
		ids = append(ids, name)
	}
	sort.Strings(ids)
	return ids, nil
}

func isDispositionDir(name string) bool {
	for _, dir := range dispositionDirs {
		if name == dir {
			return true
		}
	}
	return false
}
