package queue

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// List names one of the shared work lists.
type List string

const (
	// LiftoverIn holds families whose lift-over job is running.
	LiftoverIn List = "lift_over_in"
	// LiftoverDone holds families whose profile build job is running.
	LiftoverDone List = "lift_over_done"
	// PfamIn marks families currently claimed by a build worker.
	PfamIn List = "pfam_in"
)

// Lists returns every list in pipeline order.
func Lists() []List {
	return []List{LiftoverIn, LiftoverDone, PfamIn}
}

// ParseList accepts a list name.
func ParseList(value string) (List, error) {
	for _, l := range Lists() {
		if strings.EqualFold(strings.TrimSpace(value), string(l)) {
			return l, nil
		}
	}
	return "", fmt.Errorf("unknown queue list %q", value)
}

// Entry is one queued family.
type Entry struct {
	ID         int64
	List       List
	Family     string
	Polls      int
	NotBefore  time.Time
	EnqueuedAt time.Time
}

const entryColumns = "id, list, family, polls, not_before, enqueued_at"

// PushTail appends family to list. It returns false when the family is
// already queued on that list.
func (s *Store) PushTail(ctx context.Context, list List, family string) (bool, error) {
	return s.push(ctx, list, family, 0, time.Time{})
}

// Requeue appends family to list again after a pass that left it pending.
// The entry becomes eligible for PopReady once delay has elapsed.
func (s *Store) Requeue(ctx context.Context, list List, family string, polls int, delay time.Duration) (bool, error) {
	var notBefore time.Time
	if delay > 0 {
		notBefore = s.clock().Add(delay)
	}
	return s.push(ctx, list, family, polls, notBefore)
}

func (s *Store) push(ctx context.Context, list List, family string, polls int, notBefore time.Time) (bool, error) {
	family = strings.TrimSpace(family)
	if family == "" {
		return false, errors.New("queue push: family required")
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO queue_entries (list, family, polls, not_before, enqueued_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (list, family) DO NOTHING`,
		string(list), family, polls, toMillis(notBefore), toMillis(s.clock()),
	)
	if err != nil {
		return false, fmt.Errorf("queue push %s: %w", list, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// PopHead removes and returns the oldest entry of list regardless of its
// delay. ok is false when the list is empty.
func (s *Store) PopHead(ctx context.Context, list List) (Entry, bool, error) {
	return s.pop(ctx, list, maxMillis)
}

// PopReady removes and returns the oldest entry of list whose delay has
// elapsed. ok is false when no entry is ready.
func (s *Store) PopReady(ctx context.Context, list List) (Entry, bool, error) {
	return s.pop(ctx, list, toMillis(s.clock()))
}

const maxMillis = int64(^uint64(0) >> 1)

func (s *Store) pop(ctx context.Context, list List, readyBy int64) (Entry, bool, error) {
	ctx = ensureContext(ctx)
	var (
		entry Entry
		found bool
	)
	err := retryOnBusy(ctx, func() error {
		row := s.db.QueryRowContext(ctx,
			`DELETE FROM queue_entries
			 WHERE id = (
			     SELECT id FROM queue_entries
			     WHERE list = ? AND not_before <= ?
			     ORDER BY id LIMIT 1
			 )
			 RETURNING `+entryColumns,
			string(list), readyBy,
		)
		var scanErr error
		entry, scanErr = scanEntry(row)
		if errors.Is(scanErr, sql.ErrNoRows) {
			found = false
			return nil
		}
		if scanErr != nil {
			return scanErr
		}
		found = true
		return nil
	})
	if err != nil {
		return Entry{}, false, fmt.Errorf("queue pop %s: %w", list, err)
	}
	return entry, found, nil
}

// Remove deletes family from list. It returns false when it was not queued.
func (s *Store) Remove(ctx context.Context, list List, family string) (bool, error) {
	res, err := s.execWithRetry(ctx, `DELETE FROM queue_entries WHERE list = ? AND family = ?`, string(list), family)
	if err != nil {
		return false, fmt.Errorf("queue remove %s: %w", list, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Wake makes every queued entry of family immediately ready.
func (s *Store) Wake(ctx context.Context, family string) (int64, error) {
	res, err := s.execWithRetry(ctx,
		`UPDATE queue_entries SET not_before = 0 WHERE family = ? AND not_before > ?`,
		family, toMillis(s.clock()))
	if err != nil {
		return 0, fmt.Errorf("queue wake %s: %w", family, err)
	}
	return res.RowsAffected()
}

// Len returns the number of entries on list.
func (s *Store) Len(ctx context.Context, list List) (int, error) {
	ctx = ensureContext(ctx)
	var n int
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx, `SELECT COUNT(1) FROM queue_entries WHERE list = ?`, string(list)).Scan(&n)
	})
	if err != nil {
		return 0, fmt.Errorf("queue len %s: %w", list, err)
	}
	return n, nil
}

// Entries returns the entries of list in FIFO order.
func (s *Store) Entries(ctx context.Context, list List) ([]Entry, error) {
	ctx = ensureContext(ctx)
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+entryColumns+` FROM queue_entries WHERE list = ? ORDER BY id`, string(list))
	if err != nil {
		return nil, fmt.Errorf("queue entries %s: %w", list, err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// NextDue returns the earliest not_before across lists. ok is false when
// all lists are empty.
func (s *Store) NextDue(ctx context.Context, lists ...List) (time.Time, bool, error) {
	if len(lists) == 0 {
		lists = Lists()
	}
	ctx = ensureContext(ctx)
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(lists)), ",")
	args := make([]any, 0, len(lists))
	for _, l := range lists {
		args = append(args, string(l))
	}
	var due sql.NullInt64
	err := retryOnBusy(ctx, func() error {
		return s.db.QueryRowContext(ctx,
			`SELECT MIN(not_before) FROM queue_entries WHERE list IN (`+placeholders+`)`, args...).Scan(&due)
	})
	if err != nil {
		return time.Time{}, false, fmt.Errorf("queue next due: %w", err)
	}
	if !due.Valid {
		return time.Time{}, false, nil
	}
	return fromMillis(due.Int64), true, nil
}

// Clear removes every entry from the given lists, or from all lists when
// none are named.
func (s *Store) Clear(ctx context.Context, lists ...List) (int64, error) {
	if len(lists) == 0 {
		lists = Lists()
	}
	var total int64
	for _, l := range lists {
		res, err := s.execWithRetry(ctx, `DELETE FROM queue_entries WHERE list = ?`, string(l))
		if err != nil {
			return total, fmt.Errorf("queue clear %s: %w", l, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// Stats returns the number of entries on every list.
func (s *Store) Stats(ctx context.Context) (map[List]int, error) {
	ctx = ensureContext(ctx)
	stats := make(map[List]int, len(Lists()))
	for _, l := range Lists() {
		stats[l] = 0
	}
	rows, err := s.db.QueryContext(ctx, `SELECT list, COUNT(1) FROM queue_entries GROUP BY list`)
	if err != nil {
		return nil, fmt.Errorf("queue stats: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			list  string
			count int
		)
		if err := rows.Scan(&list, &count); err != nil {
			return nil, err
		}
		stats[List(list)] = count
	}
	return stats, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (Entry, error) {
	var (
		entry     Entry
		list      string
		notBefore int64
		enqueued  int64
	)
	if err := row.Scan(&entry.ID, &list, &entry.Family, &entry.Polls, &notBefore, &enqueued); err != nil {
		return Entry{}, err
	}
	entry.List = List(list)
	entry.NotBefore = fromMillis(notBefore)
	entry.EnqueuedAt = fromMillis(enqueued)
	return entry, nil
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
