package coordinator

import (
	"context"
	"log/slog"
	"slices"
	"sync"
	"time"

	"famforge/internal/family"
	"famforge/internal/logging"
	"famforge/internal/pipeline"
)

// Summary is the outcome of one drain run.
type Summary struct {
	RunID    string
	Started  time.Time
	Finished time.Time
	Done     []string
	// Failed lists failed families by the stage they failed in.
	Failed   map[family.Stage][]string
	Warnings map[string][]string
	Dropped  int
}

// FailedAt returns the families that failed in stage, sorted.
func (s Summary) FailedAt(stage family.Stage) []string {
	return s.Failed[stage]
}

// FailedCount returns the number of failed families across stages.
func (s Summary) FailedCount() int {
	n := 0
	for _, ids := range s.Failed {
		n += len(ids)
	}
	return n
}

// Terminal returns the number of families that reached a terminal
// disposition.
func (s Summary) Terminal() int {
	return len(s.Done) + s.FailedCount()
}

type tally struct {
	mu       sync.Mutex
	runID    string
	started  time.Time
	terminal map[string]pipeline.StepResult
	dropped  int
}

func newTally(runID string, started time.Time) *tally {
	return &tally{runID: runID, started: started, terminal: make(map[string]pipeline.StepResult)}
}

func (t *tally) record(result pipeline.StepResult) {
	if result.Family == "" || result.Action != pipeline.Terminal {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.terminal[result.Family] = result
}

func (t *tally) drop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dropped++
}

func (t *tally) summary(now time.Time) Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := Summary{
		RunID:    t.runID,
		Started:  t.started,
		Finished: now,
		Failed:   make(map[family.Stage][]string),
		Warnings: make(map[string][]string),
		Dropped:  t.dropped,
	}
	for id, result := range t.terminal {
		if result.Disposition == family.Done {
			s.Done = append(s.Done, id)
		} else {
			s.Failed[result.Stage] = append(s.Failed[result.Stage], id)
		}
		if len(result.Warnings) > 0 {
			s.Warnings[id] = append([]string(nil), result.Warnings...)
		}
	}
	slices.Sort(s.Done)
	for stage := range s.Failed {
		slices.Sort(s.Failed[stage])
	}
	return s
}

func (c *Coordinator) logSummary(s Summary) {
	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "run_summary"),
		logging.Int("done", len(s.Done)),
		logging.Int("failed", s.FailedCount()),
		logging.Int("warned", len(s.Warnings)),
		logging.Int("dropped", s.Dropped),
		logging.Duration(logging.FieldDuration, s.Finished.Sub(s.Started)),
	}
	for _, stage := range family.Stages() {
		if ids := s.Failed[stage]; len(ids) > 0 {
			attrs = append(attrs, logging.Strings("failed_"+string(stage), ids))
		}
	}
	level := slog.LevelInfo
	if s.FailedCount() > 0 {
		level = slog.LevelWarn
	}
	c.logger.Log(context.Background(), level, "drain finished", logging.Args(attrs...)...)
}
