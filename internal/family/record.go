package family

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"famforge/internal/fileutil"
)

// RecordFile is the name of the per-family state file.
const RecordFile = ".family.yaml"

// Attempts holds persisted failure counters per asynchronous stage.
type Attempts struct {
	Liftover int `yaml:"liftover"`
	Build    int `yaml:"build"`
}

// Event is one entry of a family's history.
type Event struct {
	At          time.Time   `yaml:"at"`
	Stage       Stage       `yaml:"stage,omitempty"`
	Disposition Disposition `yaml:"disposition,omitempty"`
	Note        string      `yaml:"note,omitempty"`
}

// Record is the persisted state of one family.
type Record struct {
	Family         string      `yaml:"family"`
	Cluster        string      `yaml:"cluster,omitempty"`
	Disposition    Disposition `yaml:"disposition"`
	Stage          Stage       `yaml:"stage"`
	Attempts       Attempts    `yaml:"attempts"`
	StageStartedAt time.Time   `yaml:"stage_started_at,omitempty"`
	FailureReason  string      `yaml:"failure_reason,omitempty"`
	Warnings       []string    `yaml:"warnings,omitempty"`
	RunID          string      `yaml:"run_id,omitempty"`
	CreatedAt      time.Time   `yaml:"created_at"`
	UpdatedAt      time.Time   `yaml:"updated_at"`
	History        []Event     `yaml:"history,omitempty"`
}

// NewRecord returns a pending record at the alignment stage.
func NewRecord(id, cluster, runID string, now time.Time) *Record {
	now = now.UTC()
	rec := &Record{
		Family:      id,
		Cluster:     cluster,
		Disposition: Pending,
		RunID:       runID,
		CreatedAt:   now,
	}
	rec.EnterStage(StageAlignment, now)
	return rec
}

// EnterStage moves the record to stage and restarts the stage clock.
func (r *Record) EnterStage(stage Stage, now time.Time) {
	now = now.UTC()
	r.Stage = stage
	r.StageStartedAt = now
	r.UpdatedAt = now
	r.History = append(r.History, Event{At: now, Stage: stage})
}

// AttemptsFor returns the persisted attempt count for an asynchronous stage.
func (r *Record) AttemptsFor(stage Stage) int {
	switch stage {
	case StageLiftover:
		return r.Attempts.Liftover
	case StageBuild:
		return r.Attempts.Build
	default:
		return 0
	}
}

// SetAttempts stores the attempt count for stage. Counts never decrease.
func (r *Record) SetAttempts(stage Stage, n int) {
	switch stage {
	case StageLiftover:
		r.Attempts.Liftover = max(r.Attempts.Liftover, n)
	case StageBuild:
		r.Attempts.Build = max(r.Attempts.Build, n)
	}
}

// AddWarning appends a warning to the record.
func (r *Record) AddWarning(msg string) {
	r.Warnings = append(r.Warnings, msg)
}

// StageAge reports how long the current stage has been running.
func (r *Record) StageAge(now time.Time) time.Duration {
	if r.StageStartedAt.IsZero() {
		return 0
	}
	return now.Sub(r.StageStartedAt)
}

func recordPath(dir string) string {
	return filepath.Join(dir, RecordFile)
}

// ReadRecord loads the record stored in dir.
func ReadRecord(dir string) (*Record, error) {
	data, err := os.ReadFile(recordPath(dir))
	if err != nil {
		return nil, err
	}
	var rec Record
	if err := yaml.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode %s: %w", recordPath(dir), err)
	}
	if rec.Disposition == "" {
		rec.Disposition = Pending
	}
	return &rec, nil
}

// WriteRecord persists rec into dir atomically.
func WriteRecord(dir string, rec *Record) error {
	if rec == nil {
		return errors.New("nil family record")
	}
	data, err := yaml.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode family record: %w", err)
	}
	return fileutil.AtomicWrite(recordPath(dir), data, func(content []byte) error {
		var check Record
		return yaml.Unmarshal(content, &check)
	})
}
