package stagerun

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"famforge/internal/config"
	"famforge/internal/family"
	"famforge/internal/fileutil"
	"famforge/internal/joblog"
	"famforge/internal/logging"
	"famforge/internal/toolexec"
)

// Verdict is the outcome of one pass over a stage.
type Verdict int

const (
	Pending Verdict = iota
	Succeeded
	RetryableFailure
	FatalFailure
)

func (v Verdict) String() string {
	switch v {
	case Pending:
		return "pending"
	case Succeeded:
		return "success"
	case RetryableFailure:
		return "retryable_failure"
	case FatalFailure:
		return "fatal_failure"
	default:
		return fmt.Sprintf("verdict(%d)", int(v))
	}
}

// Outcome carries the verdict plus what the pass observed and did.
type Outcome struct {
	Verdict Verdict
	// Attempts is the failure count to persist after this pass.
	Attempts   int
	Log        joblog.LogRecord
	Relaunched bool
	Removed    []string
	Reason     string
}

// Runner applies the retry policy for one stage.
type Runner struct {
	stage       family.Stage
	contract    config.Stage
	tool        config.Tool
	maxAttempts int
	exec        toolexec.Executor
	watcher     joblog.Watcher
	logger      *slog.Logger
}

// Option configures a Runner.
type Option func(*Runner)

// WithWatcher replaces the text log watcher built from the stage contract.
func WithWatcher(w joblog.Watcher) Option {
	return func(r *Runner) {
		if w != nil {
			r.watcher = w
		}
	}
}

// WithLogger sets the logger used for stage events.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// New constructs a Runner for stage. tool is the command relaunched on retry.
func New(stage family.Stage, contract config.Stage, tool config.Tool, maxAttempts int, exec toolexec.Executor, opts ...Option) (*Runner, error) {
	if exec == nil {
		return nil, fmt.Errorf("stagerun %s: executor required", stage)
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	r := &Runner{
		stage:       stage,
		contract:    contract,
		tool:        tool,
		maxAttempts: maxAttempts,
		exec:        exec,
		logger:      logging.NewNop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.watcher == nil {
		w, err := joblog.NewTextWatcher(contract)
		if err != nil {
			return nil, fmt.Errorf("stagerun %s: %w", stage, err)
		}
		r.watcher = w
	}
	return r, nil
}

// Stage returns the stage this runner drives.
func (r *Runner) Stage() family.Stage {
	return r.stage
}

// ArtifactPath returns the success artifact of the stage for a family.
func (r *Runner) ArtifactPath(vars toolexec.Vars) string {
	return r.path(vars, r.contract.Artifact)
}

// LogPath returns the stage log of a family.
func (r *Runner) LogPath(vars toolexec.Vars) string {
	return r.path(vars, r.contract.LogFile)
}

func (r *Runner) path(vars toolexec.Vars, name string) string {
	name = vars.Expand(name)
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(vars.Dir, name)
}

// Launch invokes the stage's external command.
func (r *Runner) Launch(ctx context.Context, vars toolexec.Vars) (toolexec.Result, error) {
	cmd := toolexec.Expand(r.tool, vars)
	logging.WithContext(ctx, r.logger).Debug("launching stage command",
		logging.String(logging.FieldEventType, "stage_launch"),
		logging.String("command", cmd.String()),
	)
	return r.exec.Run(ctx, cmd)
}

// Run performs one pass for the family described by vars. attempts is the
// number of failures already recorded for this stage.
func (r *Runner) Run(ctx context.Context, vars toolexec.Vars, attempts int) (Outcome, error) {
	if fileutil.NonEmpty(r.ArtifactPath(vars)) {
		return Outcome{Verdict: Succeeded, Attempts: attempts}, nil
	}

	record, err := r.watcher.Inspect(r.LogPath(vars))
	if err != nil {
		return Outcome{Verdict: Pending, Attempts: attempts}, err
	}
	if !record.Present || !record.Finished {
		return Outcome{Verdict: Pending, Attempts: attempts, Log: record}, nil
	}
	if len(record.ErrorLines) == 0 {
		return Outcome{Verdict: Succeeded, Attempts: attempts, Log: record}, nil
	}

	if record.IsMemoryLimitError {
		return Outcome{
			Verdict:  FatalFailure,
			Attempts: attempts,
			Log:      record,
			Reason:   "memory limit exceeded",
		}, nil
	}

	outcome, err := r.Fail(ctx, vars, attempts, strings.Join(record.ErrorLines, "; "))
	if err != nil {
		return Outcome{Verdict: Pending, Attempts: attempts, Log: record}, err
	}
	outcome.Log = record
	return outcome, nil
}

// Fail applies the retry policy to a failure detected by the caller or by
// Run: while attempts remain, scratch files are removed and the command is
// relaunched; otherwise the failure is fatal. A cancelled ctx returns its
// error and leaves the attempt count and the family's files untouched.
func (r *Runner) Fail(ctx context.Context, vars toolexec.Vars, attempts int, reason string) (Outcome, error) {
	if err := ctx.Err(); err != nil {
		return Outcome{Verdict: Pending, Attempts: attempts}, err
	}
	logger := logging.WithContext(ctx, r.logger)
	if attempts >= r.maxAttempts-1 {
		return Outcome{
			Verdict:  FatalFailure,
			Attempts: attempts + 1,
			Reason:   fmt.Sprintf("failed after %d attempts: %s", attempts+1, reason),
		}, nil
	}

	removed, err := joblog.ClearScratch(vars.Dir, expandAll(vars, r.contract.Scratch))
	if err != nil {
		logging.WarnWithContext(logger, "scratch cleanup failed", "scratch_cleanup_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "retry may see stale files"),
		)
	}
	outcome := Outcome{
		Verdict:  RetryableFailure,
		Attempts: attempts + 1,
		Removed:  removed,
		Reason:   reason,
	}
	if _, err := r.Launch(ctx, vars); err != nil {
		if ctx.Err() != nil {
			return Outcome{Verdict: Pending, Attempts: attempts, Removed: removed}, ctx.Err()
		}
		outcome.Verdict = FatalFailure
		outcome.Reason = fmt.Sprintf("relaunch failed: %v", err)
		return outcome, nil
	}
	outcome.Relaunched = true
	logger.Info("stage failed; relaunched",
		logging.String(logging.FieldEventType, "stage_retry"),
		logging.Int("attempt", attempts+1),
		logging.String("reason", reason),
		logging.Int("scratch_removed", len(removed)),
	)
	return outcome, nil
}

func expandAll(vars toolexec.Vars, values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		out = append(out, vars.Expand(v))
	}
	return out
}
