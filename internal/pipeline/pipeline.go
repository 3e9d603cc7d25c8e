package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"famforge/internal/config"
	"famforge/internal/family"
	"famforge/internal/fileutil"
	"famforge/internal/logging"
	"famforge/internal/services"
	"famforge/internal/stagerun"
	"famforge/internal/toolexec"
)

// Action tells the caller what to do with a family after a pass.
type Action int

const (
	// Requeue means the stage is still running; check again later.
	Requeue Action = iota
	// Advance means the family moved on to the next asynchronous stage.
	Advance
	// Terminal means the family reached a terminal disposition.
	Terminal
	// Drop means the family is no longer active (moved by a curator or
	// finished elsewhere) and should be forgotten.
	Drop
)

func (a Action) String() string {
	switch a {
	case Requeue:
		return "requeue"
	case Advance:
		return "advance"
	case Terminal:
		return "terminal"
	case Drop:
		return "drop"
	default:
		return fmt.Sprintf("action(%d)", int(a))
	}
}

// StepResult reports the outcome of one pass over a family.
type StepResult struct {
	Family      string
	Stage       family.Stage
	Action      Action
	Verdict     stagerun.Verdict
	Disposition family.Disposition
	Reason      string
	Warnings    []string
}

// Pipeline drives families through the external tools.
type Pipeline struct {
	cfg      *config.Config
	layout   *family.Layout
	exec     toolexec.Executor
	liftover *stagerun.Runner
	build    *stagerun.Runner
	logger   *slog.Logger
	now      func() time.Time
	sleep    func(context.Context, time.Duration) error
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// WithClock overrides time.Now, mostly for stage timeout tests.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// New constructs a Pipeline for cfg.
func New(cfg *config.Config, exec toolexec.Executor, opts ...Option) (*Pipeline, error) {
	if cfg == nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "config required", nil)
	}
	if exec == nil {
		exec = toolexec.NewExecutor()
	}
	p := &Pipeline{
		cfg:    cfg,
		layout: family.NewLayout(cfg.Paths.AlignedRoot, !cfg.Workflow.MoveCompleted),
		exec:   exec,
		logger: logging.NewNop(),
		now:    time.Now,
		sleep:  sleepContext,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = logging.NewComponentLogger(p.logger, "pipeline")

	var err error
	p.liftover, err = stagerun.New(family.StageLiftover, cfg.Stages.Liftover, cfg.Tools.Liftover,
		cfg.Workflow.MaxAttempts, exec, stagerun.WithLogger(p.logger))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "liftover stage", err)
	}
	p.build, err = stagerun.New(family.StageBuild, cfg.Stages.Build, cfg.Tools.Build,
		cfg.Workflow.MaxAttempts, exec, stagerun.WithLogger(p.logger))
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "pipeline", "init", "build stage", err)
	}
	return p, nil
}

// Layout exposes the family directory layout.
func (p *Pipeline) Layout() *family.Layout {
	return p.layout
}

// Vars returns the tool template variables for a family located in dir.
func (p *Pipeline) Vars(rec *family.Record, dir string) toolexec.Vars {
	return toolexec.Vars{Family: rec.Family, Cluster: rec.Cluster, Dir: dir}
}

// PollDelay is the re-check delay after polls consecutive pending passes:
// poll_interval doubled per pass, capped at max_poll_interval.
func (p *Pipeline) PollDelay(polls int) time.Duration {
	base := time.Duration(p.cfg.Workflow.PollInterval) * time.Second
	limit := time.Duration(p.cfg.Workflow.MaxPollInterval) * time.Second
	if base <= 0 {
		return 0
	}
	delay := base
	for i := 0; i < polls && delay < limit; i++ {
		delay *= 2
	}
	if limit > 0 && delay > limit {
		delay = limit
	}
	return delay
}

func (p *Pipeline) familyContext(ctx context.Context, id string, stage family.Stage) (context.Context, *slog.Logger) {
	ctx = services.WithStage(services.WithFamily(ctx, id), string(stage))
	return ctx, logging.WithContext(ctx, p.logger)
}

// fail moves the family to FAILED and returns the terminal step result.
func (p *Pipeline) fail(ctx context.Context, rec *family.Record, stage family.Stage, verdict stagerun.Verdict, reason string) (StepResult, error) {
	_, logger := p.familyContext(ctx, rec.Family, stage)
	result := StepResult{
		Family:      rec.Family,
		Stage:       stage,
		Action:      Terminal,
		Verdict:     verdict,
		Disposition: family.Failed,
		Reason:      reason,
	}
	dir, err := p.layout.Transition(rec, family.Failed, reason)
	if err != nil {
		return result, fmt.Errorf("fail family %s: %w", rec.Family, err)
	}
	p.fixPermissions(logger, dir)
	logging.WarnWithContext(logger, "family failed", "family_failed",
		logging.String("reason", reason),
		logging.String("dir", dir),
		logging.String(logging.FieldImpact, "family moved to FAILED"),
		logging.String(logging.FieldErrorHint, "inspect the stage log in the family directory"),
	)
	return result, nil
}

func (p *Pipeline) fixPermissions(logger *slog.Logger, dir string) {
	if !p.cfg.Environment.GroupWritable || dir == "" {
		return
	}
	if err := fileutil.GroupWritable(dir); err != nil {
		logging.WarnWithContext(logger, "group permission fixup failed", "chmod_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "other curators may be unable to edit the family"),
		)
	}
}

// stageTimedOut reports whether rec has exceeded stage_timeout_hours.
func (p *Pipeline) stageTimedOut(rec *family.Record) bool {
	hours := p.cfg.Workflow.StageTimeoutHours
	if hours <= 0 {
		return false
	}
	return rec.StageAge(p.now()) > time.Duration(hours)*time.Hour
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
