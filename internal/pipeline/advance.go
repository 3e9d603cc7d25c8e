package pipeline

import (
	"context"
	"errors"
	"fmt"
	"os"

	"famforge/internal/family"
	"famforge/internal/logging"
	"famforge/internal/services"
	"famforge/internal/stagerun"
	"famforge/internal/toolexec"
)

const reasonStageTimedOut = "stage timed out"

// load returns the active record of id, or a Drop result when the family is
// gone or no longer pending.
func (p *Pipeline) load(id string, stage family.Stage) (*family.Record, string, *StepResult, error) {
	rec, dir, err := p.layout.Load(id)
	if err != nil {
		if errors.Is(err, services.ErrNotFound) {
			return nil, "", &StepResult{Family: id, Stage: stage, Action: Drop, Reason: "family directory not found"}, nil
		}
		return nil, "", nil, err
	}
	if rec.Disposition != family.Pending {
		return nil, "", &StepResult{Family: id, Stage: stage, Action: Drop, Disposition: rec.Disposition,
			Reason: "family already " + string(rec.Disposition)}, nil
	}
	return rec, dir, nil, nil
}

// AdvanceLiftover performs one lift-over pass for id.
func (p *Pipeline) AdvanceLiftover(ctx context.Context, id string) (StepResult, error) {
	rec, dir, drop, err := p.load(id, family.StageLiftover)
	if err != nil || drop != nil {
		return deref(drop), err
	}
	ctx, logger := p.familyContext(ctx, id, family.StageLiftover)
	vars := p.Vars(rec, dir)

	if p.stageTimedOut(rec) {
		return p.fail(ctx, rec, family.StageLiftover, stagerun.FatalFailure, reasonStageTimedOut)
	}

	attempts := rec.AttemptsFor(family.StageLiftover)
	outcome, err := p.liftover.Run(ctx, vars, attempts)
	if err != nil {
		return StepResult{}, fmt.Errorf("liftover pass for %s: %w", id, err)
	}

	if outcome.Verdict == stagerun.Succeeded {
		if err := p.PrepareSeed(ctx, vars); err != nil {
			if ctx.Err() != nil {
				return StepResult{}, fmt.Errorf("prepare seed for %s: %w", id, ctx.Err())
			}
			logging.WarnWithContext(logger, "seed preparation failed", "seed_failed",
				logging.Error(err),
				logging.String(logging.FieldImpact, "liftover will be retried or the family failed"),
			)
			// Remove the lifted alignment so a relaunched lift-over is not
			// short-circuited by the stale artifact.
			_ = os.Remove(p.liftover.ArtifactPath(vars))
			if outcome, err = p.liftover.Fail(ctx, vars, attempts, err.Error()); err != nil {
				return StepResult{}, fmt.Errorf("liftover retry for %s: %w", id, err)
			}
		}
	}

	rec.SetAttempts(family.StageLiftover, outcome.Attempts)
	switch outcome.Verdict {
	case stagerun.Pending:
		return StepResult{Family: id, Stage: family.StageLiftover, Action: Requeue, Verdict: outcome.Verdict}, nil
	case stagerun.RetryableFailure:
		if err := p.layout.Save(rec); err != nil {
			return StepResult{}, err
		}
		return StepResult{Family: id, Stage: family.StageLiftover, Action: Requeue, Verdict: outcome.Verdict, Reason: outcome.Reason}, nil
	case stagerun.FatalFailure:
		return p.fail(ctx, rec, family.StageLiftover, outcome.Verdict, outcome.Reason)
	}

	logger.Info("liftover complete; launching profile build",
		logging.String(logging.FieldEventType, "liftover_complete"),
		logging.Duration(logging.FieldDuration, rec.StageAge(p.now())),
	)
	if res, err := p.build.Launch(ctx, vars); err != nil {
		if ctx.Err() != nil {
			return StepResult{}, fmt.Errorf("submit profile build for %s: %w", id, ctx.Err())
		}
		reason := fmt.Sprintf("profile build submission failed (exit code %d)", res.ExitCode)
		if res.Stderr != "" {
			reason += ": " + res.Stderr
		}
		return p.fail(ctx, rec, family.StageBuild, stagerun.FatalFailure, reason)
	}
	rec.EnterStage(family.StageBuild, p.now())
	if err := p.layout.Save(rec); err != nil {
		return StepResult{}, err
	}
	return StepResult{Family: id, Stage: family.StageBuild, Action: Advance, Verdict: stagerun.Succeeded}, nil
}

// AdvanceBuild performs one profile-build pass for id. On success the
// post-processing steps run and the family is marked done.
func (p *Pipeline) AdvanceBuild(ctx context.Context, id string) (StepResult, error) {
	rec, dir, drop, err := p.load(id, family.StageBuild)
	if err != nil || drop != nil {
		return deref(drop), err
	}
	ctx, logger := p.familyContext(ctx, id, family.StageBuild)
	vars := p.Vars(rec, dir)

	if p.stageTimedOut(rec) {
		return p.fail(ctx, rec, family.StageBuild, stagerun.FatalFailure, reasonStageTimedOut)
	}

	attempts := rec.AttemptsFor(family.StageBuild)
	outcome, err := p.build.Run(ctx, vars, attempts)
	if err != nil {
		return StepResult{}, fmt.Errorf("build pass for %s: %w", id, err)
	}
	if outcome.Verdict == stagerun.Succeeded && !p.buildArtifactPresent(vars) {
		if outcome, err = p.build.Fail(ctx, vars, attempts, "build finished without "+p.cfg.Stages.Build.Artifact); err != nil {
			return StepResult{}, fmt.Errorf("build retry for %s: %w", id, err)
		}
	}

	rec.SetAttempts(family.StageBuild, outcome.Attempts)
	switch outcome.Verdict {
	case stagerun.Pending:
		return StepResult{Family: id, Stage: family.StageBuild, Action: Requeue, Verdict: outcome.Verdict}, nil
	case stagerun.RetryableFailure:
		if err := p.layout.Save(rec); err != nil {
			return StepResult{}, err
		}
		return StepResult{Family: id, Stage: family.StageBuild, Action: Requeue, Verdict: outcome.Verdict, Reason: outcome.Reason}, nil
	case stagerun.FatalFailure:
		return p.fail(ctx, rec, family.StageBuild, outcome.Verdict, outcome.Reason)
	}

	logger.Info("profile build complete",
		logging.String(logging.FieldEventType, "build_complete"),
		logging.Duration(logging.FieldDuration, rec.StageAge(p.now())),
	)
	return p.complete(ctx, rec, dir)
}

func (p *Pipeline) buildArtifactPresent(vars toolexec.Vars) bool {
	info, err := os.Stat(p.build.ArtifactPath(vars))
	return err == nil && info.Size() > 0
}

// complete runs post-processing and marks the family done.
func (p *Pipeline) complete(ctx context.Context, rec *family.Record, dir string) (StepResult, error) {
	ctx, logger := p.familyContext(ctx, rec.Family, family.StagePostProcess)
	rec.EnterStage(family.StagePostProcess, p.now())
	if err := family.WriteRecord(dir, rec); err != nil {
		return StepResult{}, err
	}

	warnings, err := p.PostProcess(ctx, p.Vars(rec, dir))
	if err != nil {
		return StepResult{}, err
	}
	for _, w := range warnings {
		rec.AddWarning(w)
	}

	newDir, err := p.layout.Transition(rec, family.Done, "")
	if err != nil {
		return StepResult{}, err
	}
	p.fixPermissions(logger, newDir)
	logger.Info("family built",
		logging.String(logging.FieldEventType, "family_done"),
		logging.String("dir", newDir),
		logging.Int("warnings", len(warnings)),
	)
	return StepResult{
		Family:      rec.Family,
		Stage:       family.StagePostProcess,
		Action:      Terminal,
		Verdict:     stagerun.Succeeded,
		Disposition: family.Done,
		Warnings:    warnings,
	}, nil
}

func deref(r *StepResult) StepResult {
	if r == nil {
		return StepResult{}
	}
	return *r
}
