package pipeline

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"famforge/internal/family"
	"famforge/internal/fileutil"
	"famforge/internal/logging"
	"famforge/internal/services"
	"famforge/internal/toolexec"
)

// Start claims a new family directory, builds its seed alignment, and
// launches the lift-over job. A nil record with family.ErrExists means the
// family was already claimed or processed. Conversion and tool failures move
// the family to FAILED and are reported through the returned StepResult;
// the error is reserved for problems that must stop the run.
func (p *Pipeline) Start(ctx context.Context, id, cluster, runID string) (*family.Record, StepResult, error) {
	ctx, logger := p.familyContext(ctx, id, family.StageAlignment)
	if !fileutil.NonEmpty(cluster) {
		return nil, StepResult{}, services.Wrap(services.ErrNotFound, "pipeline", "start",
			fmt.Sprintf("cluster file %s", cluster), nil)
	}

	rec, dir, err := p.layout.Claim(ctx, id, cluster, runID)
	if err != nil {
		return nil, StepResult{}, err
	}
	logger.Info("family claimed",
		logging.String(logging.FieldEventType, "family_claimed"),
		logging.String("cluster", cluster),
		logging.String("dir", dir),
	)
	return p.begin(ctx, rec, dir)
}

func (p *Pipeline) begin(ctx context.Context, rec *family.Record, dir string) (*family.Record, StepResult, error) {
	if err := p.BuildAlignment(ctx, rec, dir); err != nil {
		if services.IsFatalRun(err) || ctx.Err() != nil {
			return rec, StepResult{}, err
		}
		result, failErr := p.fail(ctx, rec, family.StageAlignment, 0, err.Error())
		return rec, result, failErr
	}
	return rec, StepResult{Family: rec.Family, Stage: family.StageLiftover, Action: Advance}, nil
}

// BuildAlignment runs the alignment and Stockholm conversion tools inside
// dir, then launches the lift-over job and moves the record to the
// lift-over stage.
func (p *Pipeline) BuildAlignment(ctx context.Context, rec *family.Record, dir string) error {
	ctx, logger := p.familyContext(ctx, rec.Family, family.StageAlignment)
	vars := p.Vars(rec, dir)

	if !fileutil.NonEmpty(rec.Cluster) {
		return services.Wrap(services.ErrNotFound, "pipeline", "build alignment",
			fmt.Sprintf("cluster file %s", rec.Cluster), nil)
	}

	start := p.now()
	if _, err := p.exec.Run(ctx, toolexec.Expand(p.cfg.Tools.CreateAlignment, vars)); err != nil {
		return services.Wrap(services.ErrExternalTool, "pipeline", "create alignment", rec.Family, err)
	}
	logger.Info("alignment created",
		logging.String(logging.FieldEventType, "alignment_created"),
		logging.Duration(logging.FieldDuration, p.now().Sub(start)),
	)

	if err := p.convertToStockholm(ctx, vars); err != nil {
		return err
	}

	result, err := p.liftover.Launch(ctx, vars)
	if err != nil {
		if result.ExitCode < 0 || errors.Is(err, services.ErrConfiguration) {
			return services.Wrap(services.ErrExternalTool, "pipeline", "launch liftover", rec.Family, err)
		}
		logging.WarnWithContext(logger, "liftover launcher exited non-zero; polling its log", "liftover_launch_nonzero",
			logging.Error(err),
			logging.String(logging.FieldImpact, "stage outcome is decided by the liftover log"),
		)
	}

	rec.EnterStage(family.StageLiftover, p.now())
	if err := family.WriteRecord(dir, rec); err != nil {
		return fmt.Errorf("persist liftover stage: %w", err)
	}
	logger.Info("liftover launched", logging.String(logging.FieldEventType, "liftover_launched"))
	return nil
}

// convertToStockholm reruns the conversion tool until the seed file is
// non-empty, at most conversion_attempts times with a doubling backoff.
func (p *Pipeline) convertToStockholm(ctx context.Context, vars toolexec.Vars) error {
	_, logger := p.familyContext(ctx, vars.Family, family.StageAlignment)
	seed := filepath.Join(vars.Dir, vars.Seed())
	attempts := max(p.cfg.Workflow.ConversionAttempts, 1)
	backoff := time.Duration(p.cfg.Workflow.ConversionBackoff) * time.Second

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		_, lastErr = p.exec.Run(ctx, toolexec.Expand(p.cfg.Tools.ToStockholm, vars))
		if fileutil.NonEmpty(seed) {
			return nil
		}
		if attempt == attempts {
			break
		}
		logger.Debug("seed alignment empty; retrying conversion",
			logging.Int("attempt", attempt),
			logging.Duration("backoff", backoff),
		)
		if err := p.sleep(ctx, backoff); err != nil {
			return err
		}
		backoff *= 2
	}
	msg := fmt.Sprintf("%s still empty after %d conversion attempts", vars.Seed(), attempts)
	return services.Wrap(services.ErrConversion, "pipeline", "convert alignment", msg, lastErr)
}
