package pipeline

import (
	"context"

	"famforge/internal/family"
	"famforge/internal/logging"
)

// RunSync builds a single family in-process: it recreates the family
// directory, builds the alignment, and then polls lift-over and build with
// the same step functions the coordinator uses until the family reaches a
// terminal disposition.
func (p *Pipeline) RunSync(ctx context.Context, id, cluster, runID string) (StepResult, error) {
	ctx, logger := p.familyContext(ctx, id, family.StageAlignment)
	rec, dir, err := p.layout.Recreate(ctx, id, cluster, runID)
	if err != nil {
		return StepResult{}, err
	}
	logger.Info("building family synchronously",
		logging.String(logging.FieldEventType, "sync_start"),
		logging.String("dir", dir),
	)

	_, result, err := p.begin(ctx, rec, dir)
	if err != nil || result.Action == Terminal {
		return result, err
	}

	for _, step := range []func(context.Context, string) (StepResult, error){p.AdvanceLiftover, p.AdvanceBuild} {
		polls := 0
		for {
			result, err = step(ctx, id)
			if err != nil {
				return result, err
			}
			if result.Action != Requeue {
				break
			}
			if err := p.sleep(ctx, p.PollDelay(polls)); err != nil {
				return result, err
			}
			polls++
		}
		if result.Action == Terminal || result.Action == Drop {
			return result, nil
		}
	}
	return result, nil
}
