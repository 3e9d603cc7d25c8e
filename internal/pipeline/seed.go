package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"famforge/internal/config"
	"famforge/internal/family"
	"famforge/internal/fileutil"
	"famforge/internal/logging"
	"famforge/internal/toolexec"
)

const (
	seedLifted    = "SEED4"
	seedAlignment = "SEED"
)

// PrepareSeed turns the lifted-over alignment into the final SEED: copy it
// to SEED4, drop sequences above the redundancy threshold (SEED3), trim
// gappy termini (SEED2), and remove partial sequences (SEED). It reports an
// error when SEED is missing or empty afterwards.
func (p *Pipeline) PrepareSeed(ctx context.Context, vars toolexec.Vars) error {
	_, logger := p.familyContext(ctx, vars.Family, family.StageLiftover)

	if err := fileutil.CopyFile(p.liftover.ArtifactPath(vars), filepath.Join(vars.Dir, seedLifted)); err != nil {
		return fmt.Errorf("copy lifted alignment: %w", err)
	}

	steps := []struct {
		name string
		tool config.Tool
	}{
		{"redundancy_filter", p.cfg.Tools.RedundancyFilter},
		{"trim", p.cfg.Tools.Trim},
		{"partial_filter", p.cfg.Tools.PartialFilter},
	}
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := p.now()
		if _, err := p.exec.Run(ctx, toolexec.Expand(step.tool, vars)); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logging.WarnWithContext(logger, "seed preparation step failed", "seed_step_failed",
				logging.String("step", step.name),
				logging.Error(err),
				logging.String(logging.FieldImpact, "SEED may be empty"),
			)
			continue
		}
		logger.Debug("seed preparation step finished",
			logging.String("step", step.name),
			logging.Duration(logging.FieldDuration, p.now().Sub(start)),
		)
	}

	if !fileutil.NonEmpty(filepath.Join(vars.Dir, seedAlignment)) {
		return fmt.Errorf("%s missing or empty after seed preparation", seedAlignment)
	}
	return nil
}
