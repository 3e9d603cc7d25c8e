package pipeline

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"famforge/internal/family"
	"famforge/internal/logging"
	"famforge/internal/services"
	"famforge/internal/toolexec"
)

// DescFile is the family metadata file completed by post-processing.
const DescFile = "DESC"

// incompleteDescMarker is the placeholder author line left in DESC until the
// enrichment scripts have run.
const incompleteDescMarker = "Who RU"

// PostProcess runs every configured post-processing step in order inside
// the family directory. Failures never stop the sequence; each one is
// returned as a warning. Only cancellation of ctx ends it early, with the
// context error.
func (p *Pipeline) PostProcess(ctx context.Context, vars toolexec.Vars) ([]string, error) {
	ctx, logger := p.familyContext(ctx, vars.Family, family.StagePostProcess)
	var warnings []string
	for _, step := range p.cfg.PostProcess {
		if err := ctx.Err(); err != nil {
			return warnings, fmt.Errorf("post-process %s: %w", vars.Family, err)
		}
		start := p.now()
		_, err := p.exec.Run(ctx, toolexec.Expand(step.Tool(), vars))
		elapsed := p.now().Sub(start)
		if err != nil && ctx.Err() != nil {
			return warnings, fmt.Errorf("post-process %s: %w", vars.Family, ctx.Err())
		}
		if err != nil {
			wrapped := services.Wrap(services.ErrPostProcessing, "pipeline", "postprocess", step.Name, err)
			warnings = append(warnings, wrapped.Error())
			logging.WarnWithContext(logger, "post-processing step failed", "postprocess_failed",
				logging.String("step", step.Name),
				logging.Error(err),
				logging.Duration(logging.FieldDuration, elapsed),
				logging.String(logging.FieldImpact, "DESC may be incomplete"),
				logging.String(logging.FieldErrorHint, "rerun with famforge desc complete"),
			)
			continue
		}
		logger.Info("post-processing step finished",
			logging.String(logging.FieldEventType, "postprocess_step"),
			logging.String("step", step.Name),
			logging.Duration(logging.FieldDuration, elapsed),
		)
	}
	return warnings, nil
}

// CompleteDesc reruns post-processing for the family in dir when its build
// artifact is present. Warnings are recorded on the family record when one
// exists.
func (p *Pipeline) CompleteDesc(ctx context.Context, dir string) ([]string, error) {
	id := filepath.Base(filepath.Clean(dir))
	rec, err := family.ReadRecord(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		rec = nil
	}
	vars := toolexec.Vars{Family: id, Dir: dir}
	if rec != nil {
		vars.Cluster = rec.Cluster
	}
	if !p.buildArtifactPresent(vars) {
		return nil, services.Wrap(services.ErrNotFound, "pipeline", "complete desc",
			fmt.Sprintf("%s has no %s; profile build did not finish", id, p.cfg.Stages.Build.Artifact), nil)
	}

	warnings, err := p.PostProcess(ctx, vars)
	if err != nil {
		return warnings, err
	}
	if rec != nil {
		rec.Warnings = append([]string(nil), warnings...)
		rec.UpdatedAt = p.now().UTC()
		if err := family.WriteRecord(dir, rec); err != nil {
			return warnings, err
		}
	}
	p.fixPermissions(p.logger, dir)
	return warnings, nil
}

// DescIncomplete reports whether the DESC file in dir still carries the
// placeholder author line. A missing DESC returns an ErrNotFound error.
func DescIncomplete(dir string) (bool, error) {
	f, err := os.Open(filepath.Join(dir, DescFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return false, services.Wrap(services.ErrNotFound, "pipeline", "desc", "no DESC file in "+dir, nil)
		}
		return false, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if strings.Contains(scanner.Text(), incompleteDescMarker) {
			return true, nil
		}
	}
	return false, scanner.Err()
}

// RepairReport summarises a DESC repair sweep.
type RepairReport struct {
	Repaired []string
	// Unbuilt lists incomplete families whose build artifact is missing.
	Unbuilt []string
	// MissingDesc lists family directories without a DESC file.
	MissingDesc []string
	Warnings    map[string][]string
}

// RepairDescs scans the family directories under root and reruns
// post-processing for those whose DESC is incomplete.
func (p *Pipeline) RepairDescs(ctx context.Context, root string) (RepairReport, error) {
	report := RepairReport{Warnings: make(map[string][]string)}
	entries, err := os.ReadDir(root)
	if err != nil {
		return report, fmt.Errorf("read %s: %w", root, err)
	}
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}
		dir := filepath.Join(root, entry.Name())
		incomplete, err := DescIncomplete(dir)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				report.MissingDesc = append(report.MissingDesc, entry.Name())
				continue
			}
			return report, err
		}
		if !incomplete {
			continue
		}
		warnings, err := p.CompleteDesc(ctx, dir)
		if err != nil {
			if errors.Is(err, services.ErrNotFound) {
				report.Unbuilt = append(report.Unbuilt, entry.Name())
				continue
			}
			return report, err
		}
		report.Repaired = append(report.Repaired, entry.Name())
		if len(warnings) > 0 {
			report.Warnings[entry.Name()] = warnings
		}
	}
	return report, nil
}
