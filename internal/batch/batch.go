package batch

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"famforge/internal/config"
	"famforge/internal/family"
	"famforge/internal/logging"
	"famforge/internal/pipeline"
	"famforge/internal/services"
)

// NamesHeader is written to a fresh names file.
const NamesHeader = "pf_id\tcluster_rep\tnb_seq\tpercent_mgnify\tperecent_swissprot"

const (
	// DefaultBegin is the first statistics line processed.
	DefaultBegin = 1
	// DefaultCount is the number of lines processed.
	DefaultCount = 1000
)

// Options selects the lines of the statistics file to start.
type Options struct {
	StatsFile string
	Begin     int
	Count     int
	// Delete removes the names file and every family directory first.
	Delete bool
	RunID  string
}

// Range returns the first and last line numbers selected by o.
func (o Options) Range() (int, int) {
	begin := o.Begin
	if begin < 1 {
		begin = DefaultBegin
	}
	if o.Count <= 1 {
		return begin, begin
	}
	return begin, begin + o.Count - 1
}

// Starter claims a family and launches its first stages.
type Starter interface {
	Start(ctx context.Context, id, cluster, runID string) (*family.Record, pipeline.StepResult, error)
	Layout() *family.Layout
}

// Queue receives started families.
type Queue interface {
	Enqueue(ctx context.Context, id string) error
	Record(ctx context.Context, result pipeline.StepResult)
}

// Report lists what a batch did with each selected line.
type Report struct {
	First, Last int
	Started     []string
	Skipped     []string
	// Failed lists families that failed before lift-over was launched.
	Failed []string
}

// Run starts every family selected by opts. A missing cluster file or a
// configuration problem aborts the batch; families started before the error
// remain queued.
func Run(ctx context.Context, cfg *config.Config, opts Options, starter Starter, q Queue, logger *slog.Logger) (Report, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "batch")
	report := Report{}
	report.First, report.Last = opts.Range()

	in, err := os.Open(opts.StatsFile)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return report, services.Wrap(services.ErrNotFound, "batch", "open statistics", opts.StatsFile, nil)
		}
		return report, fmt.Errorf("open statistics file: %w", err)
	}
	defer in.Close()

	if opts.Delete {
		if err := reset(cfg, logger); err != nil {
			return report, err
		}
	}
	if err := os.MkdirAll(cfg.Paths.AlignedRoot, 0o775); err != nil {
		return report, fmt.Errorf("create aligned root: %w", err)
	}

	names, err := os.OpenFile(cfg.Paths.NamesFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o664)
	if err != nil {
		return report, fmt.Errorf("open names file: %w", err)
	}
	defer names.Close()
	if opts.Delete {
		if _, err := fmt.Fprintln(names, NamesHeader); err != nil {
			return report, fmt.Errorf("write names header: %w", err)
		}
	}

	logger.Info("starting clusters",
		logging.String(logging.FieldEventType, "batch_start"),
		logging.Int("first", report.First),
		logging.Int("last", report.Last),
		logging.String("statistics", opts.StatsFile),
	)

	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		if lineNo < report.First {
			continue
		}
		if lineNo > report.Last {
			break
		}
		if err := ctx.Err(); err != nil {
			return report, err
		}

		line := strings.TrimSpace(scanner.Text())
		id := family.NameForLine(lineNo)
		rep, _, _ := strings.Cut(line, "\t")
		if rep == "" {
			logging.WarnWithContext(logger, "blank statistics line skipped", "blank_line",
				logging.Int("line", lineNo),
				logging.String(logging.FieldImpact, "family number left unused"),
			)
			report.Skipped = append(report.Skipped, id)
			continue
		}
		if starter.Layout().Exists(id) {
			logger.Info("family ignored, processing or already processed",
				logging.Family(id),
				logging.String("cluster_rep", rep),
				logging.String(logging.FieldEventType, "family_skipped"),
			)
			report.Skipped = append(report.Skipped, id)
			continue
		}

		cluster := family.ClusterFile(cfg.Paths.ClusterDir, rep)
		rec, result, err := starter.Start(ctx, id, cluster, opts.RunID)
		if errors.Is(err, family.ErrExists) {
			report.Skipped = append(report.Skipped, id)
			continue
		}
		if rec != nil {
			if _, werr := fmt.Fprintf(names, "%s\t%s\n", id, line); werr != nil {
				return report, fmt.Errorf("write names file: %w", werr)
			}
		}
		if err != nil {
			return report, err
		}

		if result.Action == pipeline.Terminal {
			q.Record(ctx, result)
			report.Failed = append(report.Failed, id)
			continue
		}
		if err := q.Enqueue(ctx, id); err != nil {
			return report, err
		}
		report.Started = append(report.Started, id)
	}
	if err := scanner.Err(); err != nil {
		return report, fmt.Errorf("read statistics file: %w", err)
	}

	logger.Info("clusters started",
		logging.String(logging.FieldEventType, "batch_done"),
		logging.Int("started", len(report.Started)),
		logging.Int("skipped", len(report.Skipped)),
		logging.Int("failed", len(report.Failed)),
	)
	return report, nil
}

func reset(cfg *config.Config, logger *slog.Logger) error {
	logger.Warn("deleting previously generated data",
		logging.String("aligned_root", cfg.Paths.AlignedRoot),
		logging.String("names_file", cfg.Paths.NamesFile),
		logging.String(logging.FieldEventType, "batch_reset"),
	)
	if err := os.Remove(cfg.Paths.NamesFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove names file: %w", err)
	}
	if err := os.RemoveAll(cfg.Paths.AlignedRoot); err != nil {
		return fmt.Errorf("remove aligned root: %w", err)
	}
	return nil
}
