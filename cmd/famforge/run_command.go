package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"famforge/internal/batch"
	"famforge/internal/coordinator"
	"famforge/internal/family"
	"famforge/internal/logging"
	"famforge/internal/notifications"
	"famforge/internal/preflight"
	"famforge/internal/queue"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var input string
	var begin int
	var count int
	var deleteData bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start families from a cluster statistics file and drain them",
		Long: "Reads the cluster statistics file, starts one family per selected line,\n" +
			"and polls lift-over and profile builds until every family is filed.\n" +
			"Family directories, the cluster files and the names file default to\n" +
			"the directory holding the statistics file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			statsPath, err := filepath.Abs(input)
			if err != nil {
				return fmt.Errorf("resolve statistics file: %w", err)
			}
			if _, err := os.Stat(statsPath); err != nil {
				return fmt.Errorf("statistics file: %w", err)
			}
			if err := cfg.ApplyDataDir(filepath.Dir(statsPath)); err != nil {
				return err
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			if err := preflight.Verify(cmd.Context(), cfg); err != nil {
				return err
			}

			runID := newRunID()
			logger, err := ctx.runLogger(cfg, runID)
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()
			if deleteData {
				removed, err := store.Clear(cmd.Context())
				if err != nil {
					return err
				}
				logger.Info("cleared work lists", logging.Int64("entries", removed))
			}

			pipe, err := ctx.newPipeline(cfg, logger)
			if err != nil {
				return err
			}
			notifier := notifications.NewService(cfg)
			coord, err := coordinator.New(cfg, store, pipe,
				coordinator.WithLogger(logger),
				coordinator.WithRunID(runID),
				coordinator.WithNotifier(notifier),
			)
			if err != nil {
				return err
			}

			opts := batch.Options{
				StatsFile: statsPath,
				Begin:     begin,
				Count:     count,
				Delete:    deleteData,
				RunID:     runID,
			}
			report, err := batch.Run(cmd.Context(), cfg, opts, pipe, coord, logger)
			if err != nil {
				logging.ErrorWithContext(logger, "run aborted while starting families", "run_aborted",
					logging.Error(err),
					logging.Int("started", len(report.Started)),
					logging.String(logging.FieldErrorHint, "fix the problem and rerun; started families stay queued for famforge drain"),
				)
				logNotifyError(logger, notifier.NotifyError(cmd.Context(), err, "batch start"))
				return err
			}
			logNotifyError(logger, notifier.NotifyRunStarted(cmd.Context(), runID, len(report.Started)))

			summary, err := coord.Run(cmd.Context())
			notifyRunEnd(cmd.Context(), logger, notifier, summary, err)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Clusters %d to %d: %d started, %d skipped\n",
				report.First, report.Last, len(report.Started), len(report.Skipped))
			fmt.Fprint(out, renderSummary(summary, shouldColorize(out)))
			return err
		},
	}

	cmd.Flags().StringVarP(&input, "input", "i", "", "Cluster statistics file, one cluster per line")
	cmd.Flags().IntVarP(&begin, "begin", "b", batch.DefaultBegin, "First statistics line (family number) to process")
	cmd.Flags().IntVarP(&count, "count", "n", batch.DefaultCount, "Number of clusters to process")
	cmd.Flags().BoolVar(&deleteData, "delete", false, "Delete previously generated families, the names file and the work lists first")
	_ = cmd.MarkFlagRequired("input")
	return cmd
}

func newDrainCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "drain",
		Short: "Resume polling the families left on the work lists",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.familyConfig()
			if err != nil {
				return err
			}
			if err := preflight.Verify(cmd.Context(), cfg); err != nil {
				return err
			}
			runID := newRunID()
			logger, err := ctx.runLogger(cfg, runID)
			if err != nil {
				return err
			}
			store, err := queue.Open(cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			pipe, err := ctx.newPipeline(cfg, logger)
			if err != nil {
				return err
			}
			notifier := notifications.NewService(cfg)
			coord, err := coordinator.New(cfg, store, pipe,
				coordinator.WithLogger(logger),
				coordinator.WithRunID(runID),
				coordinator.WithNotifier(notifier),
			)
			if err != nil {
				return err
			}
			summary, err := coord.Run(cmd.Context())
			notifyRunEnd(cmd.Context(), logger, notifier, summary, err)
			fmt.Fprint(cmd.OutOrStdout(), renderSummary(summary, shouldColorize(cmd.OutOrStdout())))
			return err
		},
	}
}

func newBuildCommand(ctx *commandContext) *cobra.Command {
	var clusterFile string
	var familyID string
	var dir string

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build one family synchronously",
		Long: "Recreates <dir>/<family>, builds its alignment from the cluster file,\n" +
			"and waits in-process for lift-over, the profile build and post-processing.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root, err := filepath.Abs(dir)
			if err != nil {
				return fmt.Errorf("resolve data directory: %w", err)
			}
			cfg.Paths.AlignedRoot = root
			cluster, err := filepath.Abs(clusterFile)
			if err != nil {
				return fmt.Errorf("resolve cluster file: %w", err)
			}
			if err := cfg.EnsureDirectories(); err != nil {
				return err
			}
			cfg.Paths.ClusterDir = filepath.Dir(cluster)
			if err := preflight.Verify(cmd.Context(), cfg); err != nil {
				return err
			}

			runID := newRunID()
			logger, err := ctx.runLogger(cfg, runID)
			if err != nil {
				return err
			}
			pipe, err := ctx.newPipeline(cfg, logger)
			if err != nil {
				return err
			}
			result, err := pipe.RunSync(cmd.Context(), familyID, cluster, runID)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			kind := statusOK
			if result.Disposition != family.Done {
				kind = statusError
			}
			fmt.Fprintln(out, renderStatusLine(familyID, kind, dispositionMessage(result.Disposition, result.Reason), colorize))
			for _, w := range result.Warnings {
				fmt.Fprintln(out, renderStatusLine("warning", statusWarn, w, colorize))
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&clusterFile, "cluster", "i", "", "Cluster fasta file")
	cmd.Flags().StringVarP(&familyID, "family", "f", "", "Family identifier to build")
	cmd.Flags().StringVarP(&dir, "dir", "d", "", "Directory in which the family directory is created")
	_ = cmd.MarkFlagRequired("cluster")
	_ = cmd.MarkFlagRequired("family")
	_ = cmd.MarkFlagRequired("dir")
	return cmd
}

// notifyRunEnd reports a finished drain. Interrupted runs are not reported.
func notifyRunEnd(ctx context.Context, logger *slog.Logger, notifier notifications.Service, summary coordinator.Summary, runErr error) {
	switch {
	case runErr == nil:
		logNotifyError(logger, notifier.NotifyRunCompleted(ctx, summary.RunID, len(summary.Done),
			summary.FailedCount(), summary.Finished.Sub(summary.Started)))
	case errors.Is(runErr, context.Canceled) || ctx.Err() != nil:
	default:
		logNotifyError(logger, notifier.NotifyError(ctx, runErr, "drain"))
	}
}

func logNotifyError(logger *slog.Logger, err error) {
	if err == nil {
		return
	}
	logging.WarnWithContext(logger, "notification not sent", "notification_failed",
		logging.Error(err),
		logging.String(logging.FieldErrorHint, "check notifications.ntfy_topic"),
	)
}
