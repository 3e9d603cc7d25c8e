package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"famforge/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var follow bool
	var lines int

	cmd := &cobra.Command{
		Use:   "logs [family]",
		Short: "Display the latest run log or a family's stage log",
		Long: "Without arguments, prints the most recent famforge run log.\n" +
			"With a family, prints the lift-over or build log of the stage it is in.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			var path string
			if len(args) == 0 {
				if path, err = logs.LatestRunLog(cfg.Paths.LogDir); err != nil {
					return err
				}
			} else {
				layout, err := ctx.layout()
				if err != nil {
					return err
				}
				rec, dir, err := layout.Load(args[0])
				if err != nil {
					return err
				}
				stageLog, ok := logs.StageLog(cfg, rec, dir)
				if !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is at %s; no scheduler log to show\n", rec.Family, rec.Stage.Label())
					return nil
				}
				path = stageLog
			}

			offset := int64(-1)
			limit := max(lines, 0)
			if limit == 0 {
				offset = 0
			}
			out := cmd.OutOrStdout()
			printed := false
			for {
				result, err := logs.Tail(cmd.Context(), path, logs.TailOptions{
					Offset: offset,
					Limit:  limit,
					Follow: follow,
					Wait:   time.Second,
				})
				if err != nil {
					if errors.Is(err, context.Canceled) {
						return nil
					}
					return err
				}
				for _, line := range result.Lines {
					fmt.Fprintln(out, line)
					printed = true
				}
				offset = result.Offset
				limit = 0
				if !follow {
					if !printed {
						fmt.Fprintf(out, "No log entries in %s\n", path)
					}
					return nil
				}
				if cmd.Context().Err() != nil {
					return nil
				}
			}
		},
	}

	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Follow log output")
	cmd.Flags().IntVarP(&lines, "lines", "n", 20, "Number of lines to show (0 for all)")
	return cmd
}
