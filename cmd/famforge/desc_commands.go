package main

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/spf13/cobra"
)

func newDescCommand(ctx *commandContext) *cobra.Command {
	descCmd := &cobra.Command{
		Use:   "desc",
		Short: "Complete and repair family DESC files",
	}
	descCmd.AddCommand(newDescCompleteCommand(ctx))
	descCmd.AddCommand(newDescRepairCommand(ctx))
	return descCmd
}

func newDescCompleteCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <family-dir>",
		Short: "Run post-processing in one family directory",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			dir, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			pipe, err := ctx.newPipeline(cfg, ctx.commandLogger(cfg))
			if err != nil {
				return err
			}
			warnings, err := pipe.CompleteDesc(cmd.Context(), dir)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			if len(warnings) == 0 {
				fmt.Fprintln(out, renderStatusLine(filepath.Base(dir), statusOK, "post-processing complete", colorize))
				return nil
			}
			for _, w := range warnings {
				fmt.Fprintln(out, renderStatusLine(filepath.Base(dir), statusWarn, w, colorize))
			}
			return nil
		},
	}
}

func newDescRepairCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "repair <dir>",
		Short: "Rerun post-processing for families whose DESC is incomplete",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			root, err := filepath.Abs(args[0])
			if err != nil {
				return err
			}
			pipe, err := ctx.newPipeline(cfg, ctx.commandLogger(cfg))
			if err != nil {
				return err
			}
			report, err := pipe.RepairDescs(cmd.Context(), root)
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)
			for _, id := range report.Repaired {
				kind, msg := statusOK, "DESC completed"
				if ws := report.Warnings[id]; len(ws) > 0 {
					kind, msg = statusWarn, fmt.Sprintf("DESC completed with %d warnings", len(ws))
				}
				fmt.Fprintln(out, renderStatusLine(id, kind, msg, colorize))
			}
			for _, id := range report.Unbuilt {
				fmt.Fprintln(out, renderStatusLine(id, statusError, "no PFAMOUT; rebuild the family first", colorize))
			}
			missing := append([]string(nil), report.MissingDesc...)
			sort.Strings(missing)
			for _, id := range missing {
				fmt.Fprintln(out, renderStatusLine(id, statusInfo, "no DESC file", colorize))
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%d repaired, %d unbuilt, %d without DESC\n",
				len(report.Repaired), len(report.Unbuilt), len(report.MissingDesc))
			return nil
		},
	}
}
