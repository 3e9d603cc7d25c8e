package main

import (
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"famforge/internal/config"
	"famforge/internal/coordinator"
	"famforge/internal/family"
	"famforge/internal/fileutil"
	"famforge/internal/queue"
)

func newFamilyCommand(ctx *commandContext) *cobra.Command {
	familyCmd := &cobra.Command{
		Use:   "family",
		Short: "Inspect and file family directories",
	}
	familyCmd.AddCommand(newFamilyShowCommand(ctx))
	familyCmd.AddCommand(newFamilyListCommand(ctx))
	familyCmd.AddCommand(newFamilySetCommand(ctx))
	familyCmd.AddCommand(newFamilyReconcileCommand(ctx))
	return familyCmd
}

func (c *commandContext) layout() (*family.Layout, error) {
	cfg, err := c.familyConfig()
	if err != nil {
		return nil, err
	}
	return family.NewLayout(cfg.Paths.AlignedRoot, !cfg.Workflow.MoveCompleted), nil
}

func newFamilyShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <family>",
		Short: "Show the state of a family",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := ctx.layout()
			if err != nil {
				return err
			}
			rec, dir, err := layout.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			rows := [][]string{
				{"Directory", dir},
				{"Disposition", rec.Disposition.Label()},
				{"Stage", rec.Stage.Label()},
				{"Cluster", rec.Cluster},
				{"Lift-over attempts", strconv.Itoa(rec.Attempts.Liftover)},
				{"Build attempts", strconv.Itoa(rec.Attempts.Build)},
				{"Run", rec.RunID},
			}
			if !rec.StageStartedAt.IsZero() {
				rows = append(rows, []string{"In stage for", rec.StageAge(time.Now()).Round(time.Second).String()})
			}
			if rec.FailureReason != "" {
				rows = append(rows, []string{"Failure", rec.FailureReason})
			}
			for _, w := range rec.Warnings {
				rows = append(rows, []string{"Warning", w})
			}
			for _, name := range []string{"PFAMOUT", "DESC"} {
				rows = append(rows, []string{name, yesNo(fileutil.NonEmpty(filepath.Join(dir, name)))})
			}
			fmt.Fprintln(out, renderKeyValue(rec.Family, rows))

			if len(rec.History) > 0 {
				history := make([][]string, 0, len(rec.History))
				for _, ev := range rec.History {
					history = append(history, []string{
						ev.At.Local().Format(time.DateTime),
						ev.Stage.Label(),
						ev.Disposition.Label(),
						ev.Note,
					})
				}
				fmt.Fprintln(out, renderTable([]string{"When", "Stage", "Disposition", "Note"}, history, nil))
			}
			return nil
		},
	}
}

func newFamilyListCommand(ctx *commandContext) *cobra.Command {
	var dispositionFlag string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List families by disposition directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := ctx.layout()
			if err != nil {
				return err
			}
			dispositions := append([]family.Disposition{family.Pending}, family.TerminalDispositions()...)
			if strings.TrimSpace(dispositionFlag) != "" {
				d, err := family.ParseDisposition(dispositionFlag)
				if err != nil {
					return err
				}
				dispositions = []family.Disposition{d}
			}

			var rows [][]string
			for _, d := range dispositions {
				ids, err := layout.List(d)
				if err != nil {
					return err
				}
				for _, id := range ids {
					rec, _, err := layout.Load(id)
					if err != nil {
						rows = append(rows, []string{id, d.Label(), "?", err.Error()})
						continue
					}
					rows = append(rows, []string{id, rec.Disposition.Label(), rec.Stage.Label(), rec.FailureReason})
				}
			}
			out := cmd.OutOrStdout()
			if len(rows) == 0 {
				fmt.Fprintln(out, "No families found")
				return nil
			}
			fmt.Fprintln(out, renderTable([]string{"Family", "Disposition", "Stage", "Reason"}, rows, nil))
			return nil
		},
	}
	cmd.Flags().StringVar(&dispositionFlag, "disposition", "", "Only list families with this disposition (e.g. FAILED, DUF)")
	return cmd
}

func newFamilySetCommand(ctx *commandContext) *cobra.Command {
	var note string

	cmd := &cobra.Command{
		Use:   "set <family> <disposition>",
		Short: "File a family under a curator disposition",
		Long: "Moves the family to DONE, DONE_MERGED, IGNORE, FUNCTION, FAILED or DUF,\n" +
			"or back to the active root with 'pending'.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := ctx.layout()
			if err != nil {
				return err
			}
			d, err := family.ParseDisposition(args[1])
			if err != nil {
				return err
			}
			rec, _, err := layout.Load(args[0])
			if err != nil {
				return err
			}
			dir, err := layout.Transition(rec, d, strings.TrimSpace(note))
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s filed as %s in %s\n", rec.Family, d.Label(), dir)
			return nil
		},
	}
	cmd.Flags().StringVar(&note, "note", "", "Reason recorded in the family history")
	return cmd
}

func newFamilyReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Finish interrupted directory moves and requeue active families",
		Long: "Moves every family whose record names a disposition other than its\n" +
			"directory's, then puts active families that are on no work list back on\n" +
			"the list for their stage so the next drain polls them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			layout, err := ctx.layout()
			if err != nil {
				return err
			}
			moved, err := layout.Reconcile()
			out := cmd.OutOrStdout()
			for _, id := range moved {
				fmt.Fprintf(out, "moved %s\n", id)
			}
			if err != nil {
				return err
			}

			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				recovery, err := coordinator.RequeueActive(cmd.Context(), store, layout)
				if err != nil {
					return err
				}
				for _, list := range queue.Lists() {
					for _, id := range recovery.Requeued[list] {
						fmt.Fprintf(out, "requeued %s on %s\n", id, list)
					}
				}
				for _, id := range recovery.Stranded {
					fmt.Fprintf(out, "stranded %s: no alignment or unreadable record; rebuild it with famforge build\n", id)
				}
				if len(moved) == 0 && recovery.Count() == 0 && len(recovery.Stranded) == 0 {
					fmt.Fprintln(out, "All families are in place")
				}
				return nil
			})
		},
	}
}
