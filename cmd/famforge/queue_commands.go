package main

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"famforge/internal/config"
	"famforge/internal/queue"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the work lists",
	}
	queueCmd.AddCommand(newQueueStatusCommand(ctx))
	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueClearCommand(ctx))
	return queueCmd
}

func newQueueStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show how many families each list holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				stats, err := store.Stats(cmd.Context())
				if err != nil {
					return err
				}
				rows := make([][]string, 0, len(stats))
				for _, list := range queue.Lists() {
					next := "-"
					if due, ok, err := store.NextDue(cmd.Context(), list); err != nil {
						return err
					} else if ok {
						next = formatDue(due)
					}
					rows = append(rows, []string{string(list), strconv.Itoa(stats[list]), next})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(
					[]string{"List", "Families", "Next check"},
					rows,
					[]columnAlignment{alignLeft, alignRight, alignLeft},
				))
				return nil
			})
		},
	}
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "list [list...]",
		Short: "List queued families",
		RunE: func(cmd *cobra.Command, args []string) error {
			lists, err := parseLists(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				var rows [][]string
				for _, list := range lists {
					entries, err := store.Entries(cmd.Context(), list)
					if err != nil {
						return err
					}
					for _, entry := range entries {
						rows = append(rows, []string{
							entry.Family,
							string(entry.List),
							strconv.Itoa(entry.Polls),
							formatDue(entry.NotBefore),
							entry.EnqueuedAt.Local().Format(time.DateTime),
						})
					}
				}
				out := cmd.OutOrStdout()
				if len(rows) == 0 {
					fmt.Fprintln(out, "No queued families")
					return nil
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Family", "List", "Polls", "Next check", "Queued"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
				))
				return nil
			})
		},
	}
}

func newQueueClearCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear [list...]",
		Short: "Remove families from the work lists",
		Long:  "Removes queue entries only; family directories are left untouched.",
		RunE: func(cmd *cobra.Command, args []string) error {
			lists, err := parseLists(args)
			if err != nil {
				return err
			}
			return ctx.withStore(func(_ *config.Config, store *queue.Store) error {
				removed, err := store.Clear(cmd.Context(), lists...)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %d queue entries\n", removed)
				return nil
			})
		},
	}
}

func parseLists(args []string) ([]queue.List, error) {
	if len(args) == 0 {
		return queue.Lists(), nil
	}
	lists := make([]queue.List, 0, len(args))
	for _, arg := range args {
		list, err := queue.ParseList(arg)
		if err != nil {
			return nil, err
		}
		lists = append(lists, list)
	}
	return lists, nil
}

func formatDue(due time.Time) string {
	wait := time.Until(due)
	if due.IsZero() || wait <= 0 {
		return "now"
	}
	return "in " + wait.Round(time.Second).String()
}
