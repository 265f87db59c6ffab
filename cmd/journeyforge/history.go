package main

import (
	"github.com/spf13/cobra"

	"github.com/entrhq/journeyforge/pkg/history"
)

func (a *app) historyCommand() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history [name]",
		Short: "List recent journey runs, optionally for one journey",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			h, err := history.Open(ctx, a.settings().Journey.HistoryDB)
			if err != nil {
				return err
			}
			defer h.Close()

			var name string
			if len(args) == 1 {
				name = args[0]
			}
			runs, err := h.List(ctx, name, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if name != "" && len(runs) > 0 {
				stats, err := h.Stats(ctx, name)
				if err != nil {
					return err
				}
				printStats(out, stats)
			}
			printRuns(out, runs)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "maximum runs to list")
	return cmd
}
