package cli

import (
	"github.com/spf13/cobra"

	"daily-movers/internal/store"
)

func newRunsCmd(app *App) *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List archived runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			archive, err := store.NewArchiveStore(dbPath)
			if err != nil {
				return err
			}
			defer archive.Close()

			records, err := archive.ListRuns(limit)
			if err != nil {
				return err
			}
			if output.IsJSON() {
				return output.JSON(records)
			}
			if len(records) == 0 {
				output.Dim("No archived runs in %s", dbPath)
				return nil
			}
			for _, r := range records {
				output.Printf("%s  %s  %-9s  %-6s  %s\n", r.RunID, r.RequestedDate, r.Mode, r.Region, r.Status)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "runs/runs.db", "path to the runs archive database")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to list")
	return cmd
}

func newHistoryCmd(app *App) *cobra.Command {
	var (
		dbPath string
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "history <ticker>",
		Short: "Show archived analyses for one ticker",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			output := NewOutput(cmd)
			archive, err := store.NewArchiveStore(dbPath)
			if err != nil {
				return err
			}
			defer archive.Close()

			records, err := archive.TickerHistory(args[0], limit)
			if err != nil {
				return err
			}
			if output.IsJSON() || len(records) > 0 {
				return output.JSON(records)
			}
			output.Dim("No archived rows for %s in %s", args[0], dbPath)
			return nil
		},
	}

	cmd.Flags().StringVar(&dbPath, "db", "runs/runs.db", "path to the runs archive database")
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum rows to show")
	return cmd
}
