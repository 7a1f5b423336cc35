package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zerg-ai/jarvis-e2e/internal/report"
)

var (
	flagHistoryDB    string
	flagHistoryLimit int
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Summarize recent runs and per-scenario flake rates",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := report.OpenStore(flagHistoryDB)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.RecentRuns(cmd.Context(), flagHistoryLimit)
		if err != nil {
			return err
		}
		if len(runs) == 0 {
			logger.Info("no recorded runs", "db", flagHistoryDB)
			return nil
		}

		fmt.Println("Recent runs:")
		for _, r := range runs {
			fmt.Printf("  %-12s %s  pass=%d fail=%d skip=%d  %.1fs\n",
				r.RunID, r.StartedAt.Format("2006-01-02 15:04"),
				r.Summary.Passed, r.Summary.Failed, r.Summary.Skipped, r.Duration)
		}

		rates, err := store.FlakeRates(cmd.Context(), flagHistoryLimit)
		if err != nil {
			return err
		}
		fmt.Println("\nFlake rates (worst first):")
		for _, f := range rates {
			fmt.Printf("  %-32s %3d/%3d  %5.1f%%\n", f.Name, f.Failures, f.Runs, f.Rate()*100)
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().StringVar(&flagHistoryDB, "db", "e2e-history.db", "run history database")
	historyCmd.Flags().IntVar(&flagHistoryLimit, "limit", 20, "number of recent runs to consider")
	rootCmd.AddCommand(historyCmd)
}
