package cli

import (
	"github.com/spf13/cobra"

	"github.com/zerg-ai/jarvis-e2e/internal/worker"
	"github.com/zerg-ai/jarvis-e2e/internal/zergapi"
)

var flagResetWorker string

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear a worker's database partition",
	Long: `Reset clears the data partition for one worker identifier via the
admin reset endpoint, with the same retry/backoff policy the tests use.
Defaults to this process's own worker identifier.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		id := flagResetWorker
		if id == "" {
			id = worker.ID()
		}

		client := zergapi.New(cfg.APIURL, zergapi.WithWorkerID(id))
		logger.Info("resetting database partition", "worker", id, "api", cfg.APIURL)
		if err := client.ResetDatabase(cmd.Context(), cfg.ResetAttempts); err != nil {
			return err
		}
		logger.Info("partition cleared", "worker", id)
		return nil
	},
}

func init() {
	resetCmd.Flags().StringVarP(&flagResetWorker, "worker", "w", "", "worker identifier to reset (default: this process)")
	rootCmd.AddCommand(resetCmd)
}
