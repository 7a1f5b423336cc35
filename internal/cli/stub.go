package cli

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/zerg-ai/jarvis-e2e/internal/stubapp"
)

var (
	flagStubAddr        string
	flagStubIngestDelay time.Duration
)

var stubCmd = &cobra.Command{
	Use:   "stub",
	Short: "Serve the local API stub",
	Long: `Stub serves an in-memory imitation of the Jarvis API surface the suite
observes. Useful for developing helpers and specs without a backend.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		srv := &http.Server{
			Addr:              flagStubAddr,
			Handler:           stubapp.New(stubapp.WithIngestDelay(flagStubIngestDelay)),
			ReadHeaderTimeout: 5 * time.Second,
		}
		logger.Info("stub API listening", "addr", flagStubAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("stub server: %w", err)
		}
		return nil
	},
}

func init() {
	stubCmd.Flags().StringVar(&flagStubAddr, "addr", ":47300", "listen address")
	stubCmd.Flags().DurationVar(&flagStubIngestDelay, "ingest-delay", 2*time.Second, "simulated knowledge ingestion time")
	rootCmd.AddCommand(stubCmd)
}
