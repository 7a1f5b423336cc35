package cli

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/zerg-ai/jarvis-e2e/internal/worker"
	"github.com/zerg-ai/jarvis-e2e/internal/zergapi"
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that the target environment is reachable",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		failures := 0

		logger.Info("checking web frontend", "url", cfg.WebURL)
		if err := probe(ctx, cfg.WebURL); err != nil {
			logger.Error("web frontend unreachable", "error", err)
			failures++
		} else {
			logger.Info("web frontend ok")
		}

		logger.Info("checking API", "url", cfg.APIURL)
		client := zergapi.New(cfg.APIURL)
		if err := client.Health(ctx); err != nil {
			logger.Error("API health check failed", "error", err)
			failures++
		} else {
			logger.Info("API ok", "worker", worker.ID())
		}

		if failures > 0 {
			return fmt.Errorf("%d of 2 checks failed", failures)
		}
		logger.Info("environment ready for e2e runs")
		return nil
	},
}

func probe(ctx context.Context, url string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("status %d", resp.StatusCode)
	}
	return nil
}

func init() {
	rootCmd.AddCommand(doctorCmd)
}
