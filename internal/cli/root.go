// Package cli implements the jarvis-e2e command line tool: operational
// helpers around the test suite (environment doctor, database reset, local
// stub server, run history).
package cli

import (
	"os"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/zerg-ai/jarvis-e2e/internal/config"
)

var (
	flagConfig  string
	flagAPIURL  string
	flagWebURL  string
	flagVerbose bool

	logger = log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "jarvis-e2e",
	})
)

var rootCmd = &cobra.Command{
	Use:   "jarvis-e2e",
	Short: "Operational helpers for the Jarvis end-to-end test suite",
	Long: `jarvis-e2e wraps the suite's helper layer for use outside go test:
checking that a target environment is reachable, resetting a worker's
database partition, serving the local API stub, and inspecting run history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if flagVerbose {
			logger.SetLevel(log.DebugLevel)
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagConfig, "config", "c", "e2e.yaml", "suite config file")
	rootCmd.PersistentFlags().StringVar(&flagAPIURL, "api-url", "", "override the API base URL")
	rootCmd.PersistentFlags().StringVar(&flagWebURL, "web-url", "", "override the web base URL")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")
}

// loadConfig applies the config file plus CLI overrides.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return cfg, err
	}
	if flagAPIURL != "" {
		cfg.APIURL = flagAPIURL
	}
	if flagWebURL != "" {
		cfg.WebURL = flagWebURL
	}
	return cfg, nil
}

// Execute runs the CLI.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		logger.Error(err.Error())
		os.Exit(1)
	}
}
