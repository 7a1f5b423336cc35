// Package config loads the e2e suite configuration from an optional YAML
// file with environment-variable overrides. Environment always wins so CI
// can steer a checked-in e2e.yaml without editing it.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/zerg-ai/jarvis-e2e/internal/util"
)

// Default endpoints match the local dev compose setup.
const (
	DefaultWebURL = "http://localhost:47200"
	DefaultAPIURL = "http://localhost:47300"
)

// Config holds everything the suite needs to reach and observe the
// application under test.
type Config struct {
	// WebURL is the base URL of the Jarvis web frontend.
	WebURL string `yaml:"web_url"`

	// APIURL is the base URL of the Jarvis HTTP API.
	APIURL string `yaml:"api_url"`

	// Headless controls whether the browser runs without a window.
	Headless bool `yaml:"headless"`

	// ArtifactDir is where screenshots, HTML dumps, and per-scenario
	// logs are written.
	ArtifactDir string `yaml:"artifact_dir"`

	// NavTimeout bounds a single page navigation.
	NavTimeout time.Duration `yaml:"nav_timeout"`

	// ActionTimeout bounds a single click/type/wait step.
	ActionTimeout time.Duration `yaml:"action_timeout"`

	// ScenarioTimeout bounds an entire browser scenario.
	ScenarioTimeout time.Duration `yaml:"scenario_timeout"`

	// ResetAttempts is the retry budget for database resets.
	ResetAttempts int `yaml:"reset_attempts"`
}

// Defaults returns the configuration used when no file and no environment
// overrides are present.
func Defaults() Config {
	return Config{
		WebURL:          DefaultWebURL,
		APIURL:          DefaultAPIURL,
		Headless:        true,
		ArtifactDir:     filepath.Join(os.TempDir(), "jarvis-e2e-artifacts"),
		NavTimeout:      30 * time.Second,
		ActionTimeout:   10 * time.Second,
		ScenarioTimeout: 2 * time.Minute,
		ResetAttempts:   5,
	}
}

// Load reads path (if non-empty and present) on top of the defaults, then
// applies environment overrides. A missing file is not an error; a malformed
// one is.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			// fall through to env overrides
		case err != nil:
			return cfg, fmt.Errorf("read config %s: %w", path, err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}

	cfg.applyEnv()
	cfg.ArtifactDir = util.ExpandPath(cfg.ArtifactDir)

	if cfg.ResetAttempts < 1 {
		return cfg, fmt.Errorf("reset_attempts must be >= 1, got %d", cfg.ResetAttempts)
	}
	return cfg, nil
}

// FromEnv returns the defaults with environment overrides applied. This is
// the path the test binaries use; the YAML file is for the CLI.
func FromEnv() Config {
	cfg := Defaults()
	cfg.applyEnv()
	cfg.ArtifactDir = util.ExpandPath(cfg.ArtifactDir)
	return cfg
}

func (c *Config) applyEnv() {
	if v := os.Getenv("E2E_WEB_URL"); v != "" {
		c.WebURL = v
	}
	if v := os.Getenv("E2E_API_URL"); v != "" {
		c.APIURL = v
	}
	if v := os.Getenv("E2E_HEADLESS"); v != "" {
		// Only an explicit "false" opts into a visible browser.
		c.Headless = v != "false"
	}
	if v := os.Getenv("E2E_LOG_DIR"); v != "" {
		c.ArtifactDir = v
	}
	if v := os.Getenv("E2E_RESET_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.ResetAttempts = n
		}
	}
	if v := os.Getenv("E2E_SCENARIO_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			c.ScenarioTimeout = d
		}
	}
}

// Enabled reports whether browser e2e tests are switched on. Tests skip
// themselves when this is false so `go test ./...` stays green on machines
// without the app running.
func Enabled() bool {
	return os.Getenv("E2E_WEBUI_ENABLED") == "true"
}
