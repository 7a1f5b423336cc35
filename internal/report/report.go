// Package report models e2e run reports and persists a run history so CI
// can watch flake rates drift over time.
package report

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	json "github.com/goccy/go-json"

	"github.com/zerg-ai/jarvis-e2e/internal/util"
)

// Run is one suite execution.
type Run struct {
	RunID     string     `json:"run_id"`
	WorkerID  string     `json:"worker_id"`
	StartedAt time.Time  `json:"started_at"`
	Duration  float64    `json:"duration_seconds"`
	Scenarios []Scenario `json:"scenarios"`
	Summary   Summary    `json:"summary"`
}

// Scenario is one test scenario's outcome.
type Scenario struct {
	Name       string  `json:"name"`
	Status     Status  `json:"status"`
	DurationMs float64 `json:"duration_ms"`
	Error      string  `json:"error,omitempty"`
}

// Status is a scenario outcome.
type Status string

const (
	StatusPass Status = "pass"
	StatusFail Status = "fail"
	StatusSkip Status = "skip"
)

// Summary aggregates a run.
type Summary struct {
	Total   int `json:"total"`
	Passed  int `json:"passed"`
	Failed  int `json:"failed"`
	Skipped int `json:"skipped"`
}

// NewRun assembles a run from scenario outcomes.
func NewRun(runID, workerID string, startedAt time.Time, scenarios []Scenario) Run {
	summary := Summary{Total: len(scenarios)}
	for _, s := range scenarios {
		switch s.Status {
		case StatusPass:
			summary.Passed++
		case StatusSkip:
			summary.Skipped++
		default:
			summary.Failed++
		}
	}
	return Run{
		RunID:     runID,
		WorkerID:  workerID,
		StartedAt: startedAt,
		Duration:  time.Since(startedAt).Seconds(),
		Scenarios: scenarios,
		Summary:   summary,
	}
}

// WriteJSON saves the run report to path.
func WriteJSON(run Run, path string) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return fmt.Errorf("encode run report: %w", err)
	}
	if err := util.EnsureDir(filepath.Dir(path)); err != nil {
		return fmt.Errorf("create report dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write run report: %w", err)
	}
	return nil
}
