package report

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func sampleScenarios() []Scenario {
	return []Scenario{
		{Name: "fiche-crud", Status: StatusPass, DurationMs: 1200},
		{Name: "chat-stream", Status: StatusFail, DurationMs: 4500, Error: "timed out waiting for supervisor:complete"},
		{Name: "scheduling-ui", Status: StatusSkip},
	}
}

func TestNewRunSummary(t *testing.T) {
	run := NewRun("r1", "w1", time.Now().Add(-2*time.Second), sampleScenarios())
	if run.Summary.Total != 3 || run.Summary.Passed != 1 || run.Summary.Failed != 1 || run.Summary.Skipped != 1 {
		t.Errorf("summary = %+v", run.Summary)
	}
	if run.Duration <= 0 {
		t.Errorf("duration = %v", run.Duration)
	}
}

func TestWriteJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.json")
	run := NewRun("r1", "w1", time.Now(), sampleScenarios())
	if err := WriteJSON(run, path); err != nil {
		t.Fatalf("WriteJSON: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "chat-stream") {
		t.Error("report missing scenario name")
	}
}

func TestStoreSaveAndQuery(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatalf("OpenStore: %v", err)
	}
	defer store.Close()
	ctx := context.Background()

	base := time.Now().Add(-time.Hour)
	for i, scenarios := range [][]Scenario{
		{{Name: "fiche-crud", Status: StatusPass}, {Name: "chat-stream", Status: StatusFail}},
		{{Name: "fiche-crud", Status: StatusPass}, {Name: "chat-stream", Status: StatusPass}},
		{{Name: "fiche-crud", Status: StatusPass}, {Name: "chat-stream", Status: StatusFail}},
	} {
		run := NewRun(string(rune('a'+i)), "w1", base.Add(time.Duration(i)*time.Minute), scenarios)
		if err := store.SaveRun(ctx, run); err != nil {
			t.Fatalf("SaveRun %d: %v", i, err)
		}
	}

	runs, err := store.RecentRuns(ctx, 10)
	if err != nil {
		t.Fatalf("RecentRuns: %v", err)
	}
	if len(runs) != 3 {
		t.Fatalf("len(runs) = %d, want 3", len(runs))
	}
	if runs[0].RunID != "c" {
		t.Errorf("newest run = %q, want c", runs[0].RunID)
	}

	rates, err := store.FlakeRates(ctx, 10)
	if err != nil {
		t.Fatalf("FlakeRates: %v", err)
	}
	if len(rates) != 2 {
		t.Fatalf("len(rates) = %d, want 2", len(rates))
	}
	// chat-stream failed 2 of 3, must sort first.
	if rates[0].Name != "chat-stream" {
		t.Errorf("worst scenario = %q", rates[0].Name)
	}
	if got := rates[0].Rate(); got < 0.6 || got > 0.7 {
		t.Errorf("chat-stream rate = %v, want ~0.67", got)
	}
	if rates[1].Name != "fiche-crud" || rates[1].Failures != 0 {
		t.Errorf("fiche-crud rate = %+v", rates[1])
	}
}

func TestStoreDuplicateRunRejected(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "history.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer store.Close()
	ctx := context.Background()

	run := NewRun("dup", "w1", time.Now(), nil)
	if err := store.SaveRun(ctx, run); err != nil {
		t.Fatal(err)
	}
	if err := store.SaveRun(ctx, run); err == nil {
		t.Error("expected primary key violation for duplicate run id")
	}
}

func TestFlakeRateZeroRuns(t *testing.T) {
	if got := (FlakeRate{}).Rate(); got != 0 {
		t.Errorf("Rate() on zero runs = %v", got)
	}
}
