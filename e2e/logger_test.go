//go:build e2e

package e2e

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	json "github.com/goccy/go-json"

	"github.com/zerg-ai/jarvis-e2e/internal/config"
	"github.com/zerg-ai/jarvis-e2e/internal/util"
)

// TestLogger tees test output to t.Log and a per-scenario file in the
// artifact directory, so CI failures keep a transcript even when the
// runner truncates output.
type TestLogger struct {
	t        *testing.T
	scenario string

	mu   sync.Mutex
	file *os.File
}

// NewTestLogger creates a logger for one scenario.
func NewTestLogger(t *testing.T, scenario string) *TestLogger {
	t.Helper()

	dir := config.FromEnv().ArtifactDir
	if err := util.EnsureDir(dir); err != nil {
		t.Logf("[E2E] cannot create artifact dir %s: %v", dir, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("%s-%d.log", scenario, time.Now().Unix()))
	file, err := os.Create(path)
	if err != nil {
		t.Logf("[E2E] cannot create log file %s: %v (logging to test output only)", path, err)
		file = nil
	}

	return &TestLogger{t: t, scenario: scenario, file: file}
}

// Log writes a formatted line to the test output and the transcript.
func (l *TestLogger) Log(format string, args ...any) {
	l.t.Helper()
	msg := fmt.Sprintf(format, args...)
	l.t.Log(msg)

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		fmt.Fprintf(l.file, "%s %s\n", time.Now().Format("15:04:05.000"), msg)
	}
}

// LogJSON pretty-prints a value into the transcript.
func (l *TestLogger) LogJSON(label string, v any) {
	l.t.Helper()
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		l.Log("%s: <unmarshalable: %v>", label, err)
		return
	}
	l.Log("%s: %s", label, data)
}

// Close flushes and closes the transcript file.
func (l *TestLogger) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}
}
