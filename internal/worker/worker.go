// Package worker derives the worker-scoped identifier that namespaces all
// backend state touched by a test process. Every HTTP request carries it in
// a header and every WebSocket upgrade carries it as a query parameter, so
// parallel test workers operate on isolated logical databases server-side.
package worker

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const (
	// Header is the HTTP header the backend partitions on.
	Header = "X-Test-Worker"

	// QueryParam is the WebSocket upgrade query parameter carrying the
	// same identifier.
	QueryParam = "worker_id"
)

var (
	once sync.Once
	id   string
)

// ID returns this process's worker identifier. The first caller fixes it
// for the lifetime of the process.
//
// Precedence: E2E_WORKER_ID (explicit CI sharding), then GOTEST_SHARD
// (index-based sharding), then a process-unique fallback. Go's test runner
// has no equivalent of a parallel-worker index exposed to the test body, so
// the fallback keys on a random UUID suffix instead.
func ID() string {
	once.Do(func() {
		id = derive(os.Getenv("E2E_WORKER_ID"), os.Getenv("GOTEST_SHARD"))
	})
	return id
}

func derive(explicit, shard string) string {
	if explicit != "" {
		return sanitize(explicit)
	}
	if shard != "" {
		return "w" + sanitize(shard)
	}
	return "w-" + uuid.NewString()[:8]
}

// sanitize keeps identifiers header- and query-safe.
func sanitize(s string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == '-' || r == '_':
			return r
		default:
			return '-'
		}
	}, s)
}

// TagURL appends the worker identifier to a WebSocket (or HTTP) URL as the
// worker_id query parameter, preserving any existing query string. This is
// the Go-side mirror of the rewrite the browser script applies to the
// WebSocket constructor.
func TagURL(raw, workerID string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("tag url %q: %w", raw, err)
	}
	q := u.Query()
	q.Set(QueryParam, workerID)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
