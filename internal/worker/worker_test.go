package worker

import (
	"net/url"
	"strings"
	"testing"
)

func TestDerivePrecedence(t *testing.T) {
	if got := derive("ci-3", "7"); got != "ci-3" {
		t.Errorf("explicit id: got %q, want %q", got, "ci-3")
	}
	if got := derive("", "7"); got != "w7" {
		t.Errorf("shard id: got %q, want %q", got, "w7")
	}
	got := derive("", "")
	if !strings.HasPrefix(got, "w-") || len(got) != len("w-")+8 {
		t.Errorf("fallback id: got %q, want w-<8 chars>", got)
	}
}

func TestDeriveFallbackUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := derive("", "")
		if seen[id] {
			t.Fatalf("duplicate fallback id %q", id)
		}
		seen[id] = true
	}
}

func TestSanitize(t *testing.T) {
	cases := map[string]string{
		"plain":         "plain",
		"with space":    "with-space",
		"shard/3":       "shard-3",
		"ok_under-dash": "ok_under-dash",
	}
	for in, want := range cases {
		if got := sanitize(in); got != want {
			t.Errorf("sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestIDStable(t *testing.T) {
	a, b := ID(), ID()
	if a != b {
		t.Errorf("ID not stable across calls: %q vs %q", a, b)
	}
	if a == "" {
		t.Error("ID is empty")
	}
}

func TestTagURL(t *testing.T) {
	got, err := TagURL("ws://localhost:47300/ws/events", "w3")
	if err != nil {
		t.Fatal(err)
	}
	u, err := url.Parse(got)
	if err != nil {
		t.Fatal(err)
	}
	if u.Query().Get(QueryParam) != "w3" {
		t.Errorf("worker_id = %q, want w3", u.Query().Get(QueryParam))
	}
}

func TestTagURLPreservesQuery(t *testing.T) {
	got, err := TagURL("ws://h/ws?thread=42", "w9")
	if err != nil {
		t.Fatal(err)
	}
	u, _ := url.Parse(got)
	if u.Query().Get("thread") != "42" {
		t.Errorf("existing query lost: %q", got)
	}
	if u.Query().Get(QueryParam) != "w9" {
		t.Errorf("worker_id missing: %q", got)
	}
}

func TestTagURLInvalid(t *testing.T) {
	if _, err := TagURL("ws://local host/%zz", "w1"); err == nil {
		t.Error("expected error for invalid URL")
	}
}
