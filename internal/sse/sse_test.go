package sse

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestDecoderSingleFrame(t *testing.T) {
	in := "data: {\"event\":\"worker:spawned\",\"payload\":{\"worker_id\":\"wk-1\"}}\n\n"
	dec := NewDecoder(strings.NewReader(in))

	env, err := dec.Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if env.Event != EventWorkerSpawned {
		t.Errorf("event = %q, want %q", env.Event, EventWorkerSpawned)
	}

	var payload struct {
		WorkerID string `json:"worker_id"`
	}
	if err := env.DecodePayload(&payload); err != nil {
		t.Fatalf("DecodePayload: %v", err)
	}
	if payload.WorkerID != "wk-1" {
		t.Errorf("worker_id = %q", payload.WorkerID)
	}

	if _, err := dec.Next(); err != io.EOF {
		t.Errorf("expected EOF after last frame, got %v", err)
	}
}

func TestDecoderMultipleFramesAndKeepalives(t *testing.T) {
	in := strings.Join([]string{
		": keep-alive",
		"",
		`data: {"event":"worker:spawned"}`,
		"",
		": keep-alive",
		`data: {"event":"worker:complete"}`,
		"",
		`data: {"event":"supervisor:complete"}`,
		"",
	}, "\n") + "\n"

	dec := NewDecoder(strings.NewReader(in))
	want := []string{EventWorkerSpawned, EventWorkerComplete, EventSupervisorComplete}
	for i, w := range want {
		env, err := dec.Next()
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if env.Event != w {
			t.Errorf("frame %d = %q, want %q", i, env.Event, w)
		}
	}
}

func TestDecoderCRLF(t *testing.T) {
	in := "data: {\"event\":\"token\"}\r\n\r\n"
	env, err := NewDecoder(strings.NewReader(in)).Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if env.Event != EventToken {
		t.Errorf("event = %q", env.Event)
	}
}

func TestDecoderUnterminatedFinalFrame(t *testing.T) {
	in := "data: {\"event\":\"supervisor:complete\"}"
	env, err := NewDecoder(strings.NewReader(in)).Next()
	if err != nil {
		t.Fatalf("Next: %v", err)
	}
	if env.Event != EventSupervisorComplete {
		t.Errorf("event = %q", env.Event)
	}
}

func TestDecoderDoneSentinel(t *testing.T) {
	in := "data: [DONE]\n\n"
	if _, err := NewDecoder(strings.NewReader(in)).Next(); err != io.EOF {
		t.Errorf("expected EOF for [DONE], got %v", err)
	}
}

func TestDecoderBadJSON(t *testing.T) {
	in := "data: {not json\n\n"
	if _, err := NewDecoder(strings.NewReader(in)).Next(); err == nil {
		t.Error("expected decode error")
	}
}

func TestDecoderMissingDiscriminator(t *testing.T) {
	in := "data: {\"payload\":{}}\n\n"
	if _, err := NewDecoder(strings.NewReader(in)).Next(); err == nil {
		t.Error("expected error for frame without event field")
	}
}

func TestCaptureFromHTTPStream(t *testing.T) {
	frames := []string{
		`{"event":"worker:spawned","payload":{"worker_id":"wk-1"}}`,
		`{"event":"tool:call","payload":{"tool":"search"}}`,
		`{"event":"worker:complete","payload":{"worker_id":"wk-1"}}`,
		`{"event":"supervisor:complete","payload":{"answer":"done"}}`,
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		fl := w.(http.Flusher)
		for _, f := range frames {
			fmt.Fprintf(w, "data: %s\n\n", f)
			fl.Flush()
			time.Sleep(10 * time.Millisecond)
		}
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()

	capt := NewCapture(resp.Body)

	env, err := capt.WaitFor(context.Background(), EventSupervisorComplete, 5*time.Second)
	if err != nil {
		t.Fatalf("WaitFor: %v", err)
	}
	var payload struct {
		Answer string `json:"answer"`
	}
	if err := env.DecodePayload(&payload); err != nil {
		t.Fatal(err)
	}
	if payload.Answer != "done" {
		t.Errorf("answer = %q", payload.Answer)
	}

	if err := capt.WaitForSequence(context.Background(), time.Second,
		EventWorkerSpawned, EventWorkerComplete, EventSupervisorComplete); err != nil {
		t.Errorf("WaitForSequence: %v", err)
	}

	<-capt.Done()
	if err := capt.Err(); err != nil {
		t.Errorf("capture error: %v", err)
	}
	if got := len(capt.Events()); got != len(frames) {
		t.Errorf("captured %d events, want %d", got, len(frames))
	}
}

func TestCaptureWaitForTimeout(t *testing.T) {
	capt := NewCapture(strings.NewReader("data: {\"event\":\"token\"}\n\n"))
	<-capt.Done()

	_, err := capt.WaitFor(context.Background(), EventSupervisorComplete, 100*time.Millisecond)
	if err == nil {
		t.Fatal("expected timeout waiting for event that never arrives")
	}
	if !strings.Contains(err.Error(), EventSupervisorComplete) {
		t.Errorf("timeout error should name the event: %v", err)
	}
}

func TestCaptureWaitForOutOfOrderSequence(t *testing.T) {
	in := "data: {\"event\":\"worker:complete\"}\n\ndata: {\"event\":\"worker:spawned\"}\n\n"
	capt := NewCapture(strings.NewReader(in))
	<-capt.Done()

	err := capt.WaitForSequence(context.Background(), 100*time.Millisecond,
		EventWorkerSpawned, EventWorkerComplete)
	if err == nil {
		t.Fatal("sequence matcher must respect order")
	}
}
