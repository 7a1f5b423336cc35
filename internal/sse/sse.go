// Package sse decodes the server-sent-event stream produced by the Jarvis
// chat endpoint and captures its frames for assertion. Each frame's data
// field is a JSON envelope carrying an event discriminator and a payload.
package sse

import (
	"bufio"
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"
)

// Event discriminators emitted by the chat stream.
const (
	EventWorkerSpawned      = "worker:spawned"
	EventWorkerComplete     = "worker:complete"
	EventSupervisorComplete = "supervisor:complete"
	EventToolCall           = "tool:call"
	EventToken              = "token"
	EventError              = "error"
)

// Envelope is one decoded stream frame.
type Envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// DecodePayload unmarshals the payload into v.
func (e Envelope) DecodePayload(v any) error {
	if len(e.Payload) == 0 {
		return fmt.Errorf("event %q has no payload", e.Event)
	}
	if err := json.Unmarshal(e.Payload, v); err != nil {
		return fmt.Errorf("decode %q payload: %w", e.Event, err)
	}
	return nil
}

// Decoder reads SSE frames from a stream. It understands the subset of the
// SSE wire format the app emits: "data:" lines holding the JSON envelope,
// blank-line frame terminators, and ":" comment keep-alives (ignored).
type Decoder struct {
	r *bufio.Reader
}

// NewDecoder wraps r. The caller retains ownership of the underlying
// response body and must close it.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: bufio.NewReader(r)}
}

// Next returns the next frame. io.EOF signals a cleanly closed stream.
func (d *Decoder) Next() (Envelope, error) {
	var data strings.Builder
	sawData := false

	for {
		line, err := d.r.ReadString('\n')
		if err != nil {
			if err == io.EOF && sawData {
				// Stream closed mid-frame; decode what we have.
				return decodeData(data.String())
			}
			return Envelope{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		switch {
		case line == "":
			if sawData {
				return decodeData(data.String())
			}
			// Leading blank line between frames.
		case strings.HasPrefix(line, ":"):
			// Comment / keep-alive.
		case strings.HasPrefix(line, "data:"):
			if sawData {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
			sawData = true
		default:
			// event:/id:/retry: fields are not used by the app; the
			// discriminator lives inside the JSON envelope.
		}
	}
}

func decodeData(data string) (Envelope, error) {
	if data == "[DONE]" {
		return Envelope{}, io.EOF
	}
	var env Envelope
	if err := json.Unmarshal([]byte(data), &env); err != nil {
		return Envelope{}, fmt.Errorf("decode sse frame %q: %w", truncate(data, 120), err)
	}
	if env.Event == "" {
		return Envelope{}, fmt.Errorf("sse frame missing event discriminator: %s", truncate(data, 120))
	}
	return env, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
