package sse

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/zerg-ai/jarvis-e2e/internal/poll"
)

// Capture drains a stream in the background and accumulates its frames so a
// test can assert on them after (or while) the stream runs. Events are
// in-memory only and discarded with the test.
type Capture struct {
	mu     sync.Mutex
	events []Envelope
	err    error
	done   chan struct{}
}

// NewCapture starts draining r. The returned Capture's Wait methods observe
// frames as they arrive; Close the underlying body to stop early.
func NewCapture(r io.Reader) *Capture {
	c := &Capture{done: make(chan struct{})}
	go c.drain(r)
	return c
}

func (c *Capture) drain(r io.Reader) {
	defer close(c.done)
	dec := NewDecoder(r)
	for {
		env, err := dec.Next()
		if err != nil {
			if err != io.EOF {
				c.mu.Lock()
				c.err = err
				c.mu.Unlock()
			}
			return
		}
		c.mu.Lock()
		c.events = append(c.events, env)
		c.mu.Unlock()
	}
}

// Events returns a snapshot of all frames captured so far.
func (c *Capture) Events() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, len(c.events))
	copy(out, c.events)
	return out
}

// Err returns the first decode error, if any, once the stream ends.
func (c *Capture) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed when the stream ends.
func (c *Capture) Done() <-chan struct{} { return c.done }

// WaitFor blocks until a frame with the given event discriminator has been
// captured, polling at a short interval, and returns it.
func (c *Capture) WaitFor(ctx context.Context, event string, timeout time.Duration) (Envelope, error) {
	var found Envelope
	err := poll.UntilTimeout(ctx, timeout, 50*time.Millisecond,
		fmt.Sprintf("sse event %q", event),
		func(context.Context) (bool, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			for _, env := range c.events {
				if env.Event == event {
					found = env
					return true, nil
				}
			}
			if c.err != nil {
				return false, poll.Permanent(c.err)
			}
			return false, nil
		})
	return found, err
}

// WaitForSequence asserts that the given discriminators appear in order
// (other events may interleave) before the timeout.
func (c *Capture) WaitForSequence(ctx context.Context, timeout time.Duration, events ...string) error {
	return poll.UntilTimeout(ctx, timeout, 50*time.Millisecond,
		fmt.Sprintf("sse sequence %v", events),
		func(context.Context) (bool, error) {
			c.mu.Lock()
			defer c.mu.Unlock()
			i := 0
			for _, env := range c.events {
				if i < len(events) && env.Event == events[i] {
					i++
				}
			}
			if i == len(events) {
				return true, nil
			}
			if c.err != nil {
				return false, poll.Permanent(c.err)
			}
			return false, nil
		})
}
