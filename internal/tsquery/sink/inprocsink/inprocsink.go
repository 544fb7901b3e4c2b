// Package inprocsink delivers results to an in-process subscriber over a
// buffered channel, grounded on pipeline/concurrent.go's Buffer: producer
// and consumer run at independent rates, decoupled by a fixed-size channel
// rather than a direct call.
package inprocsink

import (
	"context"

	"github.com/flowmetrics/qpipe/internal/tsquery/sink"
)

// Sink delivers envelopes to a buffered channel a caller (typically an
// HTTP handler holding the query's originating request) drains directly.
type Sink struct {
	name string
	ch   chan sink.Envelope
}

// New returns a Sink named name, buffering up to capacity envelopes before
// Send blocks.
func New(name string, capacity int) *Sink {
	if capacity <= 0 {
		capacity = 1
	}
	return &Sink{name: name, ch: make(chan sink.Envelope, capacity)}
}

func (s *Sink) Name() string { return s.name }

func (s *Sink) IsAvailable(context.Context) bool { return true }

// Send enqueues env, blocking until the channel has room or ctx is done.
func (s *Sink) Send(ctx context.Context, env sink.Envelope) error {
	select {
	case s.ch <- env:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Receive returns the channel a subscriber reads delivered envelopes from.
func (s *Sink) Receive() <-chan sink.Envelope { return s.ch }

// Close signals no further envelopes will be sent.
func (s *Sink) Close() { close(s.ch) }
