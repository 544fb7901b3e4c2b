// Package sink defines the output contract every query result delivery
// adapter implements, per §7: a query's outputs are attached to sinks by
// name at plan-build time, and the executor delivers each output node's
// terminal QueryResult (plus any trailer warnings) to its bound sink.
package sink

import (
	"context"

	"github.com/flowmetrics/qpipe/internal/tsresult"
)

// Envelope is what the executor hands to a sink: the output's sink name
// (as declared in the query's OutputSpec), the terminal result, and
// whether the pipeline that produced it was cancelled before completion.
type Envelope struct {
	Sink      string
	Result    *tsresult.QueryResult
	Cancelled bool
	Warnings  []string
}

// Sink is the delivery contract, shaped like provider.Sink[I] (the
// teacher's "accepts input, no meaningful output" provider kind) rather
// than RequestResponse: delivery failures are observability, not pipeline
// failures — a sink that can't be reached doesn't unwind the query.
type Sink interface {
	Name() string
	IsAvailable(ctx context.Context) bool
	Send(ctx context.Context, env Envelope) error
}

// Registry resolves a query's named sink attachments (OutputSpec.Sink) to
// concrete Sink instances, consulted by the executor after a plan's
// Outputs are computed.
type Registry struct {
	sinks map[string]Sink
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{sinks: map[string]Sink{}}
}

// Register binds a sink under name, overwriting any prior binding.
func (r *Registry) Register(name string, s Sink) {
	r.sinks[name] = s
}

// Resolve returns the sink bound to name, if any.
func (r *Registry) Resolve(name string) (Sink, bool) {
	s, ok := r.sinks[name]
	return s, ok
}

// Deliver resolves env.Sink and calls Send on it, returning an error if
// the sink name has no binding.
func (r *Registry) Deliver(ctx context.Context, env Envelope) error {
	s, ok := r.sinks[env.Sink]
	if !ok {
		return &UnknownSinkError{Name: env.Sink}
	}
	return s.Send(ctx, env)
}

// UnknownSinkError reports a query output naming a sink with no registered
// binding.
type UnknownSinkError struct{ Name string }

func (e *UnknownSinkError) Error() string {
	return "sink: no binding registered for sink name " + e.Name
}
