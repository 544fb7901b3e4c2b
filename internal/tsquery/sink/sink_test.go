package sink

import (
	"context"
	"testing"

	"github.com/flowmetrics/qpipe/internal/tsresult"
)

type recordingSink struct {
	name     string
	received []Envelope
}

func (s *recordingSink) Name() string                      { return s.name }
func (s *recordingSink) IsAvailable(context.Context) bool   { return true }
func (s *recordingSink) Send(_ context.Context, e Envelope) error {
	s.received = append(s.received, e)
	return nil
}

func TestRegistryDeliversToBoundSink(t *testing.T) {
	r := NewRegistry()
	rec := &recordingSink{name: "inproc"}
	r.Register("inproc", rec)

	env := Envelope{Sink: "inproc", Result: &tsresult.QueryResult{NodeID: "m1"}}
	if err := r.Deliver(context.Background(), env); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if len(rec.received) != 1 || rec.received[0].Result.NodeID != "m1" {
		t.Fatalf("expected sink to receive the envelope, got %+v", rec.received)
	}
}

func TestRegistryRejectsUnknownSink(t *testing.T) {
	r := NewRegistry()
	err := r.Deliver(context.Background(), Envelope{Sink: "missing"})
	if err == nil {
		t.Fatal("expected an error for an unbound sink name")
	}
}
