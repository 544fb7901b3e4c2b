package inprocsink

import (
	"context"
	"testing"
	"time"

	"github.com/flowmetrics/qpipe/internal/tsquery/sink"
	"github.com/flowmetrics/qpipe/internal/tsresult"
)

func TestSendAndReceive(t *testing.T) {
	s := New("inproc", 4)
	env := sink.Envelope{Sink: "inproc", Result: &tsresult.QueryResult{NodeID: "m1"}}

	if err := s.Send(context.Background(), env); err != nil {
		t.Fatalf("send: %v", err)
	}

	select {
	case got := <-s.Receive():
		if got.Result.NodeID != "m1" {
			t.Fatalf("unexpected envelope: %+v", got)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for delivered envelope")
	}
}

func TestSendBlocksUntilContextDone(t *testing.T) {
	s := New("inproc", 1)
	ctx := context.Background()
	if err := s.Send(ctx, sink.Envelope{}); err != nil {
		t.Fatalf("first send: %v", err)
	}

	cancelled, cancel := context.WithCancel(ctx)
	cancel()
	if err := s.Send(cancelled, sink.Envelope{}); err == nil {
		t.Fatal("expected send on a full channel with a cancelled context to fail")
	}
}
