// Package rpcsink delivers results via a unary gRPC call, grounded on
// grpc/client/client.go's dial-option assembly (keepalive, TLS, message
// size limits, logging interceptors) but invoked generically through a
// registered JSON codec rather than protoc-generated stubs, since the
// sink's wire contract is just "JSON in, ack out" — any receiver the
// operator points it at.
package rpcsink

import (
	"context"

	"google.golang.org/grpc"

	"github.com/flowmetrics/qpipe/internal/tsquery/sink"
)

type envelopeMessage struct {
	Sink      string   `json:"sink"`
	NodeID    string   `json:"node_id,omitempty"`
	Cancelled bool     `json:"cancelled"`
	Warnings  []string `json:"warnings,omitempty"`
	Series    int      `json:"series_count"`
}

type ackMessage struct {
	Accepted bool `json:"accepted"`
}

// Sink invokes a fixed unary method on conn for each delivered envelope.
type Sink struct {
	name   string
	conn   *grpc.ClientConn
	method string
}

// New returns a Sink named name that invokes method (e.g.
// "/tsquery.Ingest/Deliver") over conn per delivered envelope.
func New(name string, conn *grpc.ClientConn, method string) *Sink {
	return &Sink{name: name, conn: conn, method: method}
}

func (s *Sink) Name() string { return s.name }

func (s *Sink) IsAvailable(ctx context.Context) bool {
	return s.conn != nil && s.conn.GetState().String() != "SHUTDOWN"
}

func (s *Sink) Send(ctx context.Context, env sink.Envelope) error {
	req := envelopeMessage{Sink: env.Sink, Cancelled: env.Cancelled, Warnings: env.Warnings}
	if env.Result != nil {
		req.NodeID = env.Result.NodeID
		req.Series = len(env.Result.Series)
	}
	var ack ackMessage
	return s.conn.Invoke(ctx, s.method, &req, &ack, grpc.CallContentSubtype(codecName))
}
