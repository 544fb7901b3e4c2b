// Package kafkasink delivers results to a Kafka topic, grounded on
// kafka/producer/producer.go's Producer (TLS/SASL-aware writer with
// retries), reusing its SendJSON helper rather than re-implementing
// message construction.
package kafkasink

import (
	"context"

	"github.com/flowmetrics/qpipe/internal/tsquery/sink"
	"github.com/flowmetrics/qpipe/kafka/producer"
)

// wireEnvelope is the JSON payload published per delivered result.
type wireEnvelope struct {
	Sink      string   `json:"sink"`
	NodeID    string   `json:"node_id,omitempty"`
	Cancelled bool     `json:"cancelled"`
	Warnings  []string `json:"warnings,omitempty"`
	Series    int      `json:"series_count"`
}

// Sink publishes each delivered envelope as a JSON message keyed by the
// output's sink name, so a consumer group partitioning on key preserves
// per-output ordering.
type Sink struct {
	name     string
	producer *producer.Producer
	topic    string
}

// New returns a Sink named name that publishes to topic via p.
func New(name string, p *producer.Producer, topic string) *Sink {
	return &Sink{name: name, producer: p, topic: topic}
}

func (s *Sink) Name() string { return s.name }

func (s *Sink) IsAvailable(context.Context) bool { return s.producer != nil }

func (s *Sink) Send(ctx context.Context, env sink.Envelope) error {
	wire := wireEnvelope{Sink: env.Sink, Cancelled: env.Cancelled, Warnings: env.Warnings}
	if env.Result != nil {
		wire.NodeID = env.Result.NodeID
		wire.Series = len(env.Result.Series)
	}
	return s.producer.SendJSON(ctx, s.topic, env.Sink, wire)
}
