// Package ssesink delivers results over Server-Sent Events, grounded on
// sse/hub.go's Hub/broadcast-by-pattern mechanism: each query execution
// broadcasts its envelopes under a pattern scoped to the query so only
// subscribers of that query's stream receive them.
package ssesink

import (
	"context"
	"encoding/json"

	"github.com/flowmetrics/qpipe/internal/tsquery/sink"
	"github.com/flowmetrics/qpipe/sse"
)

// wireEnvelope is the JSON shape pushed to subscribers; it omits the
// internal TimeSeries pointer graph and carries only the series count, not
// the series data.
type wireEnvelope struct {
	Sink      string   `json:"sink"`
	NodeID    string   `json:"node_id,omitempty"`
	Cancelled bool     `json:"cancelled"`
	Warnings  []string `json:"warnings,omitempty"`
	Series    int      `json:"series_count"`
}

// Sink broadcasts each delivered envelope to hub under a per-query pattern.
type Sink struct {
	name    string
	hub     *sse.Hub
	pattern string
}

// New returns a Sink named name that broadcasts through hub under pattern
// (typically "query:<id>" so ServeSSE subscribers scoped to that pattern
// receive only their own query's results).
func New(name string, hub *sse.Hub, pattern string) *Sink {
	return &Sink{name: name, hub: hub, pattern: pattern}
}

func (s *Sink) Name() string { return s.name }

func (s *Sink) IsAvailable(context.Context) bool { return s.hub != nil }

func (s *Sink) Send(_ context.Context, env sink.Envelope) error {
	wire := wireEnvelope{Sink: env.Sink, Cancelled: env.Cancelled, Warnings: env.Warnings}
	if env.Result != nil {
		wire.NodeID = env.Result.NodeID
		wire.Series = len(env.Result.Series)
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	s.hub.BroadcastToPattern(s.pattern, data)
	return nil
}
