package node

import (
	"context"

	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// RateConfig configures a Rate node.
type RateConfig struct {
	ID         string
	Upstream   string
	IsCounter  bool
	CounterMax float64
	ResetValue float64
}

// RateNode computes first-differences over time. When IsCounter is set, a
// decrease between consecutive samples is treated as a counter rollover:
// the delta is corrected assuming the counter wrapped at CounterMax back to
// ResetValue, per §4.3/§8 scenario 3.
type RateNode struct {
	stateMachine
	cfg RateConfig
}

func NewRate(cfg RateConfig) *RateNode { return &RateNode{cfg: cfg} }

func (n *RateNode) Name() string { return n.cfg.ID }

func (n *RateNode) Types() []tsvalue.TypeToken {
	return []tsvalue.TypeToken{tsvalue.TypeNumeric}
}

func (n *RateNode) State() State { return n.current() }

func (n *RateNode) Run(ctx context.Context) (any, error) {
	n.transition(Running)
	qc, ok := FromContext(ctx)
	if !ok {
		n.transition(Failed)
		return nil, errMissingContext(n.cfg.ID)
	}
	in, ok := qc.Get(n.cfg.Upstream)
	if !ok {
		n.transition(Failed)
		return nil, errMissingUpstream(n.cfg.ID, n.cfg.Upstream)
	}

	out := &tsresult.QueryResult{
		NodeID:     n.cfg.ID,
		Source:     in.Source,
		Sequence:   in.Sequence,
		Resolution: in.Resolution,
	}

	for _, series := range in.Series {
		cur, err := series.Cursor(tsvalue.TypeNumeric)
		if err != nil {
			continue
		}
		var points []tsvalue.NumericPoint
		for cur.Next() {
			points = append(points, cur.Numeric())
		}
		rates := n.computeRates(points)
		result := tsvalue.NewTimeSeries(series.ID, qc.Registry)
		result.Set(tsvalue.TypeNumeric, rates)
		out.Series = append(out.Series, result)
	}

	n.transition(Complete)
	return out, nil
}

func (n *RateNode) computeRates(points []tsvalue.NumericPoint) []tsvalue.NumericPoint {
	if len(points) < 2 {
		return nil
	}
	out := make([]tsvalue.NumericPoint, 0, len(points)-1)
	for i := 1; i < len(points); i++ {
		prev, cur := points[i-1], points[i]
		// Delta is taken in the series' own epoch units (invariant:
		// resolution is monotone within a single series), not normalized
		// to seconds — matching the source's raw "value change per epoch
		// unit" rate semantics rather than a wall-clock-seconds rate.
		deltaT := float64(cur.Timestamp.Epoch - prev.Timestamp.Epoch)
		if deltaT <= 0 {
			continue
		}
		deltaV := cur.Value - prev.Value
		if n.cfg.IsCounter && deltaV < 0 {
			deltaV = (n.cfg.CounterMax - prev.Value) + (cur.Value - n.cfg.ResetValue)
		}
		out = append(out, tsvalue.NumericPoint{
			Timestamp: cur.Timestamp,
			Value:     deltaV / deltaT,
		})
	}
	return out
}
