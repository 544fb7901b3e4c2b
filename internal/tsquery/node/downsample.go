package node

import (
	"context"
	"time"

	"github.com/flowmetrics/qpipe/internal/tsquery/kernel"
	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// DownsampleConfig configures a Downsample node.
type DownsampleConfig struct {
	ID         string
	Upstream   string
	Interval   time.Duration
	Calendar   kernel.CalendarUnit
	Timezone   string
	Aggregator kernel.Aggregator
	Percentile float64
	Filler     kernel.Filler
	Start      tsvalue.Timestamp
	End        tsvalue.Timestamp
}

// DownsampleNode buckets input into fixed (or calendar) intervals, applies
// an aggregator per bucket, and emits array-typed results carrying a
// TimeSpecification.
type DownsampleNode struct {
	stateMachine
	cfg DownsampleConfig
}

func NewDownsample(cfg DownsampleConfig) *DownsampleNode { return &DownsampleNode{cfg: cfg} }

func (n *DownsampleNode) Name() string { return n.cfg.ID }

func (n *DownsampleNode) Types() []tsvalue.TypeToken {
	return []tsvalue.TypeToken{tsvalue.TypeNumericArray}
}

func (n *DownsampleNode) State() State { return n.current() }

func (n *DownsampleNode) Run(ctx context.Context) (any, error) {
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

	loc := time.UTC
	if n.cfg.Timezone != "" {
		if l, err := time.LoadLocation(n.cfg.Timezone); err == nil {
			loc = l
		}
	}
	bucketer := kernel.Bucketer{
		Interval:   n.cfg.Interval,
		Calendar:   n.cfg.Calendar,
		Location:   loc,
		Aggregator: n.cfg.Aggregator,
		Percentile: n.cfg.Percentile,
		Filler:     n.cfg.Filler,
	}

	out := &tsresult.QueryResult{
		NodeID:     n.cfg.ID,
		Source:     in.Source,
		Sequence:   in.Sequence,
		Resolution: in.Resolution,
	}
	out.WithTimeSpec(tsresult.TimeSpecification{
		Start:    n.cfg.Start,
		End:      n.cfg.End,
		Interval: n.cfg.Interval,
		Timezone: n.cfg.Timezone,
	})

	for _, series := range in.Series {
		cur, err := series.Cursor(tsvalue.TypeNumeric)
		if err != nil {
			continue
		}
		var points []tsvalue.NumericPoint
		for cur.Next() {
			points = append(points, cur.Numeric())
		}
		buckets := bucketer.Downsample(points, n.cfg.Start, n.cfg.End)

		values := make([]float64, len(buckets))
		missing := make([]bool, len(buckets))
		var arrayStart tsvalue.Timestamp
		for i, b := range buckets {
			if i == 0 {
				arrayStart = b.Start
			}
			values[i] = b.Value
			missing[i] = b.Count == 0 && kernel.IsMissing(b.Value)
		}

		result := tsvalue.NewTimeSeries(series.ID, qc.Registry)
		result.Set(tsvalue.TypeNumericArray, tsvalue.NumericArray{Start: arrayStart, Values: values, Missing: missing})
		out.Series = append(out.Series, result)
	}

	n.transition(Complete)
	return out, nil
}
