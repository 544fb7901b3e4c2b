package node

import (
	"context"

	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// SummarizerConfig configures a Summarizer node. SummaryIDs selects which
// columns of the output NumericSummaryPoint get populated; an empty slice
// populates all of them.
type SummarizerConfig struct {
	ID         string
	Upstream   string
	SummaryIDs []tsvalue.SummaryID
	Percentile float64
}

// SummarizerNode collapses each input series to a single scalar per
// summary-id (sum, count, min, max, avg, first, last), emitting one
// NumericSummaryPoint per series stamped at the series' last timestamp.
type SummarizerNode struct {
	stateMachine
	cfg SummarizerConfig
}

func NewSummarizer(cfg SummarizerConfig) *SummarizerNode {
	if len(cfg.SummaryIDs) == 0 {
		cfg.SummaryIDs = []tsvalue.SummaryID{
			tsvalue.SummarySum, tsvalue.SummaryCount, tsvalue.SummaryMin,
			tsvalue.SummaryMax, tsvalue.SummaryAvg, tsvalue.SummaryFirst, tsvalue.SummaryLast,
		}
	}
	return &SummarizerNode{cfg: cfg}
}

func (n *SummarizerNode) Name() string { return n.cfg.ID }

func (n *SummarizerNode) Types() []tsvalue.TypeToken {
	return []tsvalue.TypeToken{tsvalue.TypeNumericSummary}
}

func (n *SummarizerNode) State() State { return n.current() }

func (n *SummarizerNode) Run(ctx context.Context) (any, error) {
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
		TimeSpec:   in.TimeSpec,
	}
	for _, s := range in.Series {
		summary, lastTS, err := n.summarize(s)
		if err != nil {
			continue
		}
		resultSeries := tsvalue.NewTimeSeries(s.ID, qc.Registry)
		resultSeries.Set(tsvalue.TypeNumericSummary, []tsvalue.NumericSummaryPoint{{Timestamp: lastTS, Values: summary}})
		out.Series = append(out.Series, resultSeries)
	}

	n.transition(Complete)
	return out, nil
}

func (n *SummarizerNode) summarize(s *tsvalue.TimeSeries) (map[tsvalue.SummaryID]float64, tsvalue.Timestamp, error) {
	cur, err := s.Cursor(tsvalue.TypeNumeric)
	if err != nil {
		return nil, tsvalue.Timestamp{}, err
	}

	var sum float64
	var count int64
	var min, max float64
	var first, last float64
	firstSet := false
	var lastTS tsvalue.Timestamp
	for cur.Next() {
		pt := cur.Numeric()
		sum += pt.Value
		count++
		if count == 1 || pt.Value < min {
			min = pt.Value
		}
		if count == 1 || pt.Value > max {
			max = pt.Value
		}
		if !firstSet {
			first = pt.Value
			firstSet = true
		}
		last = pt.Value
		lastTS = pt.Timestamp
	}

	values := map[tsvalue.SummaryID]float64{}
	for _, id := range n.cfg.SummaryIDs {
		switch id {
		case tsvalue.SummarySum:
			values[id] = sum
		case tsvalue.SummaryCount:
			values[id] = float64(count)
		case tsvalue.SummaryMin:
			values[id] = min
		case tsvalue.SummaryMax:
			values[id] = max
		case tsvalue.SummaryAvg:
			if count > 0 {
				values[id] = sum / float64(count)
			}
		case tsvalue.SummaryFirst:
			values[id] = first
		case tsvalue.SummaryLast:
			values[id] = last
		}
	}
	return values, lastTS, nil
}
