package node

import (
	"bytes"
	"context"
	"sort"

	"github.com/flowmetrics/qpipe/internal/tsquery/kernel"
	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// TopNConfig configures a TopN node.
type TopNConfig struct {
	ID         string
	Upstream   string
	N          int
	Aggregator kernel.Aggregator // reduces each series to the ranking value
	Percentile float64
	Descending bool // true keeps the N highest values, false the N lowest
}

// TopNNode keeps the top-N series per aggregated metric value. Selection is
// stable: ties broken by id byte order, per §4.3.
type TopNNode struct {
	stateMachine
	cfg TopNConfig
}

func NewTopN(cfg TopNConfig) *TopNNode {
	if cfg.Aggregator == "" {
		cfg.Aggregator = kernel.AggLast
	}
	return &TopNNode{cfg: cfg}
}

func (n *TopNNode) Name() string { return n.cfg.ID }

func (n *TopNNode) Types() []tsvalue.TypeToken {
	return []tsvalue.TypeToken{tsvalue.TypeNumeric, tsvalue.TypeNumericArray}
}

func (n *TopNNode) State() State { return n.current() }

type rankedSeries struct {
	series *tsvalue.TimeSeries
	value  float64
}

func (n *TopNNode) Run(ctx context.Context) (any, error) {
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

	ranked := make([]rankedSeries, 0, len(in.Series))
	for _, s := range in.Series {
		ranked = append(ranked, rankedSeries{series: s, value: n.reduce(s)})
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		vi, vj := ranked[i].value, ranked[j].value
		if vi != vj {
			if n.cfg.Descending {
				return vi > vj
			}
			return vi < vj
		}
		return bytes.Compare(ranked[i].series.ID.Bytes(), ranked[j].series.ID.Bytes()) < 0
	})

	limit := n.cfg.N
	if limit > len(ranked) || limit < 0 {
		limit = len(ranked)
	}

	out := &tsresult.QueryResult{
		NodeID:     n.cfg.ID,
		Source:     in.Source,
		Sequence:   in.Sequence,
		Resolution: in.Resolution,
		TimeSpec:   in.TimeSpec,
	}
	for _, r := range ranked[:limit] {
		out.Series = append(out.Series, r.series)
	}

	n.transition(Complete)
	return out, nil
}

// reduce computes s's ranking value with the configured aggregator, over
// whichever numeric representation s carries.
func (n *TopNNode) reduce(s *tsvalue.TimeSeries) float64 {
	acc := kernel.NewAccumulator(n.cfg.Aggregator, n.cfg.Percentile)
	if cur, err := s.Cursor(tsvalue.TypeNumericArray); err == nil {
		for cur.Next() {
			for _, v := range cur.Array().Values {
				acc.Add(v)
			}
		}
		return acc.Result()
	}
	cur, err := s.Cursor(tsvalue.TypeNumeric)
	if err != nil {
		return acc.Result()
	}
	for cur.Next() {
		acc.Add(cur.Numeric().Value)
	}
	return acc.Result()
}
