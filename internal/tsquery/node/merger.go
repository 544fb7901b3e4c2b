package node

import (
	"context"
	"fmt"
	"sort"

	qerrors "github.com/flowmetrics/qpipe/errors"
	"github.com/flowmetrics/qpipe/internal/tsquery/kernel"
	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// MergerMode selects one of the three merger semantics of §4.3.
type MergerMode string

const (
	MergerHA    MergerMode = "ha"
	MergerShard MergerMode = "shard"
	MergerSplit MergerMode = "split"
)

// PartialFailurePolicy decides whether a Shard merger tolerates the given
// count of failed shards out of total. Pluggable per the Open Question
// resolution recorded in SPEC_FULL.md §5.
type PartialFailurePolicy interface {
	Allow(failed, total int) bool
}

// AllowCount tolerates up to N failed shards.
type AllowCount int

func (n AllowCount) Allow(failed, total int) bool { return failed <= int(n) }

// AllowRatio tolerates a failed-shard fraction up to ratio.
type AllowRatio float64

func (r AllowRatio) Allow(failed, total int) bool {
	if total == 0 {
		return true
	}
	return float64(failed)/float64(total) <= float64(r)
}

// MergerConfig configures a Merger node.
type MergerConfig struct {
	ID           string
	Upstreams    []string
	Mode         MergerMode
	Aggregator   kernel.Aggregator // HA mode reduction, typically "last" or "max"
	AllowPartial bool
	Policy       PartialFailurePolicy // Shard mode; defaults to AllowCount(0)
}

// MergerNode reconciles (HA), unions (Shard), or fans out (Split) multiple
// upstream results.
type MergerNode struct {
	stateMachine
	cfg MergerConfig
}

func NewMerger(cfg MergerConfig) *MergerNode {
	if cfg.Policy == nil {
		cfg.Policy = AllowCount(0)
	}
	if cfg.Aggregator == "" {
		cfg.Aggregator = kernel.AggLast
	}
	return &MergerNode{cfg: cfg}
}

func (n *MergerNode) Name() string { return n.cfg.ID }

func (n *MergerNode) Types() []tsvalue.TypeToken {
	return []tsvalue.TypeToken{tsvalue.TypeNumeric, tsvalue.TypeNumericArray}
}

func (n *MergerNode) State() State { return n.current() }

func (n *MergerNode) Run(ctx context.Context) (any, error) {
	n.transition(Running)
	qc, ok := FromContext(ctx)
	if !ok {
		n.transition(Failed)
		return nil, errMissingContext(n.cfg.ID)
	}

	var results []*tsresult.QueryResult
	var warnings []string
	failed := 0
	for _, up := range n.cfg.Upstreams {
		if r, ok := qc.Get(up); ok {
			results = append(results, r)
			continue
		}
		failed++
		if err, ok := qc.Err(up); ok {
			warnings = append(warnings, fmt.Sprintf("%v on %s", err, up))
		} else {
			warnings = append(warnings, fmt.Sprintf("SOURCE_FAILED on %s", up))
		}
	}

	switch n.cfg.Mode {
	case MergerHA:
		return n.mergeHA(qc, results, warnings, failed)
	case MergerShard:
		return n.mergeShard(qc, results, warnings, failed)
	case MergerSplit:
		return n.split(qc, results)
	default:
		n.transition(Failed)
		return nil, fmt.Errorf("merger %s: unknown mode %q", n.cfg.ID, n.cfg.Mode)
	}
}

// mergeHA requires at least one surviving replica (§8: HA survivability).
func (n *MergerNode) mergeHA(qc *Context, results []*tsresult.QueryResult, warnings []string, failed int) (any, error) {
	if len(results) == 0 {
		n.transition(Failed)
		return nil, qerrors.SourceFailedError(n.cfg.ID, fmt.Errorf("all HA replicas failed"))
	}

	byID := map[string][]*tsvalue.TimeSeries{}
	var order []string
	for _, r := range results {
		for _, s := range r.Series {
			key := s.ID.Key()
			if _, ok := byID[key]; !ok {
				order = append(order, key)
			}
			byID[key] = append(byID[key], s)
		}
	}
	sort.Strings(order)

	out := &tsresult.QueryResult{NodeID: n.cfg.ID, Source: "merged", Sequence: maxSequence(results), Resolution: results[0].Resolution, TimeSpec: results[0].TimeSpec}
	for _, key := range order {
		replicas := byID[key]
		out.Series = append(out.Series, n.reconcileReplicas(qc, replicas))
	}
	for _, w := range warnings {
		out.AddWarning(w)
	}
	n.transition(Complete)
	return out, nil
}

func (n *MergerNode) reconcileReplicas(qc *Context, replicas []*tsvalue.TimeSeries) *tsvalue.TimeSeries {
	merged := tsvalue.NewTimeSeries(replicas[0].ID, qc.Registry)
	byTimestamp := map[int64]*kernel.Accumulator{}
	var order []int64
	for _, replica := range replicas {
		cur, err := replica.Cursor(tsvalue.TypeNumeric)
		if err != nil {
			continue
		}
		for cur.Next() {
			pt := cur.Numeric()
			key := pt.Timestamp.Nanos()
			acc, ok := byTimestamp[key]
			if !ok {
				acc = kernel.NewAccumulator(n.cfg.Aggregator, 0)
				byTimestamp[key] = acc
				order = append(order, key)
			}
			acc.Add(pt.Value)
		}
	}
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })
	points := make([]tsvalue.NumericPoint, 0, len(order))
	for _, key := range order {
		points = append(points, tsvalue.NumericPoint{
			Timestamp: tsvalue.Timestamp{Epoch: key, Resolution: tsvalue.Nanoseconds}.In(tsvalue.Milliseconds),
			Value:     byTimestamp[key].Result(),
		})
	}
	merged.Set(tsvalue.TypeNumeric, points)
	return merged
}

// mergeShard unions disjoint partitions, propagating an error unless the
// configured partial-failure policy tolerates the observed failure count.
func (n *MergerNode) mergeShard(qc *Context, results []*tsresult.QueryResult, warnings []string, failed int) (any, error) {
	total := len(n.cfg.Upstreams)
	if failed > 0 && !n.cfg.AllowPartial && !n.cfg.Policy.Allow(failed, total) {
		n.transition(Failed)
		return nil, qerrors.SourceFailedError(n.cfg.ID, fmt.Errorf("%d of %d shards failed", failed, total))
	}

	var resolution tsvalue.Resolution
	var timeSpec *tsresult.TimeSpecification
	out := &tsresult.QueryResult{NodeID: n.cfg.ID, Source: "merged"}
	for _, r := range results {
		out.Series = append(out.Series, r.Series...)
		resolution = r.Resolution
		if r.TimeSpec != nil {
			timeSpec = r.TimeSpec
		}
		if r.Sequence > out.Sequence {
			out.Sequence = r.Sequence
		}
	}
	out.Resolution = resolution
	out.TimeSpec = timeSpec
	for _, w := range warnings {
		out.AddWarning(w)
	}
	n.transition(Complete)
	return out, nil
}

// split is the inverse of shard for fan-out: every downstream receives the
// same union of upstream series. Here it is realized as a pass-through
// union identical to Shard's union step, since fan-out distribution itself
// is the executor's concern (multiple consumers reading the same output
// port), not this node's.
func (n *MergerNode) split(qc *Context, results []*tsresult.QueryResult) (any, error) {
	out := &tsresult.QueryResult{NodeID: n.cfg.ID, Source: "split"}
	for _, r := range results {
		out.Series = append(out.Series, r.Series...)
		out.Resolution = r.Resolution
		out.TimeSpec = r.TimeSpec
		if r.Sequence > out.Sequence {
			out.Sequence = r.Sequence
		}
	}
	n.transition(Complete)
	return out, nil
}

func maxSequence(results []*tsresult.QueryResult) int64 {
	var max int64
	for _, r := range results {
		if r.Sequence > max {
			max = r.Sequence
		}
	}
	return max
}
