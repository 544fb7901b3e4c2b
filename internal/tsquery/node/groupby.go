package node

import (
	"context"
	"sort"

	"github.com/flowmetrics/qpipe/internal/tsquery/kernel"
	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// GroupByConfig configures a GroupBy node.
type GroupByConfig struct {
	ID         string
	Upstream   string
	TagKeys    []string
	Aggregator kernel.Aggregator
	Percentile float64
}

// GroupByNode partitions input series by a subset of tag keys and applies
// a numeric aggregator within each partition. Aligned (array) input is
// aggregated columnwise; raw input is aggregated pointwise by matching
// timestamps exactly (interpolation through the kernel is the Join node's
// job when inputs don't already share a timestamp grid).
type GroupByNode struct {
	stateMachine
	cfg GroupByConfig
}

func NewGroupBy(cfg GroupByConfig) *GroupByNode { return &GroupByNode{cfg: cfg} }

func (n *GroupByNode) Name() string { return n.cfg.ID }

func (n *GroupByNode) Types() []tsvalue.TypeToken {
	return []tsvalue.TypeToken{tsvalue.TypeNumeric, tsvalue.TypeNumericArray}
}

func (n *GroupByNode) State() State { return n.current() }

func (n *GroupByNode) partitionKey(tags map[string]string) string {
	id := tsvalue.TimeSeriesID{Tags: map[string]string{}}
	for _, k := range n.cfg.TagKeys {
		if v, ok := tags[k]; ok {
			id.Tags[k] = v
		}
	}
	return id.Key()
}

func (n *GroupByNode) Run(ctx context.Context) (any, error) {
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

	type partition struct {
		key    string
		tags   map[string]string
		series []*tsvalue.TimeSeries
	}
	partitions := map[string]*partition{}
	var order []string
	for _, series := range in.Series {
		key := n.partitionKey(series.ID.Tags)
		p, ok := partitions[key]
		if !ok {
			subset := map[string]string{}
			for _, k := range n.cfg.TagKeys {
				if v, ok := series.ID.Tags[k]; ok {
					subset[k] = v
				}
			}
			p = &partition{key: key, tags: subset}
			partitions[key] = p
			order = append(order, key)
		}
		p.series = append(p.series, series)
	}
	sort.Strings(order)

	out := &tsresult.QueryResult{
		NodeID:     n.cfg.ID,
		Source:     in.Source,
		Sequence:   in.Sequence,
		Resolution: in.Resolution,
		TimeSpec:   in.TimeSpec,
	}

	for _, key := range order {
		p := partitions[key]
		resultID := tsvalue.NewTimeSeriesID(metricOf(p.series), p.tags)
		resultID.AggregatedTags = n.cfg.TagKeys
		resultSeries := tsvalue.NewTimeSeries(resultID, qc.Registry)

		if in.Aligned() {
			arrays := make([][]float64, 0, len(p.series))
			for _, s := range p.series {
				cur, err := s.Cursor(tsvalue.TypeNumericArray)
				if err != nil {
					continue
				}
				cur.Next()
				arr := cur.Array()
				arrays = append(arrays, arr.Values)
			}
			values := kernel.AggregateArrays(n.cfg.Aggregator, n.cfg.Percentile, arrays, nil)
			start := in.TimeSpec.Start
			resultSeries.Set(tsvalue.TypeNumericArray, tsvalue.NumericArray{Start: start, Values: values})
		} else {
			byTimestamp := map[int64]*kernel.Accumulator{}
			var tsOrder []int64
			for _, s := range p.series {
				cur, err := s.Cursor(tsvalue.TypeNumeric)
				if err != nil {
					continue
				}
				for cur.Next() {
					pt := cur.Numeric()
					key := pt.Timestamp.Nanos()
					acc, ok := byTimestamp[key]
					if !ok {
						acc = kernel.NewAccumulator(n.cfg.Aggregator, n.cfg.Percentile)
						byTimestamp[key] = acc
						tsOrder = append(tsOrder, key)
					}
					acc.Add(pt.Value)
				}
			}
			sort.Slice(tsOrder, func(i, j int) bool { return tsOrder[i] < tsOrder[j] })
			points := make([]tsvalue.NumericPoint, 0, len(tsOrder))
			for _, key := range tsOrder {
				points = append(points, tsvalue.NumericPoint{
					Timestamp: tsvalue.Timestamp{Epoch: key, Resolution: tsvalue.Nanoseconds}.In(in.Resolution),
					Value:     byTimestamp[key].Result(),
				})
			}
			resultSeries.Set(tsvalue.TypeNumeric, points)
		}

		out.Series = append(out.Series, resultSeries)
	}

	n.transition(Complete)
	return out, nil
}

func metricOf(series []*tsvalue.TimeSeries) string {
	if len(series) == 0 {
		return ""
	}
	return series[0].ID.Metric
}
