package plan

import (
	"context"
	"time"

	"github.com/flowmetrics/qpipe/internal/tsquery/kernel"
	"github.com/flowmetrics/qpipe/internal/tsquery/node"
	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// filteringSource wraps a DataSource to apply a tag predicate to each fetch,
// used when the source advertises PushDownFilter so the planner can skip
// instantiating a standalone Filter node, per §4.4 step 3.
type filteringSource struct {
	inner     node.DataSource
	predicate node.Predicate
}

func (s *filteringSource) Capabilities() node.Capabilities { return s.inner.Capabilities() }

func (s *filteringSource) FetchNext(ctx context.Context, sourceTag string) (*tsresult.QueryResult, error) {
	result, err := s.inner.FetchNext(ctx, sourceTag)
	if err != nil || result == nil {
		return result, err
	}
	filtered := *result
	filtered.Series = nil
	for _, series := range result.Series {
		if s.predicate.Eval(series.ID.Tags) {
			filtered.Series = append(filtered.Series, series)
		}
	}
	return &filtered, nil
}

// downsamplingSource wraps a DataSource to bucket each fetch's raw series
// before they ever reach the DAG, used when the source advertises
// PushDownDownsample.
type downsamplingSource struct {
	inner    node.DataSource
	bucketer kernel.Bucketer
	start    tsvalue.Timestamp
	end      tsvalue.Timestamp
}

func (s *downsamplingSource) Capabilities() node.Capabilities { return s.inner.Capabilities() }

func (s *downsamplingSource) FetchNext(ctx context.Context, sourceTag string) (*tsresult.QueryResult, error) {
	result, err := s.inner.FetchNext(ctx, sourceTag)
	if err != nil || result == nil {
		return result, err
	}
	out := *result
	out.Series = nil
	out.WithTimeSpec(tsresult.TimeSpecification{
		Start:    s.start,
		End:      s.end,
		Interval: s.bucketer.Interval,
		Timezone: s.bucketer.Location.String(),
	})
	for _, series := range result.Series {
		cur, err := series.Cursor(tsvalue.TypeNumeric)
		if err != nil {
			continue
		}
		var points []tsvalue.NumericPoint
		for cur.Next() {
			points = append(points, cur.Numeric())
		}
		buckets := s.bucketer.Downsample(points, s.start, s.end)
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
		bucketed := tsvalue.NewTimeSeries(series.ID, nil)
		bucketed.Set(tsvalue.TypeNumericArray, tsvalue.NumericArray{Start: arrayStart, Values: values, Missing: missing})
		out.Series = append(out.Series, bucketed)
	}
	return &out, nil
}

func newBucketer(spec *DownsampleSpec, tz string) (kernel.Bucketer, time.Duration, error) {
	interval, err := time.ParseDuration(spec.Interval)
	if err != nil {
		return kernel.Bucketer{}, 0, err
	}
	loc := time.UTC
	if tz != "" {
		if l, err := time.LoadLocation(tz); err == nil {
			loc = l
		}
	}
	return kernel.Bucketer{
		Interval:   interval,
		Calendar:   parseCalendar(spec.Calendar),
		Location:   loc,
		Aggregator: spec.Aggregator,
		Percentile: spec.Percentile,
		Filler:     parseFill(spec.Fill),
	}, interval, nil
}
