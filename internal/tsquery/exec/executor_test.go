package exec

import (
	"context"
	"testing"

	"github.com/flowmetrics/qpipe/internal/tsquery/node"
	"github.com/flowmetrics/qpipe/internal/tsquery/plan"
	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

type fixedSource struct {
	series []*tsvalue.TimeSeries
}

func (s *fixedSource) Capabilities() node.Capabilities { return node.Capabilities{} }

func (s *fixedSource) FetchNext(context.Context, string) (*tsresult.QueryResult, error) {
	return &tsresult.QueryResult{NodeID: "src", Source: "s1", Series: s.series}, nil
}

func TestExecutorRunsSourceOnlyPlan(t *testing.T) {
	reg := tsvalue.NewTypeRegistry()
	series := tsvalue.NewTimeSeries(tsvalue.NewTimeSeriesID("sys.cpu", map[string]string{"host": "web-01"}), reg)
	series.Set(tsvalue.TypeNumeric, []tsvalue.NumericPoint{
		{Timestamp: tsvalue.NewTimestamp(0, tsvalue.Milliseconds), Value: 42},
	})

	p := &plan.Plan{
		Nodes: []plan.NodeSpec{
			{ID: "m1.src.s1", Kind: "source", Config: node.SourceConfig{
				ID: "m1.src.s1", SourceTag: "s1", DataSource: &fixedSource{series: []*tsvalue.TimeSeries{series}},
			}},
		},
		Outputs:     map[string]string{"inproc": "m1.src.s1"},
		Fingerprint: "fp1",
	}
	q := &plan.TimeSeriesQuery{}

	e := &Executor{}
	out, err := e.Execute(context.Background(), q, p)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result, ok := out.Outputs["inproc"]
	if !ok {
		t.Fatal("expected an output bound to sink 'inproc'")
	}
	if len(result.Series) != 1 {
		t.Fatalf("expected 1 series, got %d", len(result.Series))
	}
}

func TestExecutorChainsDependentNodes(t *testing.T) {
	reg := tsvalue.NewTypeRegistry()
	web := tsvalue.NewTimeSeries(tsvalue.NewTimeSeriesID("sys.cpu", map[string]string{"host": "web-01"}), reg)
	db := tsvalue.NewTimeSeries(tsvalue.NewTimeSeriesID("sys.cpu", map[string]string{"host": "db-01"}), reg)

	p := &plan.Plan{
		Nodes: []plan.NodeSpec{
			{ID: "m1.src.s1", Kind: "source", Config: node.SourceConfig{
				ID: "m1.src.s1", SourceTag: "s1",
				DataSource: &fixedSource{series: []*tsvalue.TimeSeries{web, db}},
			}},
			{ID: "m1.filter", Kind: "filter", DependsOn: []string{"m1.src.s1"}, Config: node.FilterConfig{
				ID: "m1.filter", Upstream: "m1.src.s1",
				Predicate: node.Predicate{Leaf: &node.TagPredicate{Key: "host", Op: node.FilterWildcard, Value: "web-*"}},
			}},
		},
		Outputs:     map[string]string{"inproc": "m1.filter"},
		Fingerprint: "fp2",
	}
	q := &plan.TimeSeriesQuery{}

	e := &Executor{}
	out, err := e.Execute(context.Background(), q, p)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	result := out.Outputs["inproc"]
	if result == nil {
		t.Fatal("expected filter output")
	}
	if len(result.Series) != 1 || result.Series[0].ID.Tags["host"] != "web-01" {
		t.Fatalf("unexpected filtered series: %+v", result.Series)
	}
}

func TestSubmitDedupesConcurrentIdenticalQueries(t *testing.T) {
	reg := tsvalue.NewTypeRegistry()
	series := tsvalue.NewTimeSeries(tsvalue.NewTimeSeriesID("sys.cpu", nil), reg)

	p := &plan.Plan{
		Nodes: []plan.NodeSpec{
			{ID: "m1.src.s1", Kind: "source", Config: node.SourceConfig{
				ID: "m1.src.s1", SourceTag: "s1",
				DataSource: &fixedSource{series: []*tsvalue.TimeSeries{series}},
			}},
		},
		Outputs:     map[string]string{"inproc": "m1.src.s1"},
		Fingerprint: "fp3",
	}
	q := &plan.TimeSeriesQuery{UseCache: true}

	e := &Executor{}
	results := make(chan *Outcome, 2)
	for i := 0; i < 2; i++ {
		go func() {
			out, err := e.Submit(context.Background(), q, p)
			if err != nil {
				t.Errorf("submit: %v", err)
				results <- nil
				return
			}
			results <- out
		}()
	}
	r1 := <-results
	r2 := <-results
	if r1 == nil || r2 == nil {
		t.Fatal("expected both submits to succeed")
	}
}
