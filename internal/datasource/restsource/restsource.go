// Package restsource implements a datasource.Plugin backed by a JSON REST
// endpoint, grounded on httpclient/rest.Client: one Source instance per
// backing API, translating its query.Path/query.Params response into the
// typed series model FetchNext must return.
package restsource

import (
	"context"
	"fmt"

	"github.com/flowmetrics/qpipe/httpclient/rest"
	"github.com/flowmetrics/qpipe/internal/datasource"
	"github.com/flowmetrics/qpipe/internal/tsquery/node"
	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// point is the wire shape of one sample in the backing API's response body.
type point struct {
	EpochMillis int64   `json:"t"`
	Value       float64 `json:"v"`
}

// seriesPayload is the wire shape of one series in the backing API's
// response body.
type seriesPayload struct {
	Metric string            `json:"metric"`
	Tags   map[string]string `json:"tags"`
	Points []point           `json:"points"`
}

// queryResponse is the backing API's full response body.
type queryResponse struct {
	Series []seriesPayload `json:"series"`
}

// Source fetches time series from a JSON REST backend identified by
// queryPath, e.g. "/api/v1/query".
type Source struct {
	name      string
	binding   datasource.Binding
	client    *rest.Client
	queryPath string
}

// New returns a Source named name, bound to binding, issuing GET requests
// for queryPath against client.
func New(name string, binding datasource.Binding, client *rest.Client, queryPath string) *Source {
	return &Source{name: name, binding: binding, client: client, queryPath: queryPath}
}

func (s *Source) Name() string { return s.name }

func (s *Source) IsAvailable(ctx context.Context) bool { return s.client.IsAvailable(ctx) }

func (s *Source) Binding() datasource.Binding { return s.binding }

// Capabilities reports no push-down support: the backend is queried as a
// flat metric fetch, so filtering and downsampling happen in-process.
func (s *Source) Capabilities() node.Capabilities {
	return node.Capabilities{}
}

// Probe verifies the backend is reachable, implementing datasource.Probe.
func (s *Source) Probe(ctx context.Context) error {
	if !s.client.IsAvailable(ctx) {
		return fmt.Errorf("restsource %s: backend unavailable", s.name)
	}
	return nil
}

// FetchNext issues a GET against queryPath and decodes the response into a
// QueryResult carrying one TimeSeries per returned series.
func (s *Source) FetchNext(ctx context.Context, sourceTag string) (*tsresult.QueryResult, error) {
	resp, err := rest.Get[queryResponse](ctx, s.client, s.queryPath, rest.WithQuery(map[string]string{
		"source": sourceTag,
	}))
	if err != nil {
		return nil, fmt.Errorf("restsource %s: query %s: %w", s.name, s.queryPath, err)
	}

	result := &tsresult.QueryResult{
		NodeID: s.name,
		Source: sourceTag,
	}
	for _, sp := range resp.Data.Series {
		id := tsvalue.NewTimeSeriesID(sp.Metric, sp.Tags)
		ts := tsvalue.NewTimeSeries(id, nil)
		points := make([]tsvalue.NumericPoint, 0, len(sp.Points))
		for _, p := range sp.Points {
			points = append(points, tsvalue.NumericPoint{
				Timestamp: tsvalue.NewTimestamp(p.EpochMillis, tsvalue.Milliseconds),
				Value:     p.Value,
			})
		}
		ts.Set(tsvalue.TypeNumeric, points)
		result.Series = append(result.Series, ts)
	}
	return result, nil
}
