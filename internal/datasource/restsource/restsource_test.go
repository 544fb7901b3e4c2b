package restsource

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/flowmetrics/qpipe/httpclient"
	"github.com/flowmetrics/qpipe/httpclient/rest"
	"github.com/flowmetrics/qpipe/internal/datasource"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

func TestFetchNextDecodesSeries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("source"); got != "replica-1" {
			t.Errorf("expected source=replica-1, got %q", got)
		}
		json.NewEncoder(w).Encode(queryResponse{
			Series: []seriesPayload{
				{
					Metric: "cpu.usage",
					Tags:   map[string]string{"host": "web-1"},
					Points: []point{
						{EpochMillis: 1000, Value: 0.5},
						{EpochMillis: 2000, Value: 0.75},
					},
				},
			},
		})
	}))
	defer srv.Close()

	c, err := rest.New(httpclient.Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := New("rest-backend", datasource.Binding{MetricPattern: "cpu.*"}, c, "/api/v1/query")

	result, err := s.FetchNext(context.Background(), "replica-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result.Series) != 1 {
		t.Fatalf("expected 1 series, got %d", len(result.Series))
	}

	cursor, err := result.Series[0].Cursor(tsvalue.TypeNumeric)
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	var values []float64
	for cursor.Next() {
		values = append(values, cursor.Numeric().Value)
	}
	if len(values) != 2 || values[0] != 0.5 || values[1] != 0.75 {
		t.Fatalf("unexpected decoded values: %v", values)
	}
}

func TestFetchNextPropagatesTransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c, err := rest.New(httpclient.Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	s := New("rest-backend", datasource.Binding{}, c, "/api/v1/query")
	if _, err := s.FetchNext(context.Background(), "replica-1"); err == nil {
		t.Fatal("expected an error for a 500 response")
	}
}
