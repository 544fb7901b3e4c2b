// Package mocksource is an in-memory datasource.Plugin for tests and local
// development: it serves a fixed set of series from memory rather than a
// backing store.
package mocksource

import (
	"context"
	"sync"

	"github.com/flowmetrics/qpipe/internal/datasource"
	"github.com/flowmetrics/qpipe/internal/tsquery/node"
	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// Source serves a fixed, in-memory series set for every FetchNext call.
type Source struct {
	name    string
	binding datasource.Binding
	caps    node.Capabilities

	mu     sync.RWMutex
	series []*tsvalue.TimeSeries
	seq    int64
}

// New returns a Source named name, bound to binding, advertising caps.
func New(name string, binding datasource.Binding, caps node.Capabilities) *Source {
	return &Source{name: name, binding: binding, caps: caps}
}

func (s *Source) Name() string { return s.name }

func (s *Source) IsAvailable(context.Context) bool { return true }

func (s *Source) Binding() datasource.Binding { return s.binding }

func (s *Source) Capabilities() node.Capabilities { return s.caps }

// Seed replaces the series this source returns from the next FetchNext on.
func (s *Source) Seed(series ...*tsvalue.TimeSeries) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.series = series
}

func (s *Source) FetchNext(_ context.Context, sourceTag string) (*tsresult.QueryResult, error) {
	s.mu.Lock()
	s.seq++
	seq := s.seq
	series := append([]*tsvalue.TimeSeries(nil), s.series...)
	s.mu.Unlock()

	return &tsresult.QueryResult{
		NodeID:   s.name,
		Source:   sourceTag,
		Sequence: seq,
		Series:   series,
	}, nil
}
