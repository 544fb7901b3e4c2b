package datasource

import (
	"context"

	"github.com/flowmetrics/qpipe/internal/tsquery/node"
	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/resilience"
)

// resilientPlugin wraps a Plugin's FetchNext with a per-plugin circuit
// breaker: once a backend trips MaxFailures consecutive errors, further
// fetches fail fast with resilience.ErrCircuitOpen instead of piling up
// against a backend that's already down, until Timeout elapses and a
// half-open probe succeeds.
type resilientPlugin struct {
	Plugin
	breaker *resilience.CircuitBreaker
}

// withCircuitBreaker wraps p so every FetchNext call is gated by a
// dedicated circuit breaker named after the plugin, per SPEC_FULL.md's
// resilience wiring (every DataSource.FetchNext call goes through the
// teacher's circuit breaker).
func withCircuitBreaker(name string, p Plugin) Plugin {
	return &resilientPlugin{
		Plugin:  p,
		breaker: resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig(name)),
	}
}

func (p *resilientPlugin) FetchNext(ctx context.Context, sourceTag string) (*tsresult.QueryResult, error) {
	var result *tsresult.QueryResult
	err := p.breaker.Execute(func() error {
		var fetchErr error
		result, fetchErr = p.Plugin.FetchNext(ctx, sourceTag)
		return fetchErr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

var _ node.DataSource = (*resilientPlugin)(nil)
