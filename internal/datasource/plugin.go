// Package datasource implements the pluggable data-source registry the
// planner's SourceResolver binds against (§6): each plugin owns fetching
// raw series for a metric from one backing store, and the registry resolves
// a metric name to the set of live plugin instances that can serve it.
package datasource

import (
	"context"

	"github.com/flowmetrics/qpipe/internal/tsquery/node"
	"github.com/flowmetrics/qpipe/provider"
)

// Plugin is one data-source backend: it satisfies provider.Provider (so it
// slots into provider.Manager/Registry/Selector unchanged) and
// node.DataSource (so the planner can wire it straight into a Source node).
type Plugin interface {
	provider.Provider
	node.DataSource
	// Binding reports the metric namespace/tags this instance owns, for the
	// catalog lookup that decides which plugins can serve a given metric.
	Binding() Binding
}

// Binding is the ownership declaration a catalog entry or static config
// maps a metric to: the metric name pattern this plugin instance serves,
// the HA group it belongs to (if replicated), and whether it is one shard
// of a partitioned metric space.
type Binding struct {
	MetricPattern string
	HAGroup       string
	Shard         bool
}

// Matches reports whether metric is served by this binding. An empty
// pattern matches everything; a trailing "*" matches by prefix; otherwise
// the match is exact.
func (b Binding) Matches(metric string) bool {
	if b.MetricPattern == "" || b.MetricPattern == "*" {
		return true
	}
	if len(b.MetricPattern) > 0 && b.MetricPattern[len(b.MetricPattern)-1] == '*' {
		prefix := b.MetricPattern[:len(b.MetricPattern)-1]
		return len(metric) >= len(prefix) && metric[:len(prefix)] == prefix
	}
	return b.MetricPattern == metric
}

// Factory builds a Plugin instance from configuration, the same shape as
// provider.Factory[T] specialized to Plugin.
type Factory = provider.Factory[Plugin]

// Probe is satisfied by a Plugin that wants its own context-scoped
// availability check beyond the cheap IsAvailable(ctx) boolean — e.g. a
// REST source that wants to verify reachability once per resolve rather
// than per request. Optional; the manager falls back to IsAvailable alone.
type Probe interface {
	Probe(ctx context.Context) error
}
