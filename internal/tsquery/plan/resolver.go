package plan

import "github.com/flowmetrics/qpipe/internal/tsquery/node"

// ResolvedSource is one data-source binding for a metric: the source tag
// used for addressing in the result channel, the bound DataSource plugin,
// and (when the metric resolves to more than one replica/shard) the HA
// group the source belongs to.
type ResolvedSource struct {
	SourceTag  string
	DataSource node.DataSource
	HAGroup    string
	// Shard marks this as one disjoint partition of a sharded metric rather
	// than an HA replica; the planner's insert-mergers step picks Shard vs
	// HA merger semantics based on this flag.
	Shard bool
}

// SourceResolver resolves a metric (by name and tag filter) to the set of
// data sources that can serve it, consulted by the planner's validate and
// expand steps. Implementations typically wrap a catalog/discovery lookup
// (see internal/datasource).
type SourceResolver interface {
	Resolve(metric string, tags map[string]string) ([]ResolvedSource, error)
}
