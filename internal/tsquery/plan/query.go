// Package plan implements the planner: it transforms a declarative
// TimeSeriesQuery into a validated, immutable DAG description of node
// configurations, per the contract sequence validate -> expand ->
// push-down -> compose -> insert-mergers -> attach-sinks -> fingerprint.
package plan

import "github.com/flowmetrics/qpipe/internal/tsquery/kernel"

// TimeSeriesQuery is the declarative query input, field-for-field the §6
// wire shape. Unknown fields are rejected by the decoder that parses this
// (the query submission handler in cmd/queryengine decodes with
// DisallowUnknownFields), not by this type itself.
type TimeSeriesQuery struct {
	Time        TimeRange        `json:"time" validate:"required"`
	FilterSets  []FilterSet      `json:"filter_sets,omitempty"`
	Metrics     []MetricSpec     `json:"metrics" validate:"required,min=1,dive"`
	Expressions []ExpressionSpec `json:"expressions,omitempty" validate:"dive"`
	Outputs     []OutputSpec     `json:"outputs" validate:"required,min=1,dive"`
	UseCache    bool             `json:"use_cache"`
	Trace       bool             `json:"trace"`
}

// TimeRange is the query's time window and default alignment parameters.
type TimeRange struct {
	Start      string `json:"start" validate:"required"`
	End        string `json:"end" validate:"required"`
	Aggregator string `json:"aggregator,omitempty"`
	Downsample string `json:"downsampler,omitempty"`
	Rate       bool   `json:"rate,omitempty"`
	Timezone   string `json:"timezone,omitempty"`
}

// FilterSet is a named, reusable predicate referenced by id from a
// MetricSpec's Filter field.
type FilterSet struct {
	ID    string       `json:"id" validate:"required"`
	Op    string       `json:"op,omitempty"` // "and" | "or" | "not", empty for a leaf
	Key   string       `json:"key,omitempty"`
	Match string       `json:"match,omitempty"` // literal | regex | wildcard | range
	Value string       `json:"value,omitempty"`
	Terms []FilterTerm `json:"terms,omitempty"`
}

// FilterTerm references another FilterSet by id, for AND/OR/NOT composition.
type FilterTerm struct {
	Ref string `json:"ref" validate:"required"`
}

// MetricSpec declares one metric to fetch and the per-metric operator
// chain applied to it (filter, group-by, downsample, rate).
type MetricSpec struct {
	ID         string             `json:"id" validate:"required"`
	Name       string             `json:"name" validate:"required"`
	Tags       map[string]string  `json:"tags,omitempty"`
	Filter     string             `json:"filter,omitempty"` // references a FilterSet id
	GroupBy    *GroupBySpec       `json:"group_by,omitempty"`
	Downsample *DownsampleSpec    `json:"downsample,omitempty"`
	Rate       *RateSpec          `json:"rate,omitempty"`
	TopN       *TopNSpec          `json:"top_n,omitempty"`
	Summarizer *SummarizerSpec    `json:"summarizer,omitempty"`
}

// GroupBySpec configures a GroupBy node attached to a metric.
type GroupBySpec struct {
	TagKeys    []string          `json:"tag_keys" validate:"required,min=1"`
	Aggregator kernel.Aggregator `json:"aggregator" validate:"required"`
	Percentile float64           `json:"percentile,omitempty"`
}

// DownsampleSpec configures a Downsample node attached to a metric.
type DownsampleSpec struct {
	Interval   string            `json:"interval" validate:"required"`
	Calendar   string            `json:"calendar,omitempty"` // "", "day", "week", "month"
	Aggregator kernel.Aggregator `json:"aggregator" validate:"required"`
	Percentile float64           `json:"percentile,omitempty"`
	Fill       string            `json:"fill,omitempty"`
}

// RateSpec configures a Rate node attached to a metric.
type RateSpec struct {
	IsCounter  bool    `json:"is_counter,omitempty"`
	CounterMax float64 `json:"counter_max,omitempty"`
	ResetValue float64 `json:"reset_value,omitempty"`
}

// TopNSpec configures a TopN node attached to a metric.
type TopNSpec struct {
	N          int               `json:"n" validate:"required,min=1"`
	Aggregator kernel.Aggregator `json:"aggregator,omitempty"`
	Descending bool              `json:"descending,omitempty"`
}

// SummarizerSpec configures a Summarizer node attached to a metric.
type SummarizerSpec struct {
	SummaryIDs []int `json:"summary_ids,omitempty"`
}

// ExpressionSpec declares a derived series computed from metrics or other
// expressions, composed into the DAG per §4.4 step 4.
type ExpressionSpec struct {
	ID   string `json:"id" validate:"required"`
	Expr string `json:"expr" validate:"required"`
	// Join declares how the expression's referenced inputs are aligned when
	// more than one is referenced. With nil, no Join node is inserted and no
	// intersection is inferred: the expression reads only the single
	// upstream whose id equals the expression's own id.
	Join *JoinSpec `json:"join,omitempty"`
}

// JoinSpec configures the Join node the planner inserts ahead of an
// Expression (or explicit join) node.
type JoinSpec struct {
	Left  string `json:"left" validate:"required"`
	Right string `json:"right" validate:"required"`
	Kind  string `json:"kind,omitempty"` // "intersection" | "union"
	Fill  string `json:"fill,omitempty"`
}

// OutputSpec names a sink attachment point: a metric or expression id, and
// the sink type to attach.
type OutputSpec struct {
	ID   string `json:"id" validate:"required"`   // references a metric or expression id
	Sink string `json:"sink" validate:"required"` // sink name resolved by the executor's sink registry
}
