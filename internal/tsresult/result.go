// Package tsresult defines the result channel: the typed batch that flows
// between query DAG nodes. A QueryResult is the unit of data handoff, never
// a per-point stream — an emitting node owns a batch until every downstream
// consumer signals completion for it.
package tsresult

import (
	"time"

	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// TimeSpecification declares an aligned time grid. It is present on a
// result iff the result is aligned (downsampled); raw results carry a nil
// TimeSpecification.
type TimeSpecification struct {
	Start    tsvalue.Timestamp
	End      tsvalue.Timestamp
	Interval time.Duration
	Timezone string
}

// QueryResult is a batch emitted by one node for one logical data source:
// a sequence of TimeSeries, an optional TimeSpecification, a resolution, a
// monotonically increasing sequence id (for streaming sub-results), the
// data-source tag the batch belongs to, and the id of the node that emitted
// it.
type QueryResult struct {
	NodeID     string
	Source     string
	Sequence   int64
	Resolution tsvalue.Resolution
	TimeSpec   *TimeSpecification
	Series     []*tsvalue.TimeSeries

	// Warnings carries non-fatal diagnostics (e.g. "SOURCE_TIMEOUT on R2")
	// surfaced to the sink's trailer on partial success, per §7.
	Warnings []string
	// Cancelled marks a result that reached the sink after cancellation;
	// the sink must treat it as advisory only, per §5's cancellation model.
	Cancelled bool

	released bool
}

// New constructs a QueryResult owned by nodeID for source, at the given
// sequence number. Sequence numbers must increase monotonically per
// (node, source) pair — the executor, not this constructor, enforces that.
func New(nodeID, source string, sequence int64, resolution tsvalue.Resolution) *QueryResult {
	return &QueryResult{
		NodeID:     nodeID,
		Source:     source,
		Sequence:   sequence,
		Resolution: resolution,
	}
}

// WithTimeSpec attaches an alignment time specification, marking the
// result as an aligned (downsampled) batch rather than raw.
func (r *QueryResult) WithTimeSpec(spec TimeSpecification) *QueryResult {
	r.TimeSpec = &spec
	return r
}

// Aligned reports whether this result carries a time specification.
func (r *QueryResult) Aligned() bool {
	return r.TimeSpec != nil
}

// AddWarning appends a non-fatal diagnostic to the result's trailer.
func (r *QueryResult) AddWarning(w string) {
	r.Warnings = append(r.Warnings, w)
}

// Release marks the batch as returned to its pool (if any); once released,
// a batch must not be read by any party still holding a reference. This
// implementation is advisory bookkeeping — the actual free-list lives in
// whatever Pool acquired the batch (see tsvalue.PoolAllocator).
func (r *QueryResult) Release() {
	r.released = true
}

// Released reports whether Release has been called.
func (r *QueryResult) Released() bool {
	return r.released
}

// Batch groups every QueryResult a node produced while fully draining one
// data source, preserving emission order. It is the unit handed to
// onNext/onComplete callers that want "everything for this source so far".
type Batch struct {
	Source  string
	Results []*QueryResult
}

// Append adds a result to the batch, keeping emission order.
func (b *Batch) Append(r *QueryResult) {
	b.Results = append(b.Results, r)
}

// LastSequence returns the highest sequence id seen in the batch, or -1 if
// empty.
func (b *Batch) LastSequence() int64 {
	if len(b.Results) == 0 {
		return -1
	}
	return b.Results[len(b.Results)-1].Sequence
}
