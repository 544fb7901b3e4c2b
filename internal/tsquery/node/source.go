package node

import (
	"context"

	qerrors "github.com/flowmetrics/qpipe/errors"
	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// DataSource is the plugin contract Source nodes bind to (§6): init happens
// once at plan-attach time (outside this node, in the datasource manager),
// fetchNext is invoked here per query execution.
type DataSource interface {
	FetchNext(ctx context.Context, sourceTag string) (*tsresult.QueryResult, error)
	Capabilities() Capabilities
}

// Capabilities is the capability set a data-source plugin publishes,
// consulted by the planner's push-down step.
type Capabilities struct {
	PushDownFilter     bool
	PushDownDownsample bool
	SupportsStreaming  bool
}

// SourceConfig configures a Source node.
type SourceConfig struct {
	ID         string
	SourceTag  string
	DataSource DataSource
	// HAGroup, when non-empty, identifies the HA replica set this source
	// belongs to — siblings sharing a group are fed to an HA Merger rather
	// than failing the pipeline outright on error.
	HAGroup string
}

// SourceNode binds to a storage data-source plugin and emits raw results.
// Errors are surfaced to the caller via Run's error return; whether they
// abort the pipeline is decided above, by whatever Merger (if any) sits
// over this source's siblings.
type SourceNode struct {
	stateMachine
	cfg SourceConfig
}

// NewSource constructs a Source node bound to cfg.DataSource.
func NewSource(cfg SourceConfig) *SourceNode {
	return &SourceNode{cfg: cfg}
}

func (n *SourceNode) Name() string { return n.cfg.ID }

func (n *SourceNode) Types() []tsvalue.TypeToken {
	return []tsvalue.TypeToken{tsvalue.TypeNumeric, tsvalue.TypeNumericSummary, tsvalue.TypeNumericArray}
}

func (n *SourceNode) State() State { return n.current() }

// Run fetches the next batch from the bound data source. A source surfaces
// its error rather than swallowing it; an HA or shard merger above decides
// survivability, per §4.3.
func (n *SourceNode) Run(ctx context.Context) (any, error) {
	n.transition(Running)
	result, err := n.cfg.DataSource.FetchNext(ctx, n.cfg.SourceTag)
	if err != nil {
		n.transition(Failed)
		if ctx.Err() != nil {
			return nil, qerrors.SourceTimeoutError(n.cfg.SourceTag).WithCause(err)
		}
		return nil, qerrors.SourceFailedError(n.cfg.SourceTag, err)
	}
	n.transition(Complete)
	return result, nil
}
