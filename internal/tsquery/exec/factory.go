// Package exec drives a plan.Plan to completion: it instantiates the node
// library from the plan's NodeSpecs, executes the resulting graph in
// dependency order with bounded per-level concurrency, and delivers each
// output's terminal result to its attached sink.
package exec

import (
	"fmt"

	qerrors "github.com/flowmetrics/qpipe/errors"
	"github.com/flowmetrics/qpipe/internal/tsquery/node"
	"github.com/flowmetrics/qpipe/internal/tsquery/plan"
)

// buildNode instantiates the node.Node for one plan.NodeSpec. The switch
// mirrors the planner's Kind strings 1:1 with the node package's
// constructors — the only place that coupling is spelled out.
func buildNode(spec plan.NodeSpec) (node.Node, error) {
	switch spec.Kind {
	case "source":
		cfg, ok := spec.Config.(node.SourceConfig)
		if !ok {
			return nil, qerrors.InternalQueryEngineError(fmt.Errorf("node %s: bad source config type", spec.ID))
		}
		return node.NewSource(cfg), nil
	case "filter":
		cfg, ok := spec.Config.(node.FilterConfig)
		if !ok {
			return nil, qerrors.InternalQueryEngineError(fmt.Errorf("node %s: bad filter config type", spec.ID))
		}
		return node.NewFilter(cfg), nil
	case "groupby":
		cfg, ok := spec.Config.(node.GroupByConfig)
		if !ok {
			return nil, qerrors.InternalQueryEngineError(fmt.Errorf("node %s: bad groupby config type", spec.ID))
		}
		return node.NewGroupBy(cfg), nil
	case "downsample":
		cfg, ok := spec.Config.(node.DownsampleConfig)
		if !ok {
			return nil, qerrors.InternalQueryEngineError(fmt.Errorf("node %s: bad downsample config type", spec.ID))
		}
		return node.NewDownsample(cfg), nil
	case "rate":
		cfg, ok := spec.Config.(node.RateConfig)
		if !ok {
			return nil, qerrors.InternalQueryEngineError(fmt.Errorf("node %s: bad rate config type", spec.ID))
		}
		return node.NewRate(cfg), nil
	case "merger":
		cfg, ok := spec.Config.(node.MergerConfig)
		if !ok {
			return nil, qerrors.InternalQueryEngineError(fmt.Errorf("node %s: bad merger config type", spec.ID))
		}
		return node.NewMerger(cfg), nil
	case "join":
		cfg, ok := spec.Config.(node.JoinConfig)
		if !ok {
			return nil, qerrors.InternalQueryEngineError(fmt.Errorf("node %s: bad join config type", spec.ID))
		}
		return node.NewJoin(cfg), nil
	case "topn":
		cfg, ok := spec.Config.(node.TopNConfig)
		if !ok {
			return nil, qerrors.InternalQueryEngineError(fmt.Errorf("node %s: bad topn config type", spec.ID))
		}
		return node.NewTopN(cfg), nil
	case "summarizer":
		cfg, ok := spec.Config.(node.SummarizerConfig)
		if !ok {
			return nil, qerrors.InternalQueryEngineError(fmt.Errorf("node %s: bad summarizer config type", spec.ID))
		}
		return node.NewSummarizer(cfg), nil
	case "expression":
		cfg, ok := spec.Config.(node.ExpressionConfig)
		if !ok {
			return nil, qerrors.InternalQueryEngineError(fmt.Errorf("node %s: bad expression config type", spec.ID))
		}
		return node.NewExpression(cfg)
	default:
		return nil, qerrors.InternalQueryEngineError(fmt.Errorf("node %s: unknown node kind %q", spec.ID, spec.Kind))
	}
}
