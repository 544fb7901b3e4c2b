package exec

import (
	"context"
	"time"

	"github.com/flowmetrics/qpipe/internal/tsquery/node"
	"github.com/flowmetrics/qpipe/logger"
	"github.com/flowmetrics/qpipe/observability"
)

// withTracing wraps a node.Node with an OpenTelemetry span covering that
// node's Run, named "tsquery.<node id>".
func withTracing(n node.Node) node.Node {
	return &tracingNode{Node: n}
}

type tracingNode struct {
	node.Node
}

func (n *tracingNode) Run(ctx context.Context) (any, error) {
	spanName := "tsquery." + n.Name()
	ctx, span := observability.StartSpan(ctx, spanName)
	defer span.End()

	observability.SetSpanAttribute(ctx, "tsquery.node", n.Name())

	result, err := n.Node.Run(ctx)
	if err != nil {
		observability.SetSpanError(ctx, err)
	}
	return result, err
}

// withMetrics wraps a node.Node with operation-count/duration/error
// recording against m.
func withMetrics(n node.Node, m *observability.Metrics) node.Node {
	return &metricsNode{Node: n, metrics: m}
}

type metricsNode struct {
	node.Node
	metrics *observability.Metrics
}

func (n *metricsNode) Run(ctx context.Context) (any, error) {
	start := time.Now()
	result, err := n.Node.Run(ctx)
	duration := time.Since(start)

	status := "ok"
	if err != nil {
		status = "error"
		n.metrics.RecordError(ctx, "execute", n.Name())
	}
	n.metrics.RecordOperation(ctx, n.Name(), "tsquery.run", status, duration)
	return result, err
}

// withLogging wraps a node.Node with per-run duration/status logging.
func withLogging(n node.Node, log *logger.Logger) node.Node {
	return &loggingNode{Node: n, log: log}
}

type loggingNode struct {
	node.Node
	log *logger.Logger
}

func (n *loggingNode) Run(ctx context.Context) (any, error) {
	start := time.Now()
	result, err := n.Node.Run(ctx)
	duration := time.Since(start)

	fields := map[string]interface{}{
		"node":     n.Name(),
		"duration": duration.String(),
	}
	if err != nil {
		fields["error"] = err.Error()
		n.log.Error("query node failed", fields)
	} else {
		n.log.Debug("query node completed", fields)
	}
	return result, err
}
