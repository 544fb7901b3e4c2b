package exec

import (
	"context"
	"fmt"
	"sync"
	"time"

	qerrors "github.com/flowmetrics/qpipe/errors"
	"github.com/flowmetrics/qpipe/internal/tsquery/node"
	"github.com/flowmetrics/qpipe/internal/tsquery/plan"
	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
	"github.com/flowmetrics/qpipe/logger"
	"github.com/flowmetrics/qpipe/observability"
)

// Executor drives a plan.Plan to completion: it groups the plan's nodes into
// dependency levels (dependencyGraph.levels), runs each level's nodes
// concurrently behind a semaphore, and after each level merges the
// completed nodes' results into the shared node.Context so the next
// level's nodes can read their upstreams via node.FromContext.
type Executor struct {
	// MaxParallel bounds concurrent node execution per level (0 = level size).
	MaxParallel int
	Log         *logger.Logger
	Metrics     *observability.Metrics

	registry runningRegistry
}

// NodeOutcome records one node's terminal result for a query execution.
type NodeOutcome struct {
	Result *tsresult.QueryResult
	Err    error
}

// Outcome is a completed query execution: every node's result/error, and
// the sink-name -> QueryResult bindings named by the plan's Outputs.
type Outcome struct {
	Nodes   map[string]NodeOutcome
	Outputs map[string]*tsresult.QueryResult
	// Warnings aggregates any node-level partial-result warnings, surfaced
	// to the sink trailer per §7.
	Warnings []string
}

// Execute runs p to completion against registry. UseCache (the query's
// plan-fingerprint dedup flag) is honored by the caller via Submit; Execute
// itself always runs once.
func (e *Executor) Execute(ctx context.Context, q *plan.TimeSeriesQuery, p *plan.Plan) (*Outcome, error) {
	nodes := make(map[string]node.Node, len(p.Nodes))
	specByID := make(map[string]plan.NodeSpec, len(p.Nodes))
	for _, spec := range p.Nodes {
		n, err := buildNode(spec)
		if err != nil {
			return nil, err
		}
		nodes[spec.ID] = n
		specByID[spec.ID] = spec
	}

	runnable := make(map[string]node.Node, len(nodes))
	ids := make([]string, 0, len(nodes))
	for id, n := range nodes {
		runnable[id] = e.decorate(n)
		ids = append(ids, id)
	}
	graph := newDependencyGraph(ids)
	for _, spec := range p.Nodes {
		for _, dep := range spec.DependsOn {
			graph.addEdge(dep, spec.ID)
		}
	}

	levels, err := graph.levels()
	if err != nil {
		return nil, qerrors.InternalQueryEngineError(err)
	}

	qc := &node.Context{
		Upstream:       map[string]*tsresult.QueryResult{},
		UpstreamErrors: map[string]error{},
		Registry:       tsvalue.NewTypeRegistry(),
	}
	runCtx := node.WithContext(ctx, qc)

	outcome := &Outcome{Nodes: map[string]NodeOutcome{}, Outputs: map[string]*tsresult.QueryResult{}}

	for _, level := range levels {
		if err := ctx.Err(); err != nil {
			return outcome, qerrors.CancelledError(err.Error())
		}
		results := e.runLevel(runCtx, runnable, level)
		for id, res := range results {
			outcome.Nodes[id] = res
			if res.Err != nil {
				qc.UpstreamErrors[id] = res.Err
				continue
			}
			qc.Upstream[id] = res.Result
			outcome.Warnings = append(outcome.Warnings, res.Result.Warnings...)
		}
	}

	for sink, nodeID := range p.Outputs {
		if res, ok := outcome.Nodes[nodeID]; ok && res.Result != nil {
			outcome.Outputs[sink] = res.Result
		}
	}
	return outcome, nil
}

func (e *Executor) runLevel(ctx context.Context, runnable map[string]node.Node, names []string) map[string]NodeOutcome {
	out := make(map[string]NodeOutcome, len(names))
	var mu sync.Mutex
	var wg sync.WaitGroup

	limit := len(names)
	if e.MaxParallel > 0 && e.MaxParallel < limit {
		limit = e.MaxParallel
	}
	sem := make(chan struct{}, limit)

	for _, name := range names {
		wg.Add(1)
		go func(nodeName string) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()

			n := runnable[nodeName]
			output, err := n.Run(ctx)
			var outcome NodeOutcome
			if err != nil {
				outcome.Err = err
			} else if r, ok := output.(*tsresult.QueryResult); ok {
				outcome.Result = r
			} else {
				outcome.Err = qerrors.InternalQueryEngineError(fmt.Errorf("node %s: unexpected output type %T", nodeName, output))
			}
			mu.Lock()
			out[nodeName] = outcome
			mu.Unlock()
		}(name)
	}
	wg.Wait()
	return out
}

// decorate wraps n with tracing, and with metrics/logging when configured.
func (e *Executor) decorate(n node.Node) node.Node {
	wrapped := n
	if e.Metrics != nil {
		wrapped = withMetrics(wrapped, e.Metrics)
	}
	if e.Log != nil {
		wrapped = withLogging(wrapped, e.Log)
	}
	wrapped = withTracing(wrapped)
	return wrapped
}

// runningRegistry tracks in-flight executions keyed by plan fingerprint, so
// Submit can enforce at-most-one-live-execution-per-fingerprint unless the
// query opts out.
type runningRegistry struct {
	mu      sync.Mutex
	running map[string]*inflight
}

type inflight struct {
	done chan struct{}
	out  *Outcome
	err  error
}

// Submit runs p, but if an identical (by fingerprint) query is already
// executing and q.UseCache is true, it waits for and returns that
// execution's result instead of starting a duplicate one.
func (e *Executor) Submit(ctx context.Context, q *plan.TimeSeriesQuery, p *plan.Plan) (*Outcome, error) {
	if !q.UseCache {
		return e.Execute(ctx, q, p)
	}

	e.registry.mu.Lock()
	if e.registry.running == nil {
		e.registry.running = map[string]*inflight{}
	}
	if f, ok := e.registry.running[p.Fingerprint]; ok {
		e.registry.mu.Unlock()
		select {
		case <-f.done:
			return f.out, f.err
		case <-ctx.Done():
			return nil, qerrors.CancelledError(ctx.Err().Error())
		}
	}
	f := &inflight{done: make(chan struct{})}
	e.registry.running[p.Fingerprint] = f
	e.registry.mu.Unlock()

	f.out, f.err = e.Execute(ctx, q, p)
	close(f.done)

	e.registry.mu.Lock()
	delete(e.registry.running, p.Fingerprint)
	e.registry.mu.Unlock()

	return f.out, f.err
}

// Deadline wraps ctx with a timeout derived from the query's time window
// rather than a fixed constant, per §5's execution-deadline requirement.
func Deadline(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
