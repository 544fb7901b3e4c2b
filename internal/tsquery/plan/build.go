package plan

import (
	"sort"
	"time"

	qerrors "github.com/flowmetrics/qpipe/errors"
	"github.com/flowmetrics/qpipe/internal/tsquery/kernel"
	"github.com/flowmetrics/qpipe/internal/tsquery/node"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
	"github.com/flowmetrics/qpipe/validation"
)

// NodeSpec is one DAG node's planned configuration: a stable id, the
// operator kind it instantiates, its config object (one of the node.*Config
// types), and the upstream node ids it depends on.
type NodeSpec struct {
	ID        string
	Kind      string
	Config    any
	DependsOn []string
}

// Plan is the planner's immutable output: a topologically ordered node list
// (tie-break lexicographic by id, per §4.4), the output-to-node bindings
// named in the query's outputs, and a stable fingerprint.
type Plan struct {
	Nodes       []NodeSpec
	Outputs     map[string]string // output sink name -> upstream node id
	Fingerprint string
}

// Builder runs the seven-step planning contract of §4.4 over one query.
type Builder struct {
	Resolver SourceResolver
}

// NewBuilder returns a Builder that resolves metrics via resolver.
func NewBuilder(resolver SourceResolver) *Builder {
	return &Builder{Resolver: resolver}
}

// Build runs validate -> expand -> push-down -> compose -> insert-mergers ->
// attach-sinks -> fingerprint over q, returning the resulting Plan.
func (b *Builder) Build(q *TimeSeriesQuery) (*Plan, error) {
	if err := b.validate(q); err != nil {
		return nil, err
	}

	filterByID := map[string]FilterSet{}
	for _, fs := range q.FilterSets {
		filterByID[fs.ID] = fs
	}

	var nodes []NodeSpec
	// outputByMetricOrExpr maps a metric/expression id to the id of the node
	// producing its final output (after filter/groupby/downsample/rate/topn/
	// summarizer chain, and after merger insertion for multi-source metrics).
	outputByID := map[string]string{}

	for _, m := range q.Metrics {
		tail, metricNodes, err := b.expandMetric(m, filterByID)
		if err != nil {
			return nil, err
		}
		nodes = append(nodes, metricNodes...)
		outputByID[m.ID] = tail
	}

	// compose populates outputByID[es.ID] as each expression finishes
	// building, so a sibling expression's Join can reference an
	// already-built expression's output within the same pass.
	exprNodes, err := b.compose(q.Expressions, outputByID)
	if err != nil {
		return nil, err
	}
	nodes = append(nodes, exprNodes...)

	plan := &Plan{Outputs: map[string]string{}}
	for _, out := range q.Outputs {
		upstream, ok := outputByID[out.ID]
		if !ok {
			return nil, qerrors.ParseError("output references unknown id " + out.ID)
		}
		plan.Outputs[out.Sink] = upstream
	}

	plan.Nodes = topoSort(nodes)
	plan.Fingerprint = Fingerprint(q)
	return plan, nil
}

// validate checks every reference resolves and every metric has at least
// one resolvable data source, per §4.4 step 1.
func (b *Builder) validate(q *TimeSeriesQuery) error {
	if err := validation.Validate(q); err != nil {
		return qerrors.ParseError(err.Error())
	}
	if len(q.Metrics) == 0 {
		return qerrors.ParseError("query has no metrics")
	}
	filterIDs := map[string]bool{}
	for _, fs := range q.FilterSets {
		filterIDs[fs.ID] = true
	}
	metricIDs := map[string]bool{}
	for _, m := range q.Metrics {
		if metricIDs[m.ID] {
			return qerrors.ParseError("duplicate metric id " + m.ID)
		}
		metricIDs[m.ID] = true
		if m.Filter != "" && !filterIDs[m.Filter] {
			return qerrors.ParseError("metric " + m.ID + " references unknown filter " + m.Filter)
		}
		if b.Resolver != nil {
			sources, err := b.Resolver.Resolve(m.Name, m.Tags)
			if err != nil || len(sources) == 0 {
				return qerrors.UnknownSourceError(m.Name)
			}
		}
	}
	exprIDs := map[string]bool{}
	for _, es := range q.Expressions {
		exprIDs[es.ID] = true
	}
	referenceable := func(id string) bool { return metricIDs[id] || exprIDs[id] }
	for _, es := range q.Expressions {
		if es.Join != nil {
			if !referenceable(es.Join.Left) || !referenceable(es.Join.Right) {
				return qerrors.ParseError("expression " + es.ID + " join references unknown id")
			}
		}
	}
	if len(q.Outputs) == 0 {
		return qerrors.ParseError("query has no outputs")
	}
	for _, out := range q.Outputs {
		if !referenceable(out.ID) {
			return qerrors.ParseError("output references unknown id " + out.ID)
		}
	}
	return nil
}

// expandMetric expands one metric into a source node per resolved data
// source plus its per-metric operator chain, pushing filter/downsample into
// the source when its capabilities allow (§4.4 steps 2-3). It returns the
// id of the chain's terminal node along with every node it created.
func (b *Builder) expandMetric(m MetricSpec, filterByID map[string]FilterSet) (string, []NodeSpec, error) {
	var nodes []NodeSpec

	var predicate *node.Predicate
	if m.Filter != "" {
		p, err := buildPredicate(m.Filter, filterByID, map[string]bool{})
		if err != nil {
			return "", nil, err
		}
		predicate = &p
	}

	sources, err := b.Resolver.Resolve(m.Name, m.Tags)
	if err != nil || len(sources) == 0 {
		return "", nil, qerrors.UnknownSourceError(m.Name)
	}

	var downsampleBucketer *kernel.Bucketer
	var downsampleInterval time.Duration
	if m.Downsample != nil {
		bk, interval, err := newBucketer(m.Downsample, "")
		if err != nil {
			return "", nil, qerrors.ParseError("metric " + m.ID + " downsample: " + err.Error())
		}
		downsampleBucketer = &bk
		downsampleInterval = interval
	}

	var sourceTails []string
	var shardGroup []string
	for _, src := range sources {
		sourceID := m.ID + ".src." + src.SourceTag
		dataSource := src.DataSource
		caps := dataSource.Capabilities()

		pushedFilter := false
		if predicate != nil && caps.PushDownFilter {
			dataSource = &filteringSource{inner: dataSource, predicate: *predicate}
			pushedFilter = true
		}
		pushedDownsample := false
		if downsampleBucketer != nil && caps.PushDownDownsample {
			dataSource = &downsamplingSource{inner: dataSource, bucketer: *downsampleBucketer}
			pushedDownsample = true
		}

		nodes = append(nodes, NodeSpec{
			ID:   sourceID,
			Kind: "source",
			Config: node.SourceConfig{
				ID: sourceID, SourceTag: src.SourceTag, DataSource: dataSource, HAGroup: src.HAGroup,
			},
		})

		tail := sourceID
		if predicate != nil && !pushedFilter {
			filterID := m.ID + ".filter." + src.SourceTag
			nodes = append(nodes, NodeSpec{
				ID: filterID, Kind: "filter",
				Config:    node.FilterConfig{ID: filterID, Upstream: tail, Predicate: *predicate},
				DependsOn: []string{tail},
			})
			tail = filterID
		}
		if downsampleBucketer != nil && !pushedDownsample {
			downsampleID := m.ID + ".downsample." + src.SourceTag
			nodes = append(nodes, NodeSpec{
				ID: downsampleID, Kind: "downsample",
				Config: node.DownsampleConfig{
					ID: downsampleID, Upstream: tail,
					Interval: downsampleInterval, Calendar: downsampleBucketer.Calendar,
					Aggregator: downsampleBucketer.Aggregator, Percentile: downsampleBucketer.Percentile,
					Filler: downsampleBucketer.Filler,
				},
				DependsOn: []string{tail},
			})
			tail = downsampleID
		}
		sourceTails = append(sourceTails, tail)
		if src.Shard {
			shardGroup = append(shardGroup, tail)
		}
	}

	tail := sourceTails[0]
	if len(sourceTails) > 1 {
		mergerID := m.ID + ".merger"
		mergerCfg := node.MergerConfig{ID: mergerID, Upstreams: sourceTails}
		if len(shardGroup) > 0 {
			mergerCfg.Mode = node.MergerShard
		} else {
			mergerCfg.Mode = node.MergerHA
		}
		nodes = append(nodes, NodeSpec{ID: mergerID, Kind: "merger", Config: mergerCfg, DependsOn: sourceTails})
		tail = mergerID
	}

	if m.GroupBy != nil {
		groupByID := m.ID + ".groupby"
		nodes = append(nodes, NodeSpec{
			ID: groupByID, Kind: "groupby",
			Config: node.GroupByConfig{
				ID: groupByID, Upstream: tail, TagKeys: m.GroupBy.TagKeys,
				Aggregator: m.GroupBy.Aggregator, Percentile: m.GroupBy.Percentile,
			},
			DependsOn: []string{tail},
		})
		tail = groupByID
	}

	if m.Rate != nil {
		rateID := m.ID + ".rate"
		nodes = append(nodes, NodeSpec{
			ID: rateID, Kind: "rate",
			Config: node.RateConfig{
				ID: rateID, Upstream: tail, IsCounter: m.Rate.IsCounter,
				CounterMax: m.Rate.CounterMax, ResetValue: m.Rate.ResetValue,
			},
			DependsOn: []string{tail},
		})
		tail = rateID
	}

	if m.TopN != nil {
		topNID := m.ID + ".topn"
		nodes = append(nodes, NodeSpec{
			ID: topNID, Kind: "topn",
			Config: node.TopNConfig{
				ID: topNID, Upstream: tail, N: m.TopN.N,
				Aggregator: m.TopN.Aggregator, Descending: m.TopN.Descending,
			},
			DependsOn: []string{tail},
		})
		tail = topNID
	}

	if m.Summarizer != nil {
		summarizerID := m.ID + ".summarizer"
		ids := make([]tsvalue.SummaryID, len(m.Summarizer.SummaryIDs))
		for i, v := range m.Summarizer.SummaryIDs {
			ids[i] = tsvalue.SummaryID(v)
		}
		nodes = append(nodes, NodeSpec{
			ID: summarizerID, Kind: "summarizer",
			Config:    node.SummarizerConfig{ID: summarizerID, Upstream: tail, SummaryIDs: ids},
			DependsOn: []string{tail},
		})
		tail = summarizerID
	}

	return tail, nodes, nil
}

// buildPredicate recursively resolves a FilterSet reference chain (AND/OR/
// NOT composition) into a node.Predicate tree, detecting cycles in the
// filter-set reference graph itself.
func buildPredicate(id string, byID map[string]FilterSet, seen map[string]bool) (node.Predicate, error) {
	if seen[id] {
		return node.Predicate{}, qerrors.PlanCycleError([]string{id})
	}
	seen[id] = true
	fs, ok := byID[id]
	if !ok {
		return node.Predicate{}, qerrors.ParseError("unknown filter set " + id)
	}
	switch fs.Op {
	case "and", "or":
		var subs []node.Predicate
		for _, term := range fs.Terms {
			sub, err := buildPredicate(term.Ref, byID, seen)
			if err != nil {
				return node.Predicate{}, err
			}
			subs = append(subs, sub)
		}
		if fs.Op == "and" {
			return node.Predicate{And: subs}, nil
		}
		return node.Predicate{Or: subs}, nil
	case "not":
		if len(fs.Terms) != 1 {
			return node.Predicate{}, qerrors.ParseError("filter set " + id + " 'not' requires exactly one term")
		}
		sub, err := buildPredicate(fs.Terms[0].Ref, byID, seen)
		if err != nil {
			return node.Predicate{}, err
		}
		return node.Predicate{Not: &sub}, nil
	default:
		return node.Predicate{Leaf: &node.TagPredicate{
			Key: fs.Key, Op: node.FilterOp(fs.Match), Value: fs.Value,
		}}, nil
	}
}

// compose builds a Join + Expression node pair for each ExpressionSpec,
// per §4.4 step 4. Cycle detection walks the expression reference graph
// (an expression may reference another expression's id) via the same
// recursion-stack idiom as the filter-set composer.
func (b *Builder) compose(exprs []ExpressionSpec, outputByID map[string]string) ([]NodeSpec, error) {
	exprByID := make(map[string]ExpressionSpec, len(exprs))
	for _, es := range exprs {
		exprByID[es.ID] = es
	}

	var nodes []NodeSpec
	built := map[string]bool{}
	var build func(id string, stack map[string]bool) error
	build = func(id string, stack map[string]bool) error {
		if built[id] {
			return nil
		}
		if stack[id] {
			return qerrors.PlanCycleError([]string{id})
		}
		es, ok := exprByID[id]
		if !ok {
			return nil // a metric id, already expanded
		}
		stack[id] = true
		defer delete(stack, id)

		var cfg node.ExpressionConfig
		if es.Join != nil {
			if err := build(es.Join.Left, stack); err != nil {
				return err
			}
			if err := build(es.Join.Right, stack); err != nil {
				return err
			}
			joinID := es.ID + ".join"
			kind := node.JoinIntersection
			if es.Join.Kind == "union" {
				kind = node.JoinUnion
			}
			nodes = append(nodes, NodeSpec{
				ID: joinID, Kind: "join",
				Config: node.JoinConfig{
					ID: joinID, Left: outputByID[es.Join.Left], Right: outputByID[es.Join.Right],
					Kind: kind, Filler: parseFill(es.Join.Fill),
				},
				DependsOn: []string{outputByID[es.Join.Left], outputByID[es.Join.Right]},
			})
			cfg = node.ExpressionConfig{ID: es.ID, Expr: es.Expr, Inputs: map[string]string{"left": joinID, "right": joinID}}
			if _, err := node.NewExpression(cfg); err != nil {
				return qerrors.ParseError("expression " + es.ID + ": " + err.Error())
			}
			nodes = append(nodes, NodeSpec{ID: es.ID, Kind: "expression", Config: cfg, DependsOn: []string{joinID}})
			built[id] = true
			outputByID[es.ID] = es.ID
			return nil
		}

		// No explicit join: the expression references a single upstream
		// directly by its own id as the sole identifier.
		upstream, ok := outputByID[id]
		if !ok {
			return qerrors.ParseError("expression " + id + " has no join and does not reference a known metric output")
		}
		cfg = node.ExpressionConfig{ID: es.ID, Expr: es.Expr, Inputs: map[string]string{id: upstream}}
		if _, err := node.NewExpression(cfg); err != nil {
			return qerrors.ParseError("expression " + es.ID + ": " + err.Error())
		}
		nodes = append(nodes, NodeSpec{ID: es.ID, Kind: "expression", Config: cfg, DependsOn: []string{upstream}})
		built[id] = true
		outputByID[es.ID] = es.ID
		return nil
	}

	for _, es := range exprs {
		if err := build(es.ID, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	return nodes, nil
}

// topoSort orders nodes by dependency (stable, lexicographic tie-break by
// id), matching §4.4's stated ordering rule. It assumes the caller already
// produced an acyclic node set (compose's cycle detection runs earlier).
func topoSort(nodes []NodeSpec) []NodeSpec {
	byID := make(map[string]NodeSpec, len(nodes))
	var ids []string
	for _, n := range nodes {
		byID[n.ID] = n
		ids = append(ids, n.ID)
	}
	sort.Strings(ids)

	visited := map[string]bool{}
	var order []NodeSpec
	var visit func(id string)
	visit = func(id string) {
		if visited[id] {
			return
		}
		visited[id] = true
		n, ok := byID[id]
		if !ok {
			return
		}
		deps := append([]string(nil), n.DependsOn...)
		sort.Strings(deps)
		for _, dep := range deps {
			visit(dep)
		}
		order = append(order, n)
	}
	for _, id := range ids {
		visit(id)
	}
	return order
}
