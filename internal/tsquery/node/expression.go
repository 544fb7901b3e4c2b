package node

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// ExpressionConfig configures an Expression node. Inputs maps the
// identifier used inside Expr to the upstream node id producing that
// identifier's series (typically a Join output or a metric/sub-expression
// output, per §4.4 step 4: "each expression becomes a node whose children
// are the metric or sub-expression outputs it references").
type ExpressionConfig struct {
	ID     string
	Expr   string
	Inputs map[string]string
}

// ExpressionNode evaluates an infix arithmetic/logical expression over its
// named inputs, aligned by timestamp.
type ExpressionNode struct {
	stateMachine
	cfg ExpressionConfig
	ast exprNode
}

// NewExpression parses cfg.Expr once at construction (planner time); a
// parse failure surfaces immediately rather than at first Run.
func NewExpression(cfg ExpressionConfig) (*ExpressionNode, error) {
	ast, err := parseExpr(cfg.Expr)
	if err != nil {
		return nil, err
	}
	return &ExpressionNode{cfg: cfg, ast: ast}, nil
}

func (n *ExpressionNode) Name() string { return n.cfg.ID }

func (n *ExpressionNode) Types() []tsvalue.TypeToken {
	return []tsvalue.TypeToken{tsvalue.TypeNumeric}
}

func (n *ExpressionNode) State() State { return n.current() }

func (n *ExpressionNode) Run(ctx context.Context) (any, error) {
	n.transition(Running)
	qc, ok := FromContext(ctx)
	if !ok {
		n.transition(Failed)
		return nil, errMissingContext(n.cfg.ID)
	}

	// Every input identifier's series must share the same timestamp grid;
	// the planner is expected to have inserted a Join node upstream when
	// that isn't naturally true. Here we evaluate at the union of timestamps
	// across all inputs; an input with no point at a timestamp reads as NaN.
	pointsByInput := map[string][]tsvalue.NumericPoint{}
	for ident, upstreamID := range n.cfg.Inputs {
		r, ok := qc.Get(upstreamID)
		if !ok {
			n.transition(Failed)
			return nil, errMissingUpstream(n.cfg.ID, upstreamID)
		}
		if len(r.Series) == 0 {
			continue
		}
		// A Join upstream emits two series per id, tagged Alias="left" and
		// Alias="right"; pick the one matching this identifier when present
		// (e.g. an expression "left + right" over a single Join node).
		// Otherwise, take the upstream's only series.
		pointsByInput[ident] = pointsOf(seriesForIdent(r.Series, ident))
	}

	timestamps := commonTimestamps(pointsByInput)
	out := &tsresult.QueryResult{NodeID: n.cfg.ID, Source: "expression"}
	series := tsvalue.NewTimeSeries(tsvalue.NewTimeSeriesID(n.cfg.ID, nil), qc.Registry)
	var points []tsvalue.NumericPoint
	for _, ts := range timestamps {
		env := map[string]float64{}
		for ident, pts := range pointsByInput {
			env[ident] = valueAt(pts, ts)
		}
		v, err := n.ast.eval(env)
		if err != nil {
			n.transition(Failed)
			return nil, err
		}
		points = append(points, tsvalue.NumericPoint{Timestamp: tsvalue.Timestamp{Epoch: ts, Resolution: tsvalue.Nanoseconds}.In(tsvalue.Milliseconds), Value: v})
	}
	series.Set(tsvalue.TypeNumeric, points)
	out.Series = append(out.Series, series)

	n.transition(Complete)
	return out, nil
}

func seriesForIdent(series []*tsvalue.TimeSeries, ident string) *tsvalue.TimeSeries {
	if len(series) == 1 {
		return series[0]
	}
	for _, s := range series {
		if s.ID.Alias == ident {
			return s
		}
	}
	if len(series) > 0 {
		return series[0]
	}
	return nil
}

func commonTimestamps(byInput map[string][]tsvalue.NumericPoint) []int64 {
	seen := map[int64]int{}
	for _, pts := range byInput {
		local := map[int64]bool{}
		for _, p := range pts {
			local[p.Timestamp.Nanos()] = true
		}
		for ts := range local {
			seen[ts]++
		}
	}
	var out []int64
	for ts := range seen {
		out = append(out, ts)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func valueAt(points []tsvalue.NumericPoint, tsNanos int64) float64 {
	for _, p := range points {
		if p.Timestamp.Nanos() == tsNanos {
			return p.Value
		}
	}
	return math.NaN()
}

// --- infix expression grammar: identifiers, numeric literals, + - * / %,
// comparison (== != < <= > >=), && || !, ternary ?:, function calls.

type exprNode interface {
	eval(env map[string]float64) (float64, error)
}

type litNode float64

func (l litNode) eval(map[string]float64) (float64, error) { return float64(l), nil }

type identNode string

func (id identNode) eval(env map[string]float64) (float64, error) {
	v, ok := env[string(id)]
	if !ok {
		return 0, fmt.Errorf("expression: unknown identifier %q", id)
	}
	return v, nil
}

type binOpNode struct {
	op          string
	left, right exprNode
}

func (b binOpNode) eval(env map[string]float64) (float64, error) {
	l, err := b.left.eval(env)
	if err != nil {
		return 0, err
	}
	r, err := b.right.eval(env)
	if err != nil {
		return 0, err
	}
	switch b.op {
	case "+":
		return l + r, nil
	case "-":
		return l - r, nil
	case "*":
		return l * r, nil
	case "/":
		if r == 0 {
			return math.NaN(), nil
		}
		return l / r, nil
	case "%":
		return math.Mod(l, r), nil
	case "==":
		return boolToFloat(l == r), nil
	case "!=":
		return boolToFloat(l != r), nil
	case "<":
		return boolToFloat(l < r), nil
	case "<=":
		return boolToFloat(l <= r), nil
	case ">":
		return boolToFloat(l > r), nil
	case ">=":
		return boolToFloat(l >= r), nil
	case "&&":
		return boolToFloat(l != 0 && r != 0), nil
	case "||":
		return boolToFloat(l != 0 || r != 0), nil
	default:
		return 0, fmt.Errorf("expression: unknown operator %q", b.op)
	}
}

type notNode struct{ operand exprNode }

func (n notNode) eval(env map[string]float64) (float64, error) {
	v, err := n.operand.eval(env)
	if err != nil {
		return 0, err
	}
	return boolToFloat(v == 0), nil
}

type ternaryNode struct{ cond, whenTrue, whenFalse exprNode }

func (t ternaryNode) eval(env map[string]float64) (float64, error) {
	c, err := t.cond.eval(env)
	if err != nil {
		return 0, err
	}
	if c != 0 {
		return t.whenTrue.eval(env)
	}
	return t.whenFalse.eval(env)
}

type callNode struct {
	name string
	args []exprNode
}

func (c callNode) eval(env map[string]float64) (float64, error) {
	args := make([]float64, len(c.args))
	for i, a := range c.args {
		v, err := a.eval(env)
		if err != nil {
			return 0, err
		}
		args[i] = v
	}
	switch c.name {
	case "abs":
		return math.Abs(args[0]), nil
	case "min":
		return math.Min(args[0], args[1]), nil
	case "max":
		return math.Max(args[0], args[1]), nil
	case "sqrt":
		return math.Sqrt(args[0]), nil
	default:
		return 0, fmt.Errorf("expression: unknown function %q", c.name)
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
