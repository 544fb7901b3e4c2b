package node

import (
	"context"
	"sort"

	"github.com/flowmetrics/qpipe/internal/tsquery/kernel"
	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// JoinKind selects how two inputs are aligned by id.
type JoinKind string

const (
	JoinIntersection JoinKind = "intersection"
	JoinUnion        JoinKind = "union"
)

// JoinConfig configures a Join node.
type JoinConfig struct {
	ID       string
	Left     string
	Right    string
	Kind     JoinKind
	Filler   kernel.Filler
}

// JoinNode aligns two inputs by id intersection or union. A union join
// inserts the configured fill policy for whichever side is missing a
// given id.
type JoinNode struct {
	stateMachine
	cfg JoinConfig
}

func NewJoin(cfg JoinConfig) *JoinNode { return &JoinNode{cfg: cfg} }

func (n *JoinNode) Name() string { return n.cfg.ID }

func (n *JoinNode) Types() []tsvalue.TypeToken {
	return []tsvalue.TypeToken{tsvalue.TypeNumeric}
}

func (n *JoinNode) State() State { return n.current() }

func (n *JoinNode) Run(ctx context.Context) (any, error) {
	n.transition(Running)
	qc, ok := FromContext(ctx)
	if !ok {
		n.transition(Failed)
		return nil, errMissingContext(n.cfg.ID)
	}
	left, ok := qc.Get(n.cfg.Left)
	if !ok {
		n.transition(Failed)
		return nil, errMissingUpstream(n.cfg.ID, n.cfg.Left)
	}
	right, ok := qc.Get(n.cfg.Right)
	if !ok {
		n.transition(Failed)
		return nil, errMissingUpstream(n.cfg.ID, n.cfg.Right)
	}

	leftByKey := seriesByKey(left.Series)
	rightByKey := seriesByKey(right.Series)

	var keys []string
	switch n.cfg.Kind {
	case JoinIntersection:
		for k := range leftByKey {
			if _, ok := rightByKey[k]; ok {
				keys = append(keys, k)
			}
		}
	case JoinUnion:
		seen := map[string]bool{}
		for k := range leftByKey {
			seen[k] = true
		}
		for k := range rightByKey {
			seen[k] = true
		}
		for k := range seen {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	out := &tsresult.QueryResult{NodeID: n.cfg.ID, Source: left.Source}
	for _, k := range keys {
		ls, lok := leftByKey[k]
		rs, rok := rightByKey[k]
		var id tsvalue.TimeSeriesID
		if lok {
			id = ls.ID
		} else {
			id = rs.ID
		}

		leftPoints := pointsOf(ls)
		rightPoints := pointsOf(rs)
		leftAligned, rightAligned := n.alignByTimestamp(leftPoints, rightPoints, lok, rok)

		leftID := id
		leftID.Alias = "left"
		leftSeries := tsvalue.NewTimeSeries(leftID, qc.Registry)
		leftSeries.Set(tsvalue.TypeNumeric, leftAligned)
		out.Series = append(out.Series, leftSeries)

		rightID := id
		rightID.Alias = "right"
		rightSeries := tsvalue.NewTimeSeries(rightID, qc.Registry)
		rightSeries.Set(tsvalue.TypeNumeric, rightAligned)
		out.Series = append(out.Series, rightSeries)
	}

	n.transition(Complete)
	return out, nil
}

func seriesByKey(series []*tsvalue.TimeSeries) map[string]*tsvalue.TimeSeries {
	m := make(map[string]*tsvalue.TimeSeries, len(series))
	for _, s := range series {
		m[s.ID.Key()] = s
	}
	return m
}

func pointsOf(s *tsvalue.TimeSeries) []tsvalue.NumericPoint {
	if s == nil {
		return nil
	}
	cur, err := s.Cursor(tsvalue.TypeNumeric)
	if err != nil {
		return nil
	}
	var points []tsvalue.NumericPoint
	for cur.Next() {
		points = append(points, cur.Numeric())
	}
	return points
}

// alignByTimestamp merges two point lists by timestamp. Under UNION join,
// a timestamp present on only one side is filled per the configured
// Filler; under INTERSECTION (enforced by the caller only ever passing
// matched ids), a timestamp missing on one side is dropped unless it's
// present on both.
type joinCell struct {
	left, right       float64
	hasLeft, hasRight bool
}

func (n *JoinNode) alignByTimestamp(left, right []tsvalue.NumericPoint, hasLeft, hasRight bool) (leftOut, rightOut []tsvalue.NumericPoint) {
	byTS := map[int64]*joinCell{}
	var order []int64
	add := func(points []tsvalue.NumericPoint, side int) {
		for _, p := range points {
			key := p.Timestamp.Nanos()
			e, ok := byTS[key]
			if !ok {
				e = &joinCell{}
				byTS[key] = e
				order = append(order, key)
			}
			if side == 0 {
				e.left, e.hasLeft = p.Value, true
			} else {
				e.right, e.hasRight = p.Value, true
			}
		}
	}
	add(left, 0)
	add(right, 1)
	sort.Slice(order, func(i, j int) bool { return order[i] < order[j] })

	for _, key := range order {
		e := byTS[key]
		if n.cfg.Kind == JoinIntersection && !(e.hasLeft && e.hasRight) {
			continue
		}
		lv, rv := e.left, e.right
		if !e.hasLeft {
			if v, ok := n.cfg.Filler.Resolve(0, rv, false, e.hasRight); ok {
				lv = v
			}
		}
		if !e.hasRight {
			if v, ok := n.cfg.Filler.Resolve(lv, 0, e.hasLeft, false); ok {
				rv = v
			}
		}
		ts := tsvalue.Timestamp{Epoch: key, Resolution: tsvalue.Nanoseconds}.In(tsvalue.Milliseconds)
		leftOut = append(leftOut, tsvalue.NumericPoint{Timestamp: ts, Value: lv})
		rightOut = append(rightOut, tsvalue.NumericPoint{Timestamp: ts, Value: rv})
	}
	return leftOut, rightOut
}
