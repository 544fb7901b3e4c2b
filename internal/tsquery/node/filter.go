package node

import (
	"context"
	"regexp"
	"strings"

	"github.com/flowmetrics/qpipe/internal/tsresult"
	"github.com/flowmetrics/qpipe/internal/tsvalue"
)

// FilterOp is a tag-predicate comparison operator.
type FilterOp string

const (
	FilterLiteral  FilterOp = "literal"
	FilterRegex    FilterOp = "regex"
	FilterWildcard FilterOp = "wildcard"
	FilterRange    FilterOp = "range"
)

// TagPredicate evaluates one operator over one tag key.
type TagPredicate struct {
	Key      string
	Op       FilterOp
	Value    string
	RangeLow string
	RangeHigh string
}

func (p TagPredicate) matches(tags map[string]string) bool {
	v, ok := tags[p.Key]
	if !ok {
		return false
	}
	switch p.Op {
	case FilterLiteral:
		return v == p.Value
	case FilterRegex:
		re, err := regexp.Compile(p.Value)
		if err != nil {
			return false
		}
		return re.MatchString(v)
	case FilterWildcard:
		return wildcardMatch(p.Value, v)
	case FilterRange:
		return v >= p.RangeLow && v <= p.RangeHigh
	default:
		return false
	}
}

func wildcardMatch(pattern, value string) bool {
	parts := strings.Split(pattern, "*")
	if len(parts) == 1 {
		return pattern == value
	}
	rest := value
	for i, part := range parts {
		if part == "" {
			continue
		}
		idx := strings.Index(rest, part)
		if idx == -1 {
			return false
		}
		if i == 0 && idx != 0 {
			return false
		}
		rest = rest[idx+len(part):]
	}
	if last := parts[len(parts)-1]; last != "" {
		return strings.HasSuffix(value, last)
	}
	return true
}

// Predicate is a boolean composition of TagPredicates via AND/OR/NOT.
// Evaluation short-circuits, matching §4.3's stated evaluation model.
type Predicate struct {
	Leaf     *TagPredicate
	And      []Predicate
	Or       []Predicate
	Not      *Predicate
}

// Eval evaluates the predicate tree over a tag set, short-circuiting.
func (p Predicate) Eval(tags map[string]string) bool {
	if p.Leaf != nil {
		return p.Leaf.matches(tags)
	}
	if p.Not != nil {
		return !p.Not.Eval(tags)
	}
	if len(p.And) > 0 {
		for _, sub := range p.And {
			if !sub.Eval(tags) {
				return false
			}
		}
		return true
	}
	if len(p.Or) > 0 {
		for _, sub := range p.Or {
			if sub.Eval(tags) {
				return true
			}
		}
		return false
	}
	return true
}

// FilterConfig configures a Filter node.
type FilterConfig struct {
	ID        string
	Upstream  string
	Predicate Predicate
}

// FilterNode evaluates a tag predicate over each input series, keeping
// only series whose tags satisfy it.
type FilterNode struct {
	stateMachine
	cfg FilterConfig
}

func NewFilter(cfg FilterConfig) *FilterNode { return &FilterNode{cfg: cfg} }

func (n *FilterNode) Name() string { return n.cfg.ID }

func (n *FilterNode) Types() []tsvalue.TypeToken {
	return []tsvalue.TypeToken{tsvalue.TypeNumeric, tsvalue.TypeNumericSummary, tsvalue.TypeNumericArray}
}

func (n *FilterNode) State() State { return n.current() }

func (n *FilterNode) Run(ctx context.Context) (any, error) {
	n.transition(Running)
	qc, ok := FromContext(ctx)
	if !ok {
		n.transition(Failed)
		return nil, errMissingContext(n.cfg.ID)
	}
	in, ok := qc.Get(n.cfg.Upstream)
	if !ok {
		n.transition(Failed)
		return nil, errMissingUpstream(n.cfg.ID, n.cfg.Upstream)
	}

	out := &tsresult.QueryResult{
		NodeID:     n.cfg.ID,
		Source:     in.Source,
		Sequence:   in.Sequence,
		Resolution: in.Resolution,
		TimeSpec:   in.TimeSpec,
	}
	for _, series := range in.Series {
		if n.cfg.Predicate.Eval(series.ID.Tags) {
			out.Series = append(out.Series, series)
		}
	}
	n.transition(Complete)
	return out, nil
}
