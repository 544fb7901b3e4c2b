package plan

import (
	"encoding/json"
	"fmt"

	"github.com/flowmetrics/qpipe/internal/tsquery/kernel"
	"github.com/flowmetrics/qpipe/internal/tsquery/node"
)

// nodeSpecEnvelope is NodeSpec's wire shape: Config travels as a
// Kind-tagged raw message so UnmarshalJSON can decode it back into the
// concrete node.*Config type buildNode's switch expects, rather than the
// generic map[string]interface{} encoding/json would otherwise produce for
// an any-typed field.
type nodeSpecEnvelope struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	Config    json.RawMessage `json:"config"`
	DependsOn []string        `json:"depends_on,omitempty"`
}

// mergerConfigEnvelope mirrors node.MergerConfig but replaces the
// PartialFailurePolicy interface field with a discriminated pair JSON can
// actually round-trip; an empty PolicyKind means the zero value
// (AllowCount(0), NewMerger's own default) rather than a policy being set.
type mergerConfigEnvelope struct {
	ID           string           `json:"id"`
	Upstreams    []string         `json:"upstreams"`
	Mode         node.MergerMode  `json:"mode"`
	Aggregator   kernel.Aggregator `json:"aggregator"`
	AllowPartial bool             `json:"allow_partial"`
	PolicyKind   string           `json:"policy_kind,omitempty"`
	PolicyValue  float64          `json:"policy_value,omitempty"`
}

// sourceConfigEnvelope mirrors node.SourceConfig without the live
// DataSource plugin reference, which cannot travel through JSON: a
// cache-loaded plan's source nodes come back with DataSource nil and must
// be rebound by the caller (see exec.PlanCache) before execution.
type sourceConfigEnvelope struct {
	ID        string `json:"id"`
	SourceTag string `json:"source_tag"`
	HAGroup   string `json:"ha_group,omitempty"`
}

// MarshalJSON encodes the NodeSpec as a Kind-tagged envelope so Config's
// concrete type survives the round trip.
func (n NodeSpec) MarshalJSON() ([]byte, error) {
	raw, err := marshalNodeConfig(n.Kind, n.Config)
	if err != nil {
		return nil, fmt.Errorf("plan: marshal node %q (%s): %w", n.ID, n.Kind, err)
	}
	return json.Marshal(nodeSpecEnvelope{
		ID:        n.ID,
		Kind:      n.Kind,
		Config:    raw,
		DependsOn: n.DependsOn,
	})
}

// UnmarshalJSON decodes the envelope, dispatching Config into the concrete
// node.*Config type named by Kind. The switch mirrors exec/factory.go's
// buildNode exactly; the two must be kept in lockstep.
func (n *NodeSpec) UnmarshalJSON(data []byte) error {
	var env nodeSpecEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}

	cfg, err := unmarshalNodeConfig(env.Kind, env.Config)
	if err != nil {
		return fmt.Errorf("plan: unmarshal node %q (%s): %w", env.ID, env.Kind, err)
	}

	n.ID = env.ID
	n.Kind = env.Kind
	n.Config = cfg
	n.DependsOn = env.DependsOn
	return nil
}

func marshalNodeConfig(kind string, cfg any) (json.RawMessage, error) {
	switch kind {
	case "source":
		c, ok := cfg.(node.SourceConfig)
		if !ok {
			return nil, fmt.Errorf("bad source config type %T", cfg)
		}
		return json.Marshal(sourceConfigEnvelope{ID: c.ID, SourceTag: c.SourceTag, HAGroup: c.HAGroup})
	case "filter":
		c, ok := cfg.(node.FilterConfig)
		if !ok {
			return nil, fmt.Errorf("bad filter config type %T", cfg)
		}
		return json.Marshal(c)
	case "groupby":
		c, ok := cfg.(node.GroupByConfig)
		if !ok {
			return nil, fmt.Errorf("bad groupby config type %T", cfg)
		}
		return json.Marshal(c)
	case "downsample":
		c, ok := cfg.(node.DownsampleConfig)
		if !ok {
			return nil, fmt.Errorf("bad downsample config type %T", cfg)
		}
		return json.Marshal(c)
	case "rate":
		c, ok := cfg.(node.RateConfig)
		if !ok {
			return nil, fmt.Errorf("bad rate config type %T", cfg)
		}
		return json.Marshal(c)
	case "merger":
		c, ok := cfg.(node.MergerConfig)
		if !ok {
			return nil, fmt.Errorf("bad merger config type %T", cfg)
		}
		env := mergerConfigEnvelope{
			ID: c.ID, Upstreams: c.Upstreams, Mode: c.Mode,
			Aggregator: c.Aggregator, AllowPartial: c.AllowPartial,
		}
		switch p := c.Policy.(type) {
		case node.AllowCount:
			env.PolicyKind = "count"
			env.PolicyValue = float64(p)
		case node.AllowRatio:
			env.PolicyKind = "ratio"
			env.PolicyValue = float64(p)
		}
		return json.Marshal(env)
	case "join":
		c, ok := cfg.(node.JoinConfig)
		if !ok {
			return nil, fmt.Errorf("bad join config type %T", cfg)
		}
		return json.Marshal(c)
	case "topn":
		c, ok := cfg.(node.TopNConfig)
		if !ok {
			return nil, fmt.Errorf("bad topn config type %T", cfg)
		}
		return json.Marshal(c)
	case "summarizer":
		c, ok := cfg.(node.SummarizerConfig)
		if !ok {
			return nil, fmt.Errorf("bad summarizer config type %T", cfg)
		}
		return json.Marshal(c)
	case "expression":
		c, ok := cfg.(node.ExpressionConfig)
		if !ok {
			return nil, fmt.Errorf("bad expression config type %T", cfg)
		}
		return json.Marshal(c)
	default:
		return nil, fmt.Errorf("unknown node kind %q", kind)
	}
}

func unmarshalNodeConfig(kind string, raw json.RawMessage) (any, error) {
	switch kind {
	case "source":
		var env sourceConfigEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, err
		}
		return node.SourceConfig{ID: env.ID, SourceTag: env.SourceTag, HAGroup: env.HAGroup}, nil
	case "filter":
		var c node.FilterConfig
		err := json.Unmarshal(raw, &c)
		return c, err
	case "groupby":
		var c node.GroupByConfig
		err := json.Unmarshal(raw, &c)
		return c, err
	case "downsample":
		var c node.DownsampleConfig
		err := json.Unmarshal(raw, &c)
		return c, err
	case "rate":
		var c node.RateConfig
		err := json.Unmarshal(raw, &c)
		return c, err
	case "merger":
		var env mergerConfigEnvelope
		if err := json.Unmarshal(raw, &env); err != nil {
			return nil, err
		}
		c := node.MergerConfig{
			ID: env.ID, Upstreams: env.Upstreams, Mode: env.Mode,
			Aggregator: env.Aggregator, AllowPartial: env.AllowPartial,
		}
		switch env.PolicyKind {
		case "count":
			c.Policy = node.AllowCount(env.PolicyValue)
		case "ratio":
			c.Policy = node.AllowRatio(env.PolicyValue)
		}
		return c, nil
	case "join":
		var c node.JoinConfig
		err := json.Unmarshal(raw, &c)
		return c, err
	case "topn":
		var c node.TopNConfig
		err := json.Unmarshal(raw, &c)
		return c, err
	case "summarizer":
		var c node.SummarizerConfig
		err := json.Unmarshal(raw, &c)
		return c, err
	case "expression":
		var c node.ExpressionConfig
		err := json.Unmarshal(raw, &c)
		return c, err
	default:
		return nil, fmt.Errorf("unknown node kind %q", kind)
	}
}
