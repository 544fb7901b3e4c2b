package exec

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"github.com/flowmetrics/qpipe/internal/tsquery/node"
	"github.com/flowmetrics/qpipe/internal/tsquery/plan"
	"github.com/flowmetrics/qpipe/logger"
	"github.com/flowmetrics/qpipe/redis"
)

type fakeBinder struct {
	plugins map[string]node.DataSource
}

func (b *fakeBinder) Get(name string) (node.DataSource, bool) {
	p, ok := b.plugins[name]
	return p, ok
}

func newTestRedisClient(t *testing.T) *redis.Client {
	t.Helper()
	mini, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	t.Cleanup(func() { mini.Close() })

	cfg := redis.Config{Enabled: true, Addr: mini.Addr()}
	cfg.ApplyDefaults()

	client, err := redis.New(cfg, logger.NewDefault("plancache-test"))
	if err != nil {
		t.Fatalf("new redis client: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func samplePlan() *plan.Plan {
	return &plan.Plan{
		Fingerprint: "fp-1",
		Nodes: []plan.NodeSpec{
			{
				ID:   "m1.src.s1",
				Kind: "source",
				Config: node.SourceConfig{
					ID:        "m1.src.s1",
					SourceTag: "s1",
					DataSource: &fixedSource{series: nil},
					HAGroup:   "ha1",
				},
			},
			{
				ID:        "m1.filter",
				Kind:      "filter",
				DependsOn: []string{"m1.src.s1"},
				Config: node.FilterConfig{
					ID:       "m1.filter",
					Upstream: "m1.src.s1",
					Predicate: node.Predicate{
						Leaf: &node.TagPredicate{Key: "host", Op: node.FilterLiteral, Value: "web-01"},
					},
				},
			},
			{
				ID:        "m1.merger",
				Kind:      "merger",
				DependsOn: []string{"m1.filter"},
				Config: node.MergerConfig{
					ID:        "m1.merger",
					Upstreams: []string{"m1.filter"},
					Mode:      node.MergerHA,
					Policy:    node.AllowRatio(0.5),
				},
			},
		},
		Outputs: map[string]string{"inproc": "m1.merger"},
	}
}

func TestPlanCacheRoundTripsAndRebindsSource(t *testing.T) {
	client := newTestRedisClient(t)
	src := &fixedSource{series: nil}
	binder := &fakeBinder{plugins: map[string]node.DataSource{"s1": src}}
	cache := NewPlanCache(client, "plancache", 0, binder)

	built := 0
	build := func() (*plan.Plan, error) {
		built++
		return samplePlan(), nil
	}

	ctx := context.Background()
	first, err := cache.Resolve(ctx, "fp-1", build)
	if err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if built != 1 {
		t.Fatalf("expected build to run once, ran %d times", built)
	}

	second, err := cache.Resolve(ctx, "fp-1", build)
	if err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if built != 1 {
		t.Fatalf("expected build to stay at 1 (cache hit), ran %d times", built)
	}

	srcCfg, ok := second.Nodes[0].Config.(node.SourceConfig)
	if !ok {
		t.Fatalf("expected SourceConfig, got %T", second.Nodes[0].Config)
	}
	if srcCfg.DataSource != src {
		t.Fatalf("expected rebound DataSource to be the registered plugin")
	}
	if srcCfg.SourceTag != "s1" || srcCfg.HAGroup != "ha1" {
		t.Fatalf("unexpected source config after round trip: %+v", srcCfg)
	}

	filterCfg, ok := second.Nodes[1].Config.(node.FilterConfig)
	if !ok {
		t.Fatalf("expected FilterConfig, got %T", second.Nodes[1].Config)
	}
	if filterCfg.Predicate.Leaf == nil || filterCfg.Predicate.Leaf.Value != "web-01" {
		t.Fatalf("predicate did not round trip: %+v", filterCfg.Predicate)
	}

	mergerCfg, ok := second.Nodes[2].Config.(node.MergerConfig)
	if !ok {
		t.Fatalf("expected MergerConfig, got %T", second.Nodes[2].Config)
	}
	ratio, ok := mergerCfg.Policy.(node.AllowRatio)
	if !ok || float64(ratio) != 0.5 {
		t.Fatalf("merger policy did not round trip: %#v", mergerCfg.Policy)
	}

	_ = first
}

func TestPlanCacheFallsThroughWhenSourceCannotRebind(t *testing.T) {
	client := newTestRedisClient(t)
	binder := &fakeBinder{plugins: map[string]node.DataSource{}}
	cache := NewPlanCache(client, "plancache", 0, binder)

	ctx := context.Background()
	built := 0
	build := func() (*plan.Plan, error) {
		built++
		return samplePlan(), nil
	}

	if _, err := cache.Resolve(ctx, "fp-2", build); err != nil {
		t.Fatalf("first resolve: %v", err)
	}
	if _, err := cache.Resolve(ctx, "fp-2", build); err != nil {
		t.Fatalf("second resolve: %v", err)
	}
	if built != 2 {
		t.Fatalf("expected build to run on both calls since the plugin never registers, ran %d times", built)
	}
}
