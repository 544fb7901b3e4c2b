package exec

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmetrics/qpipe/internal/tsquery/node"
	"github.com/flowmetrics/qpipe/internal/tsquery/plan"
	"github.com/flowmetrics/qpipe/redis"
)

// SourceBinder resolves a plan.NodeSpec's SourceTag back to the live
// plugin instance that serves it. A cached plan's Source nodes come back
// from Redis without their DataSource reference (node.DataSource isn't
// JSON-representable — it's a live connection, not data), so a cache hit
// must rebind each one through a SourceBinder before the plan is
// executable. datasource.Manager implements this directly via its Get
// method.
type SourceBinder interface {
	Get(name string) (node.DataSource, bool)
}

// PlanCache memoizes a built Plan by its fingerprint in Redis, so that two
// callers submitting the same query (same fingerprint) within ttl skip the
// planner's validate/expand/push-down/compose pipeline entirely. A cache
// miss or a Redis error falls through to build, never fails the request.
type PlanCache struct {
	store  *redis.TypedStore[plan.Plan]
	ttl    time.Duration
	binder SourceBinder
}

// NewPlanCache returns a PlanCache storing plans under keyPrefix with the
// given TTL (0 means no expiration), rebinding Source nodes on a cache hit
// through binder.
func NewPlanCache(client *redis.Client, keyPrefix string, ttl time.Duration, binder SourceBinder) *PlanCache {
	return &PlanCache{
		store:  redis.NewTypedStore[plan.Plan](client, keyPrefix),
		ttl:    ttl,
		binder: binder,
	}
}

// Resolve returns the cached plan for fingerprint if present, otherwise
// calls build, caches its result, and returns it. A cache hit whose Source
// nodes fail to rebind (the named plugin is no longer registered) is
// treated as a miss rather than an error, falling through to build.
func (c *PlanCache) Resolve(ctx context.Context, fingerprint string, build func() (*plan.Plan, error)) (*plan.Plan, error) {
	if cached, err := c.store.Load(ctx, fingerprint); err == nil && cached != nil {
		if rebErr := c.rebindSources(cached); rebErr == nil {
			return cached, nil
		}
	}

	p, err := build()
	if err != nil {
		return nil, err
	}

	_ = c.store.Save(ctx, fingerprint, p, c.ttl)
	return p, nil
}

// rebindSources restores each Source node's DataSource reference, dropped
// on the way through JSON, from the configured binder.
func (c *PlanCache) rebindSources(p *plan.Plan) error {
	for i, spec := range p.Nodes {
		if spec.Kind != "source" {
			continue
		}
		cfg, ok := spec.Config.(node.SourceConfig)
		if !ok {
			return fmt.Errorf("plancache: node %s: bad source config type %T", spec.ID, spec.Config)
		}
		if c.binder == nil {
			return fmt.Errorf("plancache: node %s: no source binder configured", spec.ID)
		}
		ds, ok := c.binder.Get(cfg.SourceTag)
		if !ok {
			return fmt.Errorf("plancache: node %s: source tag %q no longer registered", spec.ID, cfg.SourceTag)
		}
		cfg.DataSource = ds
		p.Nodes[i].Config = cfg
	}
	return nil
}
