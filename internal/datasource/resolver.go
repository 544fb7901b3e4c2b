package datasource

import (
	"context"
	"fmt"
	"sync"

	"github.com/flowmetrics/qpipe/internal/tsquery/node"
	"github.com/flowmetrics/qpipe/internal/tsquery/plan"
	"github.com/flowmetrics/qpipe/logger"
	"github.com/flowmetrics/qpipe/provider"
)

// Manager holds every initialized Plugin instance. Storage is
// provider.Registry[Plugin] (the same factory/instance cache
// provider.Manager itself is built on) rather than a hand-rolled map,
// because this Manager needs provider.Registry.List's sorted-name
// enumeration and provider.Registry.Set's instance cache but NOT
// provider.Manager's single-winner Selector — the planner's
// merger-insertion step needs every matching replica/shard, not one
// selected provider.
type Manager struct {
	mu       sync.RWMutex
	registry *provider.Registry[Plugin]
	log      *logger.Logger
}

// NewManager returns an empty Manager.
func NewManager(log *logger.Logger) *Manager {
	return &Manager{registry: provider.NewRegistry[Plugin](), log: log}
}

// Register adds an initialized plugin instance under name, wrapped with a
// dedicated circuit breaker so a failing backend degrades to fast failures
// instead of repeatedly blocking query execution on it.
func (m *Manager) Register(name string, p Plugin) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry.Set(name, withCircuitBreaker(name, p))
	if m.log != nil {
		m.log.Info("data source plugin registered", map[string]interface{}{"plugin": name})
	}
}

// Get returns the registered plugin instance named name, if any, as a
// node.DataSource. Used to rebind a Source node's DataSource reference
// after a plan comes back from a cache that cannot carry the live plugin
// instance through its wire format (see exec.PlanCache's SourceBinder).
func (m *Manager) Get(name string) (node.DataSource, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.Get(name)
}

// Unregister removes a plugin instance. Plugins implementing
// provider.Closeable are closed before being dropped, the same lifecycle
// contract provider.Manager honors during shutdown.
func (m *Manager) Unregister(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.registry.Get(name); ok {
		if closeable, ok := p.(provider.Closeable); ok {
			_ = closeable.Close(context.Background())
		}
	}
	m.registry.Delete(name)
}

// Names returns the sorted names of every registered plugin.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.Instances()
}

// Resolve implements plan.SourceResolver: every registered, available
// plugin whose Binding matches metric becomes one plan.ResolvedSource,
// tagged with that plugin's HA group/shard membership.
func (m *Manager) Resolve(metric string, tags map[string]string) ([]plan.ResolvedSource, error) {
	m.mu.RLock()
	names := m.registry.Instances()
	ctx := context.Background()
	var out []plan.ResolvedSource
	for _, name := range names {
		p, ok := m.registry.Get(name)
		if !ok || p == nil {
			continue
		}
		if !p.Binding().Matches(metric) {
			continue
		}
		if !p.IsAvailable(ctx) {
			continue
		}
		b := p.Binding()
		out = append(out, plan.ResolvedSource{
			SourceTag:  name,
			DataSource: p,
			HAGroup:    b.HAGroup,
			Shard:      b.Shard,
		})
	}
	m.mu.RUnlock()
	if len(out) == 0 {
		return nil, fmt.Errorf("datasource: no available plugin binds metric %q", metric)
	}
	return out, nil
}
