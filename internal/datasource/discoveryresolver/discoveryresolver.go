// Package discoveryresolver keeps a datasource.Manager's plugin set in sync
// with a discovered service's membership: each healthy instance of the
// watched service becomes one REST-backed datasource.Plugin, registered and
// unregistered as instances come and go, grounded on discovery.Discovery's
// Watch contract (the same one discovery/consul and discovery/static
// implement).
package discoveryresolver

import (
	"context"
	"fmt"

	"github.com/flowmetrics/qpipe/discovery"
	"github.com/flowmetrics/qpipe/httpclient"
	"github.com/flowmetrics/qpipe/httpclient/rest"
	"github.com/flowmetrics/qpipe/internal/datasource"
	"github.com/flowmetrics/qpipe/internal/datasource/restsource"
	"github.com/flowmetrics/qpipe/logger"
)

// Watcher syncs one service's discovered instances into a
// datasource.Manager as REST-backed plugins.
type Watcher struct {
	disc        discovery.Discovery
	manager     *datasource.Manager
	serviceName string
	queryPath   string
	log         *logger.Logger

	registered map[string]bool
}

// New returns a Watcher that registers one restsource.Source per healthy
// instance of serviceName into manager, querying queryPath on each.
func New(disc discovery.Discovery, manager *datasource.Manager, serviceName, queryPath string, log *logger.Logger) *Watcher {
	return &Watcher{
		disc:        disc,
		manager:     manager,
		serviceName: serviceName,
		queryPath:   queryPath,
		log:         log,
		registered:  map[string]bool{},
	}
}

// Sync discovers serviceName once and reconciles the manager's plugin set
// with the returned instances, without starting a long-lived watch.
func (w *Watcher) Sync(ctx context.Context) error {
	instances, err := w.disc.Discover(ctx, w.serviceName)
	if err != nil {
		return fmt.Errorf("discoveryresolver: discover %q: %w", w.serviceName, err)
	}
	w.reconcile(instances)
	return nil
}

// Run starts a long-lived watch on serviceName, reconciling the manager's
// plugin set on every membership change until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	ch, err := w.disc.Watch(ctx, w.serviceName)
	if err != nil {
		return fmt.Errorf("discoveryresolver: watch %q: %w", w.serviceName, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case instances, ok := <-ch:
			if !ok {
				return nil
			}
			w.reconcile(instances)
		}
	}
}

func (w *Watcher) reconcile(instances []discovery.ServiceInstance) {
	seen := make(map[string]bool, len(instances))
	for _, inst := range instances {
		if inst.Health != discovery.HealthHealthy {
			continue
		}
		seen[inst.ID] = true
		if w.registered[inst.ID] {
			continue
		}
		if err := w.register(inst); err != nil {
			if w.log != nil {
				w.log.Warn("discoveryresolver: failed to register instance", map[string]interface{}{
					"instance": inst.ID, "error": err.Error(),
				})
			}
			continue
		}
		w.registered[inst.ID] = true
	}

	for id := range w.registered {
		if !seen[id] {
			w.manager.Unregister(id)
			delete(w.registered, id)
		}
	}
}

func (w *Watcher) register(inst discovery.ServiceInstance) error {
	baseURL := fmt.Sprintf("%s://%s:%d", protocolOrDefault(inst.Protocol), inst.Address, inst.Port)

	client, err := rest.New(httpclient.Config{BaseURL: baseURL})
	if err != nil {
		return fmt.Errorf("build rest client for %s: %w", inst.ID, err)
	}

	binding := datasource.Binding{
		MetricPattern: inst.Metadata["metric_pattern"],
		HAGroup:       inst.Metadata["ha_group"],
		Shard:         inst.Metadata["shard"] == "true",
	}

	w.manager.Register(inst.ID, restsource.New(inst.ID, binding, client, w.queryPath))
	return nil
}

func protocolOrDefault(protocol string) string {
	if protocol == "" {
		return "http"
	}
	return protocol
}
