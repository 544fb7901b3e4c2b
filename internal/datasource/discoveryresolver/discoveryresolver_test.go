package discoveryresolver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"testing"

	"github.com/flowmetrics/qpipe/discovery"
	"github.com/flowmetrics/qpipe/discovery/static"
	"github.com/flowmetrics/qpipe/internal/datasource"
)

func splitHostPort(t *testing.T, rawURL string) (string, int) {
	t.Helper()
	u, err := url.Parse(rawURL)
	if err != nil {
		t.Fatalf("parse url: %v", err)
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		t.Fatalf("parse port: %v", err)
	}
	return strings.Split(u.Host, ":")[0], port
}

func TestSyncRegistersHealthyInstances(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"series":[]}`))
	}))
	defer srv.Close()
	host, port := splitHostPort(t, srv.URL)

	disc := static.NewProvider([]discovery.StaticEndpoint{
		{
			Name:     "ts-backend",
			Address:  host,
			Port:     port,
			Protocol: "http",
			Metadata: map[string]string{"metric_pattern": "cpu.*"},
			Healthy:  true,
		},
	})

	manager := datasource.NewManager(nil)
	w := New(disc, manager, "ts-backend", "/api/v1/query", nil)

	if err := w.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	names := manager.Names()
	if len(names) != 1 {
		t.Fatalf("expected 1 registered plugin, got %v", names)
	}
}

func TestReconcileDeregistersMissingInstances(t *testing.T) {
	manager := datasource.NewManager(nil)
	w := &Watcher{manager: manager, registered: map[string]bool{}}

	w.reconcile([]discovery.ServiceInstance{
		{ID: "inst-1", Address: "127.0.0.1", Port: 9999, Health: discovery.HealthHealthy},
	})
	if len(manager.Names()) != 1 {
		t.Fatalf("expected 1 registered plugin after first reconcile, got %v", manager.Names())
	}

	w.reconcile(nil)
	if len(manager.Names()) != 0 {
		t.Fatalf("expected 0 registered plugins after instance disappears, got %v", manager.Names())
	}
}
