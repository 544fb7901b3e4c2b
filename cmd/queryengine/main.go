// Command queryengine serves the declarative time-series query API: submit
// a query, the planner turns it into a DAG, the executor runs the DAG
// against registered data-source plugins, and the result is delivered to
// the sink(s) the query named.
package main

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/flowmetrics/qpipe/auth"
	"github.com/flowmetrics/qpipe/auth/authctx"
	"github.com/flowmetrics/qpipe/auth/jwt"
	"github.com/flowmetrics/qpipe/authz"
	"github.com/flowmetrics/qpipe/bootstrap"
	"github.com/flowmetrics/qpipe/component"
	"github.com/flowmetrics/qpipe/config"
	"github.com/flowmetrics/qpipe/database"
	"github.com/flowmetrics/qpipe/discovery"
	_ "github.com/flowmetrics/qpipe/discovery/consul"
	_ "github.com/flowmetrics/qpipe/discovery/static"
	"github.com/flowmetrics/qpipe/encryption"
	qerrors "github.com/flowmetrics/qpipe/errors"
	grpccfg "github.com/flowmetrics/qpipe/grpc"
	grpcclient "github.com/flowmetrics/qpipe/grpc/client"
	"github.com/flowmetrics/qpipe/httpclient"
	"github.com/flowmetrics/qpipe/httpclient/rest"
	"github.com/flowmetrics/qpipe/kafka"
	"github.com/flowmetrics/qpipe/kafka/producer"
	"github.com/flowmetrics/qpipe/logger"
	"github.com/flowmetrics/qpipe/redis"
	"github.com/flowmetrics/qpipe/server"
	"github.com/flowmetrics/qpipe/server/endpoint"
	"github.com/flowmetrics/qpipe/server/middleware"
	"github.com/flowmetrics/qpipe/sse"

	"github.com/flowmetrics/qpipe/internal/datasource"
	"github.com/flowmetrics/qpipe/internal/datasource/catalog"
	"github.com/flowmetrics/qpipe/internal/datasource/discoveryresolver"
	"github.com/flowmetrics/qpipe/internal/datasource/restsource"
	"github.com/flowmetrics/qpipe/internal/tsquery/exec"
	"github.com/flowmetrics/qpipe/internal/tsquery/plan"
	"github.com/flowmetrics/qpipe/internal/tsquery/sink"
	"github.com/flowmetrics/qpipe/internal/tsquery/sink/inprocsink"
	"github.com/flowmetrics/qpipe/internal/tsquery/sink/kafkasink"
	"github.com/flowmetrics/qpipe/internal/tsquery/sink/rpcsink"
	"github.com/flowmetrics/qpipe/internal/tsquery/sink/ssesink"
)

func main() {
	var cfg Config
	if err := config.LoadConfig("queryengine", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	app, err := bootstrap.NewApp[*Config](&cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "bootstrap: %v\n", err)
		os.Exit(1)
	}

	dbComponent := database.NewComponent(cfg.Database, app.Logger).
		WithAutoMigrate(&catalog.Entry{})
	redisComponent := redis.NewComponent(cfg.Redis, app.Logger)
	discoveryComponent := discovery.NewComponent(cfg.Discovery, nil, app.Logger)
	sseComponent := sse.NewComponent(cfg.QueryEngine.SSEPath)
	httpServer := server.New(&cfg.Server, app.Logger)
	serverComponent := server.NewComponent(httpServer)

	for _, c := range []component.Component{
		dbComponent, redisComponent, discoveryComponent, sseComponent, serverComponent,
	} {
		if err := app.RegisterComponent(c); err != nil {
			fmt.Fprintf(os.Stderr, "register %s: %v\n", c.Name(), err)
			os.Exit(1)
		}
	}

	app.OnConfigure(func(ctx context.Context, a *bootstrap.App[*Config]) error {
		manager := datasource.NewManager(a.Logger)

		var cipher *encryption.ChaCha20Service
		if cfg.QueryEngine.CatalogEncryptionKey != "" {
			c, err := encryption.NewChaCha20(cfg.QueryEngine.CatalogEncryptionKey)
			if err != nil {
				return fmt.Errorf("catalog cipher: %w", err)
			}
			cipher = c
		}
		catalogStore := catalog.NewStore(dbComponent.DB(), cipher)
		if err := catalogStore.Migrate(); err != nil {
			return fmt.Errorf("catalog migrate: %w", err)
		}
		if err := loadCatalogEntries(ctx, catalogStore, manager, cfg.QueryEngine.DiscoveryQueryPath, a.Logger); err != nil {
			return fmt.Errorf("catalog load: %w", err)
		}

		watcher := discoveryresolver.New(
			discoveryComponent.Discovery(),
			manager,
			cfg.QueryEngine.DiscoveryServiceName,
			cfg.QueryEngine.DiscoveryQueryPath,
			a.Logger,
		)
		if err := watcher.Sync(ctx); err != nil {
			a.Logger.Warn("initial discovery sync failed", map[string]interface{}{"error": err.Error()})
		}
		go func() {
			if err := watcher.Run(context.Background()); err != nil {
				a.Logger.Error("discovery watcher stopped", map[string]interface{}{"error": err.Error()})
			}
		}()

		builder := plan.NewBuilder(manager)
		planCache := exec.NewPlanCache(redisComponent.Client(), "qpipe:plan:", cfg.QueryEngine.PlanCacheTTL, manager)
		executor := &exec.Executor{MaxParallel: cfg.QueryEngine.MaxParallelNodes, Log: a.Logger}

		sinks := sink.NewRegistry()
		sinks.Register("inproc", inprocsink.New("inproc", cfg.QueryEngine.InprocSinkCapacity))
		sinks.Register("sse", ssesink.New("sse", sseComponent.Hub(), cfg.QueryEngine.SSEPath))

		if cfg.Kafka.Enabled {
			if err := registerKafkaSink(sinks, cfg.Kafka, cfg.QueryEngine.KafkaSinkTopic, a.Logger); err != nil {
				return fmt.Errorf("kafka sink: %w", err)
			}
		}
		if cfg.QueryEngine.RPCSinkHost != "" {
			if err := registerRPCSink(sinks, cfg.QueryEngine, a.Logger); err != nil {
				return fmt.Errorf("rpc sink: %w", err)
			}
		}

		jwtSvc, err := jwt.NewService[*Claims](&cfg.JWT, newEmptyClaims)
		if err != nil {
			return fmt.Errorf("jwt service: %w", err)
		}

		mountRoutes(a, httpServer, jwtSvc, builder, planCache, executor, sinks, catalogStore)
		return nil
	})

	if err := app.Run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "run: %v\n", err)
		os.Exit(1)
	}
}

// loadCatalogEntries registers every persisted catalog row as a REST data
// source, ahead of whatever discoveryresolver later adds or removes.
func loadCatalogEntries(ctx context.Context, store *catalog.Store, manager *datasource.Manager, queryPath string, log *logger.Logger) error {
	entries, err := store.List(ctx)
	if err != nil {
		return err
	}
	for _, e := range entries {
		client, err := rest.New(httpclient.Config{BaseURL: e.Entry.Endpoint})
		if err != nil {
			log.Warn("skipping catalog entry with bad endpoint", map[string]interface{}{
				"name": e.Entry.Name, "error": err.Error(),
			})
			continue
		}
		binding := datasource.Binding{MetricPattern: e.Entry.MetricPattern, HAGroup: e.Entry.HAGroup, Shard: e.Entry.Shard}
		manager.Register(e.Entry.Name, restsource.New(e.Entry.Name, binding, client, queryPath))
	}
	return nil
}

func registerKafkaSink(sinks *sink.Registry, cfg kafka.Config, topic string, log *logger.Logger) error {
	prod, err := producer.NewLazyProducer(cfg, log)
	if err != nil {
		return err
	}
	sinks.Register("kafka", kafkasink.New("kafka", prod, topic))
	return nil
}

func registerRPCSink(sinks *sink.Registry, qe QueryEngineConfig, log *logger.Logger) error {
	conn, err := grpcclient.NewClient(grpccfg.Config{
		Name:    "queryengine-rpc-sink",
		Host:    qe.RPCSinkHost,
		Port:    qe.RPCSinkPort,
		Enabled: true,
	}, log)
	if err != nil {
		return err
	}
	sinks.Register("rpc", rpcsink.New("rpc", conn, qe.RPCSinkMethod))
	return nil
}

// mountRoutes applies the standard middleware/endpoint stack and adds the
// query-submission route behind bearer-JWT auth, plus a catalog-management
// route that requires the "catalog:manage" permission, which only the JWT
// role "admin" holds (via its "catalog:*" grant).
func mountRoutes(
	a *bootstrap.App[*Config],
	srv *server.Server,
	jwtSvc *jwt.Service[*Claims],
	builder *plan.Builder,
	planCache *exec.PlanCache,
	executor *exec.Executor,
	sinks *sink.Registry,
	catalogStore *catalog.Store,
) {
	checker := endpoint.HealthChecker(a.Components.HealthAll)
	srv.ApplyDefaults(a.Name, checker)

	engine := srv.GinEngine()
	engine.GET("/version", endpoint.Version())
	engine.GET("/live", endpoint.Liveness(a.Name))
	engine.GET("/ready", endpoint.Readiness(a.Name, checker))

	validator := auth.NewValidator(jwtSvc.ValidatorFunc())

	queries := engine.Group("/v1/queries")
	queries.Use(middleware.Auth(validator))
	queries.POST("", submitQueryHandler(builder, planCache, executor, sinks, a.Logger))

	// catalogChecker grants catalog management to the "admin" role only;
	// every other role (including an absent claim) is denied.
	catalogChecker := authz.NewMapChecker(map[string][]string{
		"admin": {"catalog:*"},
	})
	roleSubject := func(c *gin.Context) string {
		claims, ok := authctx.Get[*Claims](c.Request.Context())
		if !ok {
			return ""
		}
		return claims.Role
	}

	catalogRoutes := engine.Group("/v1/catalog")
	catalogRoutes.Use(middleware.Auth(validator))
	catalogRoutes.Use(middleware.RequirePermission(catalogChecker, "catalog:manage", roleSubject))
	catalogRoutes.GET("", listCatalogHandler(catalogStore))
	catalogRoutes.PUT("/:name", putCatalogHandler(catalogStore))
}

func submitQueryHandler(builder *plan.Builder, planCache *exec.PlanCache, executor *exec.Executor, sinks *sink.Registry, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		var q plan.TimeSeriesQuery
		dec := json.NewDecoder(c.Request.Body)
		dec.DisallowUnknownFields()
		if err := dec.Decode(&q); err != nil {
			writeAppError(c, qerrors.ParseError(err.Error()))
			return
		}

		ctx := c.Request.Context()
		fp := plan.Fingerprint(&q)
		p, err := planCache.Resolve(ctx, fp, func() (*plan.Plan, error) {
			return builder.Build(&q)
		})
		if err != nil {
			writeErr(c, err)
			return
		}

		outcome, err := executor.Execute(ctx, &q, p)
		if err != nil {
			writeErr(c, err)
			return
		}

		for sinkName, result := range outcome.Outputs {
			env := sink.Envelope{Sink: sinkName, Result: result, Warnings: outcome.Warnings}
			if err := sinks.Deliver(ctx, env); err != nil {
				log.Warn("sink delivery failed", map[string]interface{}{
					"sink": sinkName, "error": err.Error(),
				})
			}
		}

		c.JSON(http.StatusOK, gin.H{
			"fingerprint": p.Fingerprint,
			"warnings":    outcome.Warnings,
		})
	}
}

// listCatalogHandler returns every enabled catalog entry, credentials
// redacted (the catalog API surfaces bindings and endpoints, never secrets).
func listCatalogHandler(store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		entries, err := store.List(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		out := make([]gin.H, 0, len(entries))
		for _, e := range entries {
			out = append(out, gin.H{
				"name":           e.Entry.Name,
				"metric_pattern": e.Entry.MetricPattern,
				"ha_group":       e.Entry.HAGroup,
				"shard":          e.Entry.Shard,
				"kind":           e.Entry.Kind,
				"endpoint":       e.Entry.Endpoint,
				"enabled":        e.Entry.Enabled,
			})
		}
		c.JSON(http.StatusOK, gin.H{"entries": out})
	}
}

type putCatalogRequest struct {
	MetricPattern string `json:"metric_pattern"`
	HAGroup       string `json:"ha_group"`
	Shard         bool   `json:"shard"`
	Kind          string `json:"kind" binding:"required"`
	Endpoint      string `json:"endpoint" binding:"required"`
	Credential    string `json:"credential"`
	Enabled       bool   `json:"enabled"`
}

// putCatalogHandler inserts or updates the named catalog entry, sealing any
// supplied credential before it is persisted.
func putCatalogHandler(store *catalog.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req putCatalogRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			writeAppError(c, qerrors.ParseError(err.Error()))
			return
		}
		entry := catalog.Entry{
			Name:          c.Param("name"),
			MetricPattern: req.MetricPattern,
			HAGroup:       req.HAGroup,
			Shard:         req.Shard,
			Kind:          req.Kind,
			Endpoint:      req.Endpoint,
			Enabled:       req.Enabled,
		}
		if err := store.Put(c.Request.Context(), entry, req.Credential); err != nil {
			writeErr(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// writeErr maps err to an HTTP response, using AppError's status/code when
// present and falling back to a generic internal error otherwise.
func writeErr(c *gin.Context, err error) {
	var appErr *qerrors.AppError
	if stderrors.As(err, &appErr) {
		writeAppError(c, appErr)
		return
	}
	writeAppError(c, qerrors.InternalQueryEngineError(err))
}

func writeAppError(c *gin.Context, err *qerrors.AppError) {
	c.JSON(err.HTTPStatus, gin.H{
		"code":      err.Code,
		"message":   err.Message,
		"retryable": err.Retryable,
		"details":   err.Details,
	})
}
