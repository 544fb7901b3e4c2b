package main

import (
	"fmt"
	"time"

	"github.com/flowmetrics/qpipe/auth/jwt"
	"github.com/flowmetrics/qpipe/config"
	"github.com/flowmetrics/qpipe/database"
	"github.com/flowmetrics/qpipe/discovery"
	"github.com/flowmetrics/qpipe/kafka"
	"github.com/flowmetrics/qpipe/redis"
	"github.com/flowmetrics/qpipe/server"
)

// Config is the query engine's full configuration surface, loaded from
// cmd/queryengine/config.yml and environment overrides via config.LoadConfig.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Server    server.Config    `yaml:"server" mapstructure:"server"`
	Database  database.Config  `yaml:"database" mapstructure:"database"`
	Redis     redis.Config     `yaml:"redis" mapstructure:"redis"`
	Discovery discovery.Config `yaml:"discovery" mapstructure:"discovery"`
	Kafka     kafka.Config     `yaml:"kafka" mapstructure:"kafka"`
	JWT       jwt.Config       `yaml:"jwt" mapstructure:"jwt"`

	// QueryEngine carries the fields unique to this service rather than
	// borrowed from a gokit infrastructure package.
	QueryEngine QueryEngineConfig `yaml:"query_engine" mapstructure:"query_engine"`
}

// QueryEngineConfig configures the planner/executor/sink wiring that has no
// existing gokit analog.
type QueryEngineConfig struct {
	// DiscoveryServiceName is the service name the discoveryresolver watcher
	// watches for data-source instances.
	DiscoveryServiceName string `yaml:"discovery_service_name" mapstructure:"discovery_service_name"`

	// DiscoveryQueryPath is the HTTP path appended to a discovered instance's
	// base URL when building its restsource.Source.
	DiscoveryQueryPath string `yaml:"discovery_query_path" mapstructure:"discovery_query_path"`

	// PlanCacheTTL is how long a built plan.Plan stays valid in Redis,
	// keyed by its fingerprint. ApplyDefaults replaces zero with 5m.
	PlanCacheTTL time.Duration `yaml:"plan_cache_ttl" mapstructure:"plan_cache_ttl"`

	// MaxParallelNodes bounds concurrent node execution per DAG level.
	// ApplyDefaults replaces zero with 8.
	MaxParallelNodes int `yaml:"max_parallel_nodes" mapstructure:"max_parallel_nodes"`

	// CatalogEncryptionKey seals/unseals each catalog.Entry's stored
	// credential via ChaCha20. Required once any catalog entry carries a
	// credential.
	CatalogEncryptionKey string `yaml:"catalog_encryption_key" mapstructure:"catalog_encryption_key"`

	// SSEPath is the path the SSE hub's sink delivers streaming results on.
	SSEPath string `yaml:"sse_path" mapstructure:"sse_path"`

	// KafkaSinkTopic is the topic results are published to when an output
	// names the "kafka" sink.
	KafkaSinkTopic string `yaml:"kafka_sink_topic" mapstructure:"kafka_sink_topic"`

	// InprocSinkCapacity bounds the buffered channel backing the "inproc"
	// sink.
	InprocSinkCapacity int `yaml:"inproc_sink_capacity" mapstructure:"inproc_sink_capacity"`

	// RPCSinkHost/RPCSinkPort, when RPCSinkHost is non-empty, stand up the
	// "rpc" sink against the named gRPC endpoint. RPCSinkMethod is the full
	// method path invoked for each delivered result.
	RPCSinkHost   string `yaml:"rpc_sink_host" mapstructure:"rpc_sink_host"`
	RPCSinkPort   int    `yaml:"rpc_sink_port" mapstructure:"rpc_sink_port"`
	RPCSinkMethod string `yaml:"rpc_sink_method" mapstructure:"rpc_sink_method"`
}

// ApplyDefaults fills in zero-valued fields across every embedded section.
func (c *Config) ApplyDefaults() {
	c.ServiceConfig.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Database.ApplyDefaults()
	c.Redis.ApplyDefaults()
	c.Discovery.ApplyDefaults()
	c.Kafka.ApplyDefaults()
	c.JWT.ApplyDefaults()

	if c.QueryEngine.DiscoveryServiceName == "" {
		c.QueryEngine.DiscoveryServiceName = "tsdb-source"
	}
	if c.QueryEngine.DiscoveryQueryPath == "" {
		c.QueryEngine.DiscoveryQueryPath = "/query"
	}
	if c.QueryEngine.PlanCacheTTL == 0 {
		c.QueryEngine.PlanCacheTTL = 5 * time.Minute
	}
	if c.QueryEngine.MaxParallelNodes == 0 {
		c.QueryEngine.MaxParallelNodes = 8
	}
	if c.QueryEngine.SSEPath == "" {
		c.QueryEngine.SSEPath = "/stream"
	}
	if c.QueryEngine.KafkaSinkTopic == "" {
		c.QueryEngine.KafkaSinkTopic = "tsdb.query.results"
	}
	if c.QueryEngine.InprocSinkCapacity == 0 {
		c.QueryEngine.InprocSinkCapacity = 256
	}
}

// Validate checks every embedded section plus the query-engine-specific
// fields.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server: %w", err)
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	if err := c.Redis.Validate(); err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	if err := c.Discovery.Validate(); err != nil {
		return fmt.Errorf("discovery: %w", err)
	}
	if err := c.Kafka.Validate(); err != nil {
		return fmt.Errorf("kafka: %w", err)
	}
	if err := c.JWT.Validate(); err != nil {
		return fmt.Errorf("jwt: %w", err)
	}
	if c.QueryEngine.MaxParallelNodes < 0 {
		return fmt.Errorf("query_engine.max_parallel_nodes must be non-negative")
	}
	return nil
}
