package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/rs/zerolog/log"
)

// Environment represents different deployment environments
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// Storage holds the state-store connection settings (spec.md §6 "storage").
type Storage struct {
	DSN          string `envconfig:"STORAGE_DSN" default:"fabric:fabric@tcp(127.0.0.1:3306)/fabric?parseTime=true&multiStatements=true"`
	MaxOpenConns int    `envconfig:"STORAGE_MAX_OPEN_CONNS" default:"8"`
	MaxIdleConns int    `envconfig:"STORAGE_MAX_IDLE_CONNS" default:"4"`
}

// ManagedServers holds the single operational account fabricd uses to
// connect to every server it manages (source system §2: one account
// across the whole farm, distinct from the state store's own DSN above).
type ManagedServers struct {
	User     string `envconfig:"MANAGED_SERVERS_USER" default:"fabric"`
	Password string `envconfig:"MANAGED_SERVERS_PASSWORD" default:"fabric"`
}

// XMLRPC holds the bind address for the out-of-scope XML-RPC wire server;
// only whether it is enabled and where it binds is in scope here.
type XMLRPC struct {
	Address string `envconfig:"PROTOCOL_XMLRPC_ADDRESS" default:":32274"`
	Enabled bool   `envconfig:"PROTOCOL_XMLRPC_ENABLED" default:"false"`
}

// MySQLRPC holds the bind address for the out-of-scope MySQL-wire-protocol server.
type MySQLRPC struct {
	Address string `envconfig:"PROTOCOL_MYSQL_ADDRESS" default:":32275"`
	Enabled bool   `envconfig:"PROTOCOL_MYSQL_ENABLED" default:"false"`
}

// HTTPGateway is the in-scope boundary layer implementing the call/response
// wire contract (spec.md §6) over HTTP+JSON.
type HTTPGateway struct {
	Address string `envconfig:"PROTOCOL_HTTP_ADDRESS" default:":8080"`
}

// Executor controls the procedure executor's worker pool (spec.md §4.6).
type Executor struct {
	WorkerCount int `envconfig:"EXECUTOR_WORKER_COUNT" default:"1"`
}

// FailureTracking controls the failure detector (spec.md §4.11).
type FailureTracking struct {
	CheckInterval  time.Duration `envconfig:"FAILURE_TRACKING_CHECK_INTERVAL" default:"3s"`
	CheckTimeout   time.Duration `envconfig:"FAILURE_TRACKING_CHECK_TIMEOUT" default:"2s"`
	Window         time.Duration `envconfig:"FAILURE_TRACKING_WINDOW" default:"60s"`
	NNotifications int           `envconfig:"FAILURE_TRACKING_N_NOTIFICATIONS" default:"3"`
	NReporters     int           `envconfig:"FAILURE_TRACKING_N_REPORTERS" default:"2"`
}

// Logging holds the URL-addressed logging target from spec.md §6
// (file:///..., syslog://host:port, syslog:///dev/log).
type Logging struct {
	Target string `envconfig:"LOGGING_TARGET" default:"file:///dev/stdout"`
	Level  string `envconfig:"LOGGING_LEVEL" default:"info"`
}

// Config holds the configuration for the fabricd daemon.
// Environment variables are automatically parsed from the FABRIC_ prefix.
type Config struct {
	Environment Environment `envconfig:"ENVIRONMENT" default:"development"`
	FabricUUID  string      `envconfig:"FABRIC_UUID" default:""`
	TTL         int         `envconfig:"TTL" default:"1"`

	Storage         Storage
	ManagedServers  ManagedServers
	XMLRPC          XMLRPC
	MySQLRPC        MySQLRPC
	HTTPGateway     HTTPGateway
	Executor        Executor
	FailureTracking FailureTracking
	Logging         Logging
}

// ResolveDefaults validates the loaded configuration.
func (c *Config) ResolveDefaults() error {
	switch c.Environment {
	case EnvDevelopment, EnvTesting, EnvProduction:
	default:
		return fmt.Errorf("unsupported ENVIRONMENT: %s", c.Environment)
	}

	if c.Executor.WorkerCount < 1 {
		return fmt.Errorf("unsupported EXECUTOR_WORKER_COUNT: %d", c.Executor.WorkerCount)
	}
	if c.TTL < 1 {
		return fmt.Errorf("unsupported TTL: %d", c.TTL)
	}
	if c.FailureTracking.NReporters < 1 {
		return fmt.Errorf("unsupported FAILURE_TRACKING_N_REPORTERS: %d", c.FailureTracking.NReporters)
	}
	return nil
}

// New creates a new Config by parsing environment variables.
// Environment variables should be prefixed with FABRIC_.
// Example: FABRIC_STORAGE_DSN, FABRIC_PROTOCOL_HTTP_ADDRESS.
func New() (*Config, error) {
	var cfg Config

	if err := envconfig.Process("FABRIC", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.ResolveDefaults(); err != nil {
		return nil, err
	}

	log.Info().
		Str("environment", string(cfg.Environment)).
		Str("storage_dsn_present", presentFlag(cfg.Storage.DSN)).
		Int("executor_workers", cfg.Executor.WorkerCount).
		Str("http_gateway_addr", cfg.HTTPGateway.Address).
		Dur("failure_check_interval", cfg.FailureTracking.CheckInterval).
		Int("ttl", cfg.TTL).
		Msg("Configuration loaded")

	return &cfg, nil
}

func presentFlag(s string) string {
	if s == "" {
		return "false"
	}
	return "true"
}

// NewForTesting creates a config specifically for testing.
func NewForTesting() *Config {
	cfg := &Config{
		Environment: EnvTesting,
		FabricUUID:  "00000000-0000-0000-0000-000000000000",
		TTL:         1,
	}

	cfg.Storage.DSN = "fabric:fabric@tcp(127.0.0.1:3306)/fabric_test?parseTime=true"
	cfg.Storage.MaxOpenConns = 4
	cfg.Storage.MaxIdleConns = 2

	cfg.ManagedServers.User = "fabric"
	cfg.ManagedServers.Password = "fabric"

	cfg.Executor.WorkerCount = 1

	cfg.FailureTracking.CheckInterval = 50 * time.Millisecond
	cfg.FailureTracking.CheckTimeout = 25 * time.Millisecond
	cfg.FailureTracking.Window = time.Second
	cfg.FailureTracking.NNotifications = 3
	cfg.FailureTracking.NReporters = 2

	cfg.HTTPGateway.Address = ":0"
	cfg.Logging.Target = "file:///dev/stdout"
	cfg.Logging.Level = "debug"

	return cfg
}

// IsTesting returns true if the environment is set to testing
func (c *Config) IsTesting() bool {
	return c.Environment == EnvTesting
}

// IsProduction returns true if the environment is set to production
func (c *Config) IsProduction() bool {
	return c.Environment == EnvProduction
}
