// Package config holds the process configuration of the Sage plugin and the
// connection settings the host sends on Connect.
//
// The process configuration is organized into logical sections:
//   - Server: RPC listen address
//   - Backend: dispatch (COM automation) or sql (ODBC bridge / database driver)
//   - Write: commit SLA and discovery fan-out
//   - Observability: logging, metrics and tracing
//
// Example usage:
//
//	cfg := config.NewPluginConfig()
//	cfg.Backend.Kind = config.BackendSQL
//	cfg.Backend.Driver = "mysql"
//	cfg.Backend.DSN = "sage:secret@tcp(localhost:3306)/mas90"
//
//	if err := cfg.Validate(); err != nil {
//	    log.Fatal(err)
//	}
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

const (
	// BackendDispatch reaches Sage through its COM automation layer
	BackendDispatch = "dispatch"
	// BackendSQL reaches Sage tables through a database/sql driver
	BackendSQL = "sql"
)

// PluginConfig is the process configuration of the plugin
type PluginConfig struct {
	// Server settings for the RPC listener
	Server ServerConfig `yaml:"server" json:"server" mapstructure:"server"`

	// Backend selects and configures the store backend
	Backend BackendConfig `yaml:"backend" json:"backend" mapstructure:"backend"`

	// ModulesFile optionally points at a YAML file of extra module configs
	ModulesFile string `yaml:"modules_file" json:"modules_file" mapstructure:"modules_file"`

	// Write settings for discovery and write streams
	Write WriteConfig `yaml:"write" json:"write" mapstructure:"write"`

	// Observability settings for monitoring and debugging
	Observability ObservabilityConfig `yaml:"observability" json:"observability" mapstructure:"observability"`
}

// ServerConfig contains the RPC listener settings
type ServerConfig struct {
	// Address is the host:port the gRPC server listens on
	Address string `yaml:"address" json:"address" mapstructure:"address" validate:"required"`
}

// BackendConfig selects the store backend
type BackendConfig struct {
	// Kind is dispatch or sql
	Kind string `yaml:"kind" json:"kind" mapstructure:"kind" validate:"oneof=dispatch sql"`
	// Driver is the database/sql driver name for the sql backend (mysql or pgx)
	Driver string `yaml:"driver" json:"driver" mapstructure:"driver" validate:"required_if=Kind sql"`
	// DSN is the data source name for the sql backend
	DSN string `yaml:"dsn" json:"dsn" mapstructure:"dsn" validate:"required_if=Kind sql"`
	// MaxOpenConns caps the sql connection pool
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns" mapstructure:"max_open_conns" validate:"gte=0"`
}

// WriteConfig contains write and discovery settings
type WriteConfig struct {
	// DefaultCommitSLA applies when PrepareWrite carries no SLA
	DefaultCommitSLA time.Duration `yaml:"default_commit_sla" json:"default_commit_sla" mapstructure:"default_commit_sla" validate:"gt=0"`
	// DiscoveryConcurrency bounds concurrent schema builds
	DiscoveryConcurrency int `yaml:"discovery_concurrency" json:"discovery_concurrency" mapstructure:"discovery_concurrency" validate:"gt=0"`
}

// ObservabilityConfig contains logging, metrics and tracing settings
type ObservabilityConfig struct {
	LogLevel    string `yaml:"log_level" json:"log_level" mapstructure:"log_level" validate:"oneof=debug info warn error"`
	LogEncoding string `yaml:"log_encoding" json:"log_encoding" mapstructure:"log_encoding" validate:"oneof=json console"`

	EnableMetrics  bool   `yaml:"enable_metrics" json:"enable_metrics" mapstructure:"enable_metrics"`
	MetricsAddress string `yaml:"metrics_address" json:"metrics_address" mapstructure:"metrics_address" validate:"required_if=EnableMetrics true"`

	EnableTracing bool   `yaml:"enable_tracing" json:"enable_tracing" mapstructure:"enable_tracing"`
	ServiceName   string `yaml:"service_name" json:"service_name" mapstructure:"service_name"`
}

// NewPluginConfig creates a PluginConfig with defaults suitable for a host
// launching the plugin locally.
func NewPluginConfig() *PluginConfig {
	return &PluginConfig{
		Server: ServerConfig{
			Address: "127.0.0.1:0",
		},
		Backend: BackendConfig{
			Kind:         BackendDispatch,
			MaxOpenConns: 4,
		},
		Write: WriteConfig{
			DefaultCommitSLA:     30 * time.Second,
			DiscoveryConcurrency: 4,
		},
		Observability: ObservabilityConfig{
			LogLevel:       "info",
			LogEncoding:    "json",
			EnableMetrics:  false,
			MetricsAddress: ":9102",
			EnableTracing:  false,
			ServiceName:    "plugin-sage",
		},
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks the configuration for correctness
func (c *PluginConfig) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid plugin config: %w", flatten(err))
	}
	if c.Backend.Kind == BackendSQL && c.Backend.Driver != "mysql" && c.Backend.Driver != "pgx" {
		return fmt.Errorf("invalid plugin config: unsupported sql driver %q", c.Backend.Driver)
	}
	return nil
}

// flatten renders validator errors as one line per field
func flatten(err error) error {
	verrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	msgs := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		msgs = append(msgs, fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag()))
	}
	return fmt.Errorf("%s", strings.Join(msgs, "; "))
}
