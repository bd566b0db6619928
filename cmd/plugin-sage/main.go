package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/naveego/plugin-sage/internal/plugin"
	"github.com/naveego/plugin-sage/internal/server"
	"github.com/naveego/plugin-sage/pkg/busobject"
	"github.com/naveego/plugin-sage/pkg/config"
	"github.com/naveego/plugin-sage/pkg/connector/registry"
	"github.com/naveego/plugin-sage/pkg/logger"
	"github.com/naveego/plugin-sage/pkg/observability"

	// Register the store backends
	_ "github.com/naveego/plugin-sage/pkg/connector/sage"
	_ "github.com/naveego/plugin-sage/pkg/connector/sqlstore"
)

var version = "0.1.0"

// handshakeVersion prefixes the line the host reads from stdout
const handshakeVersion = "1|1"

func main() {
	// Load .env file if it exists
	_ = godotenv.Load()

	var configFile string
	root := &cobra.Command{
		Use:   "plugin-sage",
		Short: "Sage 100 publisher plugin",
		Long: `plugin-sage publishes Sage 100 business objects to a data hub host.
It serves the publisher gRPC service and reaches Sage through COM automation
or an ODBC/SQL bridge.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a YAML config file (optional)")

	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("plugin-sage v%s\n", version)
			fmt.Printf("Go version: %s\n", runtime.Version())
			fmt.Printf("OS/Arch: %s/%s\n", runtime.GOOS, runtime.GOARCH)
			fmt.Printf("Backends: %s\n", strings.Join(registry.List(), ", "))
		},
	})

	root.AddCommand(&cobra.Command{
		Use:   "modules",
		Short: "List the known modules",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configFile)
			if err != nil {
				return err
			}
			extra, err := loadModules(cfg)
			if err != nil {
				return err
			}
			resolver := busobject.NewResolver(extra...)
			for _, name := range resolver.Names() {
				m, _ := resolver.Resolve(name)
				mode := "read/write"
				if m.WriteOnly {
					mode = "insert only"
				}
				fmt.Printf("  - %-24s %-20s %s\n", name, m.BusObject, mode)
			}
			return nil
		},
	})

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the publisher over gRPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, configFile)
			if err != nil {
				return err
			}
			return serve(cfg)
		},
	}
	serveCmd.Flags().String("address", "", "Listen address (host:port)")
	serveCmd.Flags().String("backend", "", "Store backend (dispatch or sql)")
	serveCmd.Flags().String("log-level", "", "Log level (debug, info, warn, error)")
	serveCmd.Flags().Bool("enable-metrics", false, "Serve Prometheus metrics")
	serveCmd.Flags().Bool("enable-tracing", false, "Export trace spans to stderr")
	root.AddCommand(serveCmd)

	// the host launches the plugin without arguments
	root.RunE = serveCmd.RunE
	root.Flags().AddFlagSet(serveCmd.Flags())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// loadConfig layers defaults, the config file, PLUGIN_SAGE_* environment
// variables and command line flags
func loadConfig(cmd *cobra.Command, configFile string) (*config.PluginConfig, error) {
	cfg := config.NewPluginConfig()

	v := viper.New()
	v.SetEnvPrefix("PLUGIN_SAGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// defaults have to be known to viper for env overrides to apply
	v.SetDefault("server.address", cfg.Server.Address)
	v.SetDefault("backend.kind", cfg.Backend.Kind)
	v.SetDefault("backend.driver", cfg.Backend.Driver)
	v.SetDefault("backend.dsn", cfg.Backend.DSN)
	v.SetDefault("backend.max_open_conns", cfg.Backend.MaxOpenConns)
	v.SetDefault("modules_file", cfg.ModulesFile)
	v.SetDefault("write.default_commit_sla", cfg.Write.DefaultCommitSLA)
	v.SetDefault("write.discovery_concurrency", cfg.Write.DiscoveryConcurrency)
	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_encoding", cfg.Observability.LogEncoding)
	v.SetDefault("observability.enable_metrics", cfg.Observability.EnableMetrics)
	v.SetDefault("observability.metrics_address", cfg.Observability.MetricsAddress)
	v.SetDefault("observability.enable_tracing", cfg.Observability.EnableTracing)
	v.SetDefault("observability.service_name", cfg.Observability.ServiceName)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	flags := map[string]string{
		"address":        "server.address",
		"backend":        "backend.kind",
		"log-level":      "observability.log_level",
		"enable-metrics": "observability.enable_metrics",
		"enable-tracing": "observability.enable_tracing",
	}
	for flag, key := range flags {
		if f := cmd.Flags().Lookup(flag); f != nil {
			if err := v.BindPFlag(key, f); err != nil {
				return nil, err
			}
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadModules(cfg *config.PluginConfig) ([]busobject.ModuleConfig, error) {
	if cfg.ModulesFile == "" {
		return nil, nil
	}
	return config.LoadModules(cfg.ModulesFile)
}

func serve(cfg *config.PluginConfig) error {
	if err := logger.Init(logger.Config{
		Level:    cfg.Observability.LogLevel,
		Encoding: cfg.Observability.LogEncoding,
	}); err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	log := logger.Get()

	shutdownTracing, err := observability.Init(observability.TracingConfig{
		ServiceName:    cfg.Observability.ServiceName,
		ServiceVersion: version,
		Enabled:        cfg.Observability.EnableTracing,
		SamplingRate:   1,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(ctx); err != nil {
			log.Warn("failed to flush traces", zap.Error(err))
		}
	}()

	modules, err := loadModules(cfg)
	if err != nil {
		return err
	}

	if cfg.Observability.EnableMetrics {
		metricsServer := &http.Server{
			Addr:              cfg.Observability.MetricsAddress,
			Handler:           promhttp.Handler(),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() { _ = metricsServer.Close() }()
	}

	lis, err := net.Listen("tcp", cfg.Server.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", cfg.Server.Address, err)
	}

	srv := server.New(plugin.New(plugin.Options{Config: cfg, Modules: modules}))

	fmt.Printf("%s|tcp|%s|grpc\n", handshakeVersion, lis.Addr().String())

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(lis) }()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sig)

	select {
	case err := <-errCh:
		return err
	case s := <-sig:
		log.Info("shutting down", zap.String("signal", s.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Stop(ctx)
	return nil
}
