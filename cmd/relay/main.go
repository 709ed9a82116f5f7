package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sharisseji/Waterloop-Host-Application/internal/config"
	"github.com/sharisseji/Waterloop-Host-Application/internal/logger"
	"github.com/sharisseji/Waterloop-Host-Application/internal/shutdown"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/grpc"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/httpapi"
	"github.com/sharisseji/Waterloop-Host-Application/pkg/relay"
)

var (
	// CLI flags
	cfgFile     string
	envFile     string
	logLevel    string
	logFormat   string
	logOutput   string
	grpcAddress string
	grpcNetwork string
	httpAddress string
	queueSize   int
	overflow    string
	versionFlag bool

	rootLog *logger.Logger
)

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "Waterloop host relay - routes commands between field-control endpoints",
	Long: `relay is the host process that connects the dashboard, telemetry and
motor-control endpoints. Each endpoint opens a bidirectional stream under a
role; every message is delivered to all sessions of the recipient role.

Endpoints connect over gRPC (HostControl service) or, with --http-address,
over WebSocket at /ws/<role>. Send SIGHUP or edit the config file to reload
the log level and rate limit.`,
	Version:       grpc.DefaultVersion,
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          runRelay,
}

func runRelay(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	if versionFlag {
		fmt.Printf("relay version %s\n", grpc.DefaultVersion)
		return nil
	}

	if err := config.LoadDotEnv(envFile); err != nil {
		return fmt.Errorf("failed to load env file: %w", err)
	}

	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logger.InitGlobal(cfg.Logging); err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	rootLog = logger.Global()
	defer rootLog.Close()
	rootLog.Info("Starting relay", "version", grpc.DefaultVersion, "config", cfg.String())

	opts, err := relay.OptionsFromConfig(cfg.Relay, rootLog)
	if err != nil {
		return err
	}
	r := relay.NewServer(opts)

	grpcResult, err := grpc.Bootstrap(ctx, grpc.NewDefaultBootstrapConfig(cfg.GRPC, r, rootLog))
	if err != nil {
		rootLog.Error("Failed to bootstrap gRPC server", "error", err)
		return err
	}
	rootLog.Info("gRPC server listening", "address", grpcResult.Address)

	var api *httpapi.Server
	if cfg.HTTP.Enabled {
		api, err = httpapi.NewServer(cfg.HTTP, httpapi.Options{Relay: r, GRPC: grpcResult.Server, Logger: rootLog})
		if err != nil {
			_ = grpcResult.Stop()
			return err
		}
		if err := api.Start(ctx); err != nil {
			_ = grpcResult.Stop()
			return err
		}
	}

	reloader := config.NewReloader(cfgFile, cfg, rootLog)
	reloader.AddCallback(func(ctx context.Context, newConfig *config.Config) error {
		if err := rootLog.SetLevelString(newConfig.Logging.Level); err != nil {
			return err
		}
		r.SetRateLimit(newConfig.Relay.RateLimit, newConfig.Relay.RateBurst)
		rootLog.Info("Applied reloaded configuration",
			"log_level", newConfig.Logging.Level,
			"rate_limit", newConfig.Relay.RateLimit,
			"rate_burst", newConfig.Relay.RateBurst)
		return nil
	})
	if err := reloader.Start(); err != nil {
		rootLog.Warn("Config reloader not started", "error", err)
	}

	// Sessions end first so their handlers return before the listeners stop.
	sm := shutdown.NewManager(cfg.Shutdown.Timeout, rootLog)
	sm.AddHook("config_reloader", func(context.Context) error {
		reloader.Stop()
		return nil
	})
	sm.AddHook("relay", r.Shutdown)
	sm.AddHook("grpc", func(context.Context) error {
		return grpcResult.Stop()
	})
	if api != nil {
		sm.AddHook("http", api.Stop)
	}

	sm.Start()
	rootLog.Info("Relay is running. Press Ctrl+C to stop.")

	<-sm.Done()
	sm.Stop()

	if err := sm.Wait(ctx); err != nil {
		rootLog.Warn("Relay stopped with errors", "error", err)
		return err
	}
	rootLog.Info("Relay shutdown complete")
	return nil
}

// loadConfig resolves defaults, file, environment and CLI flags in
// increasing precedence
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, err
	}

	cfg.ApplyOverrides(config.OverrideOptions{
		LogLevel:       logLevel,
		LogFormat:      logFormat,
		LogOutput:      logOutput,
		GRPCNetwork:    grpcNetwork,
		GRPCAddress:    grpcAddress,
		HTTPAddress:    httpAddress,
		QueueSize:      queueSize,
		OverflowPolicy: overflow,
	})
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "",
		"Config file path (default: ~/.config/waterloop-relay/config.yaml if present)")
	flags.StringVar(&envFile, "env-file", ".env", "Env file loaded before the config")

	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", "", "Log format: json, text")
	flags.StringVar(&logOutput, "log-output", "", "Log output: stdout, stderr, or file path")

	flags.StringVar(&grpcAddress, "grpc-address", "",
		"gRPC listen address, host:port or socket path (default: "+config.DefaultGRPCAddress+")")
	flags.StringVar(&grpcNetwork, "grpc-network", "", "gRPC listen network: tcp or unix")
	flags.StringVar(&httpAddress, "http-address", "",
		"Enable the status API and WebSocket endpoint on this address")

	flags.IntVar(&queueSize, "queue-size", 0, "Per-session outbound queue size")
	flags.StringVar(&overflow, "overflow", "", "Full queue policy: drop_oldest, drop_newest")

	rootCmd.Flags().BoolVar(&versionFlag, "version", false, "Show version information")

	if err := rootCmd.Execute(); err != nil {
		if rootLog != nil {
			rootLog.Error("Relay failed", "error", err)
		} else {
			fmt.Fprintln(os.Stderr, "relay:", err)
		}
		os.Exit(1)
	}
}
