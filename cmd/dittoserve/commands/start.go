package commands

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marmos91/dittoserve/cmd/dittoserve/cmdutil"
	"github.com/marmos91/dittoserve/internal/logger"
	"github.com/marmos91/dittoserve/internal/telemetry"
	"github.com/marmos91/dittoserve/pkg/config"
	"github.com/marmos91/dittoserve/pkg/runtime"
)

var (
	startRoot    string
	startPort    int
	startPidFile string
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the file server",
	Long: `Start serving files in the foreground.

Configuration comes from --config, the default location
($XDG_CONFIG_HOME/dittoserve/config.yaml) or built-in defaults, in that
order. DITTOSERVE_* environment variables override any of them.

Examples:
  # Serve the current directory on :8080
  dittoserve start

  # Serve ./public on port 9000
  dittoserve start --root ./public --port 9000

  # Use a config file and debug logging
  DITTOSERVE_LOGGING_LEVEL=DEBUG dittoserve start --config /etc/dittoserve/config.yaml`,
	RunE: runStart,
}

func init() {
	startCmd.Flags().StringVarP(&startRoot, "root", "r", "", "Directory to serve (overrides server.root)")
	startCmd.Flags().IntVarP(&startPort, "port", "p", -1, "Port to listen on (overrides server.port)")
	startCmd.Flags().StringVar(&startPidFile, "pid-file", "", "Write the process ID to this file")
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}
	if startRoot != "" {
		cfg.Server.Root = startRoot
	}
	if startPort >= 0 {
		cfg.Server.Port = startPort
	}
	if err := config.Validate(cfg); err != nil {
		return err
	}

	if err := cmdutil.InitLogger(cfg); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	telemetryShutdown, err := telemetry.Init(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    "dittoserve",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Endpoint,
		Insecure:       cfg.Telemetry.Insecure,
		SampleRate:     cfg.Telemetry.SampleRate,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		if err := telemetryShutdown(context.Background()); err != nil {
			logger.Error("telemetry shutdown error", logger.Err(err))
		}
	}()

	profilingShutdown, err := telemetry.InitProfiling(telemetry.ProfilingConfig{
		Enabled:        cfg.Telemetry.Profiling.Enabled,
		ServiceName:    "dittoserve",
		ServiceVersion: Version,
		Endpoint:       cfg.Telemetry.Profiling.Endpoint,
		ProfileTypes:   cfg.Telemetry.Profiling.ProfileTypes,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize profiling: %w", err)
	}
	defer func() {
		if err := profilingShutdown(); err != nil {
			logger.Error("profiling shutdown error", logger.Err(err))
		}
	}()

	logger.Info("Configuration loaded", "source", configSource(cfgFile), "root", cfg.Server.Root)
	logger.Info("Log level", "level", cfg.Logging.Level, "format", cfg.Logging.Format)
	if telemetry.IsEnabled() {
		logger.Info("Telemetry enabled", "endpoint", cfg.Telemetry.Endpoint, "sample_rate", cfg.Telemetry.SampleRate)
	}
	if telemetry.IsProfilingEnabled() {
		logger.Info("Profiling enabled", "endpoint", cfg.Telemetry.Profiling.Endpoint)
	}

	rt, err := runtime.New(cfg)
	if err != nil {
		return err
	}
	if addr := rt.APIAddr(); addr != "" {
		logger.Info("Admin API configured", logger.KeyAddress, addr)
	}
	if addr := rt.MetricsAddr(); addr != "" {
		logger.Info("Metrics enabled", logger.KeyAddress, addr)
	}

	if startPidFile != "" {
		if err := os.WriteFile(startPidFile, []byte(fmt.Sprintf("%d\n", os.Getpid())), 0o644); err != nil {
			return fmt.Errorf("failed to write PID file: %w", err)
		}
		defer func() { _ = os.Remove(startPidFile) }()
	}

	logger.Info("Server is running. Press Ctrl+C to stop.")
	return rt.Serve(ctx)
}

func configSource(configFile string) string {
	if configFile != "" {
		return configFile
	}
	if config.DefaultConfigExists() {
		return config.GetDefaultConfigPath()
	}
	return "defaults"
}
