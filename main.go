// RQ Exporter is a Prometheus exporter for RQ (Redis Queue) that reads the
// worker registry and queue registries straight from Redis.
//
// The exporter collects:
//   - Worker presence, state and job counters (success, failed, working time)
//   - Job counts per queue and status (queued, started, finished, failed,
//     deferred, scheduled)
//
// Usage:
//
//	rq_exporter [--config config.yaml] [--redis-url redis://host:6379/0] [--debug]
//
// Settings are resolved from defaults, then the optional YAML file, then
// RQ_* environment variables, then command-line flags.
package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fjacquet/rq_exporter/internal/exporter"
	"github.com/fjacquet/rq_exporter/internal/logging"
	"github.com/fjacquet/rq_exporter/internal/models"
	"github.com/fjacquet/rq_exporter/internal/telemetry"
	"github.com/fjacquet/rq_exporter/internal/utils"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

const programName = "rq_exporter"

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

// loadConfig reads the optional YAML file, applies the environment and flag
// overlay and validates the result.
//
// Parameters:
//   - configPath: path to the YAML configuration file, empty for none
//   - overlay: applied after the file, before validation
//
// Returns:
//   - Pointer to validated Config struct
//   - Error if the file doesn't exist, cannot be parsed, or validation fails
func loadConfig(configPath string, overlay func(*models.Config) error) (*models.Config, error) {
	var cfg models.Config

	if configPath != "" {
		if !utils.FileExists(configPath) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		if err := utils.ReadFile(&cfg, configPath); err != nil {
			return nil, err
		}
	}

	if overlay != nil {
		if err := overlay(&cfg); err != nil {
			return nil, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// setupLogging initializes the logging system from the configuration.
// If debug mode is enabled, sets the log level to DEBUG regardless of the
// configured level.
func setupLogging(cfg models.Config, debugMode bool) error {
	if err := logging.PrepareLogs(cfg.Server.LogName, cfg.Server.LogFormat, cfg.Server.LogLevel); err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}

	if debugMode {
		log.SetLevel(log.DebugLevel)
		log.Debug("Debug mode enabled")
	}

	return nil
}

// logPasswordFileError prints the operator guidance for an unreadable
// password file, if err carries one.
func logPasswordFileError(err error) {
	var pfErr *exporter.PasswordFileError
	if errors.As(err, &pfErr) {
		log.Errorf(telemetry.ErrPasswordFileTemplate, pfErr.Path, pfErr.Err)
	}
}

// waitForShutdown blocks until either a shutdown signal is received
// or a server error occurs through the error channel.
//
// Signals handled:
//   - SIGINT (Ctrl+C)
//   - SIGTERM (kill command)
//
// Returns an error if the server encountered a fatal error, nil for normal signal shutdown.
func waitForShutdown(serverErr <-chan error) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case sig := <-stop:
		log.Infof("Received signal %v, initiating graceful shutdown...", sig)
		return nil
	case err := <-serverErr:
		return err
	}
}

func run(opts *cliOptions) error {
	overlay := opts.overlay
	cfg, err := loadConfig(opts.configFile, overlay)
	if err != nil {
		return err
	}

	if err := setupLogging(*cfg, opts.debug); err != nil {
		return err
	}

	logging.LogInfo(fmt.Sprintf("Starting %s %s...", programName, version))
	log.Infof("Redis server: %s", cfg.RedisTarget())
	log.Infof("Scrape timeout: %s", cfg.Server.ScrapeTimeout)
	if opts.debug {
		log.Debugf("Redis password: %s", cfg.MaskPassword())
	}

	safeCfg := models.NewSafeConfig(cfg)
	safeCfg.SetOverlay(overlay)

	server := NewServer(safeCfg, opts.configFile)
	if err := server.Start(); err != nil {
		logPasswordFileError(err)
		return err
	}
	server.WatchReloads()

	if err := waitForShutdown(server.ErrorChan()); err != nil {
		logging.LogError(fmt.Sprintf("Server error: %v", err))
		// Continue to graceful shutdown
	}

	return server.Shutdown()
}

func newRootCommand(opts *cliOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:          programName,
		Short:        "Prometheus exporter for RQ (Redis Queue)",
		Long:         "RQ Exporter reads RQ workers and queues from Redis and exposes them in Prometheus format",
		Version:      version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.configFile, "config", "c", "", "Path to configuration file (optional)")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "Enable debug mode")
	opts.registerFlags(flags)

	return cmd
}

func main() {
	if err := newRootCommand(newCLIOptions()).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
