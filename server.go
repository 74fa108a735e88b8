package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fjacquet/rq_exporter/internal/config"
	"github.com/fjacquet/rq_exporter/internal/exporter"
	"github.com/fjacquet/rq_exporter/internal/models"
	"github.com/fjacquet/rq_exporter/internal/telemetry"
	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

const (
	shutdownTimeout   = 10 * time.Second // Maximum time to wait for graceful shutdown
	readHeaderTimeout = 5 * time.Second  // HTTP server read header timeout
	startupPingWait   = 5 * time.Second  // Startup connectivity check
)

// Server encapsulates the HTTP server and its dependencies for serving Prometheus metrics.
// It manages the lifecycle of the HTTP server, Prometheus registry, RQ collector,
// OpenTelemetry telemetry manager and configuration reloads.
//
// Error Handling:
// Server errors (such as port binding failures) are communicated through the ErrorChan()
// channel rather than calling log.Fatal. This allows the caller to perform graceful
// shutdown even when the server encounters errors.
//
// Usage:
//
//	server := NewServer(safeCfg, configPath)
//	if err := server.Start(); err != nil {
//	    return err
//	}
//	server.WatchReloads()
//
//	select {
//	case <-shutdownSignal:
//	    // Normal shutdown
//	case err := <-server.ErrorChan():
//	    log.Errorf("Server error: %v", err)
//	}
//
//	server.Shutdown()
type Server struct {
	safeCfg          *models.SafeConfig // Live configuration, swapped on reload
	configPath       string             // YAML file, empty when running from env/flags only
	httpSrv          *http.Server       // HTTP server instance
	registry         *prometheus.Registry
	telemetryManager *telemetry.Manager // nil if tracing is disabled
	collector        *exporter.RQCollector
	collectorOpts    []exporter.CollectorOption
	watcher          *config.Watcher // config and password file watcher
	stopSIGHUP       func()
	// serverErrChan receives HTTP server errors. It is buffered (capacity 1)
	// so the listener goroutine never blocks if nobody is selecting yet.
	serverErrChan chan error
}

// NewServer creates a new server instance. A telemetry manager is created
// when OpenTelemetry is enabled in the configuration. opts are passed to the
// collector.
func NewServer(safeCfg *models.SafeConfig, configPath string, opts ...exporter.CollectorOption) *Server {
	cfg := safeCfg.Get()

	var telemetryMgr *telemetry.Manager
	if cfg.IsOTelEnabled() {
		telemetryMgr = telemetry.NewManager(telemetry.Config{
			Enabled:        cfg.OpenTelemetry.Enabled,
			Endpoint:       cfg.OpenTelemetry.Endpoint,
			Insecure:       cfg.OpenTelemetry.Insecure,
			SamplingRate:   cfg.OpenTelemetry.SamplingRate,
			ServiceName:    "rq-exporter",
			ServiceVersion: version,
			RedisServer:    cfg.RedisTarget(),
		})
	}

	return &Server{
		safeCfg:          safeCfg,
		configPath:       configPath,
		registry:         prometheus.NewRegistry(),
		telemetryManager: telemetryMgr,
		collectorOpts:    opts,
		serverErrChan:    make(chan error, 1),
	}
}

// Start builds the collector and HTTP handlers, then serves in a goroutine.
//
// The server exposes:
//   - Metrics endpoint at the configured URI (default: /metrics)
//   - Health check endpoint at /health
//
// Returns an error if the Redis connection cannot be resolved (for example
// an unreadable password file) or collector registration fails.
func (s *Server) Start() error {
	if err := s.setup(); err != nil {
		return err
	}

	go func() {
		log.Infof("Starting %s on %s%s", programName, s.httpSrv.Addr, s.safeCfg.Get().Server.URI)
		if err := s.httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.serverErrChan <- fmt.Errorf("HTTP server error: %w", err)
		}
	}()

	return nil
}

func (s *Server) setup() error {
	cfg := *s.safeCfg.Get()

	opts := append([]exporter.CollectorOption(nil), s.collectorOpts...)
	if s.telemetryManager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		if err := s.telemetryManager.Initialize(ctx); err != nil {
			log.Warnf("RQ scrape tracing unavailable: %v", err)
		}

		if s.telemetryManager.IsEnabled() {
			otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
				propagation.TraceContext{},
				propagation.Baggage{},
			))
			log.Info("Scrape spans join the trace context of incoming requests")
			opts = append(opts, exporter.WithCollectorTracerProvider(s.telemetryManager.TracerProvider()))
		}
	}

	collector, err := exporter.NewRQCollector(cfg, opts...)
	if err != nil {
		return fmt.Errorf("failed to create collector: %w", err)
	}
	s.collector = collector

	if err := s.registry.Register(collector); err != nil {
		return fmt.Errorf("failed to register collector: %w", err)
	}

	// Redis being down is not fatal: scrapes fail until it comes back.
	ctx, cancel := context.WithTimeout(context.Background(), startupPingWait)
	defer cancel()
	if err := collector.TestConnectivity(ctx); err != nil {
		log.Warnf(telemetry.ErrRedisUnreachableTemplate, cfg.RedisTarget(), err)
	}

	mux := http.NewServeMux()

	metricsHandler := promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{
		ErrorLog:      log.StandardLogger(),
		ErrorHandling: promhttp.HTTPErrorOnError,
	})
	if s.telemetryManager != nil && s.telemetryManager.IsEnabled() {
		metricsHandler = s.extractTraceContextMiddleware(metricsHandler)
	}

	mux.Handle(cfg.Server.URI, metricsHandler)
	mux.HandleFunc("/health", s.healthHandler)

	s.httpSrv = &http.Server{
		Addr:              cfg.GetServerAddress(),
		Handler:           mux,
		ReadHeaderTimeout: readHeaderTimeout,
	}
	return nil
}

// WatchReloads reloads on SIGHUP and whenever the config file or the Redis
// password file changes. File watching failures are logged, not fatal.
func (s *Server) WatchReloads() {
	s.stopSIGHUP = config.SetupSIGHUPHandler(s.configPath, s.Reload)

	watcher, err := config.WatchFiles([]string{s.configPath, s.safeCfg.Get().Redis.AuthFile}, s.Reload)
	if err != nil {
		log.Warnf("File watcher setup failed: %v. Use SIGHUP to reload.", err)
		return
	}
	s.watcher = watcher
}

// watchPasswordFile adds a password file set by a config reload to the
// watcher.
func (s *Server) watchPasswordFile(path string) {
	if s.watcher == nil || path == "" {
		return
	}
	if err := s.watcher.Add(path); err != nil {
		log.Warnf("Cannot watch password file %s: %v. Use SIGHUP to reload.", path, err)
	}
}

// Reload is called with the config file path on SIGHUP or a config file
// change, and with the password file path when the password changes.
//
// A config reload reconnects only when the Redis settings differ from the
// ones the collector is connected with, so a failed reconnect is retried on
// the next reload. Other settings are applied to the running collector. Any
// other path re-resolves the connection so a rotated password takes effect.
func (s *Server) Reload(path string) error {
	if path != "" && path == s.configPath {
		if _, err := s.safeCfg.ReloadConfig(path); err != nil {
			return err
		}
		cfg := *s.safeCfg.Get()
		s.watchPasswordFile(cfg.Redis.AuthFile)
		if cfg.Redis.Equal(s.collector.RedisConfig()) {
			s.collector.UpdateConfig(cfg)
			return nil
		}
		return s.reconnect(cfg)
	}

	log.Info("Re-resolving Redis connection")
	return s.reconnect(*s.safeCfg.Get())
}

func (s *Server) reconnect(cfg models.Config) error {
	if err := s.collector.Reconnect(cfg); err != nil {
		logPasswordFileError(err)
		return fmt.Errorf("reconnect to %s failed, keeping previous connection: %w", cfg.RedisTarget(), err)
	}
	return nil
}

// ErrorChan returns the channel for receiving server errors.
// The main function should select on this channel to handle errors gracefully.
func (s *Server) ErrorChan() <-chan error {
	return s.serverErrChan
}

// Shutdown gracefully shuts down the server components in order:
//  1. Stop reload triggers (SIGHUP, file watcher)
//  2. Stop HTTP server (no new scrapes accepted)
//  3. Shutdown OpenTelemetry (flush pending spans)
//  4. Close collector (releases the Redis connection)
//
// Telemetry is shut down before the collector so spans from in-flight
// scrapes are flushed while the connection still exists.
//
// Returns every failure, aggregated.
func (s *Server) Shutdown() error {
	var result *multierror.Error

	if s.stopSIGHUP != nil {
		s.stopSIGHUP()
	}
	if s.watcher != nil {
		if err := s.watcher.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("file watcher close: %w", err))
		}
	}

	if s.httpSrv != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info("Shutting down HTTP server...")
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			result = multierror.Append(result, fmt.Errorf("HTTP server shutdown: %w", err))
		}
	}

	if s.telemetryManager != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info("Flushing RQ scrape spans...")
		if err := s.telemetryManager.Shutdown(ctx); err != nil {
			// non-fatal
			log.Warnf("RQ scrape spans may be lost: %v", err)
		}
	}

	if s.collector != nil {
		log.Info("Closing Redis connection...")
		if err := s.collector.Close(); err != nil {
			result = multierror.Append(result, fmt.Errorf("collector close: %w", err))
		}
	}

	close(s.serverErrChan)

	if err := result.ErrorOrNil(); err != nil {
		log.Errorf("Shutdown completed with %d errors", len(result.Errors))
		return err
	}

	log.Info("Server stopped gracefully")
	return nil
}

// extractTraceContextMiddleware wraps an HTTP handler to extract W3C trace
// context from incoming requests, so scrape spans join the caller's trace.
// Requests without trace headers are served unchanged.
func (s *Server) extractTraceContextMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := otel.GetTextMapPropagator().Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// healthHandler answers 200 when Redis replies to PING and 503 otherwise.
// The body also reports the outcome of the last scrape.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	status, body := http.StatusOK, "OK"
	if err := s.collector.TestConnectivity(r.Context()); err != nil {
		log.Debugf("Health check failed: %v", err)
		status, body = http.StatusServiceUnavailable, "Redis unreachable"
	}

	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = fmt.Fprintf(w, "%s\n%s\n", body, lastScrapeLine(s.collector.LastScrape()))
}

func lastScrapeLine(at time.Time, err error) string {
	switch {
	case at.IsZero():
		return "last scrape: never"
	case err != nil:
		return fmt.Sprintf("last scrape: %s failed: %v", at.Format(time.RFC3339), err)
	default:
		return fmt.Sprintf("last scrape: %s ok", at.Format(time.RFC3339))
	}
}
