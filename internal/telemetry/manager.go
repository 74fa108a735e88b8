package telemetry

import (
	"context"
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/grpc/credentials/insecure"
)

// Manager owns the TracerProvider for the lifetime of the process.
type Manager struct {
	enabled        bool
	tracerProvider *sdktrace.TracerProvider
	config         Config
}

// Config holds the settings used to build the TracerProvider.
type Config struct {
	// Enabled turns tracing on
	Enabled bool

	// Endpoint is the OTLP gRPC collector endpoint (e.g., "localhost:4317")
	Endpoint string

	// Insecure disables TLS towards the collector
	Insecure bool

	// SamplingRate is the fraction of traces kept (0.0 to 1.0)
	SamplingRate float64

	ServiceName    string
	ServiceVersion string

	// RedisServer is the scraped Redis target, recorded as peer.service
	RedisServer string
}

// NewManager creates a telemetry manager. Nothing is started until Initialize.
func NewManager(cfg Config) *Manager {
	return &Manager{
		enabled: cfg.Enabled,
		config:  cfg,
	}
}

// Initialize connects the span exporter and registers a global
// TracerProvider for RQ scrape spans.
//
// Failures are logged and leave the manager disabled. Scrapes of Redis carry
// on untraced.
func (m *Manager) Initialize(ctx context.Context) error {
	if !m.config.Enabled {
		log.Debug("RQ scrape tracing is off")
		return nil
	}

	spans, err := m.newSpanExporter(ctx)
	if err != nil {
		m.disable(err)
		return nil
	}

	res, err := m.createResource()
	if err != nil {
		m.disable(fmt.Errorf("describe %s: %w", m.config.ServiceName, err))
		return nil
	}

	m.tracerProvider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(spans),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(m.createSampler()),
	)
	otel.SetTracerProvider(m.tracerProvider)

	log.Infof("Tracing RQ scrapes of %s to %s (sampling %.2f)",
		m.redisTarget(), m.config.Endpoint, m.config.SamplingRate)
	return nil
}

func (m *Manager) disable(err error) {
	log.Warnf("RQ scrape tracing disabled: %v. Metrics are still served.", err)
	m.enabled = false
}

func (m *Manager) redisTarget() string {
	if m.config.RedisServer == "" {
		return "redis"
	}
	return m.config.RedisServer
}

func (m *Manager) newSpanExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(m.config.Endpoint),
	}
	if m.config.Insecure {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(insecure.NewCredentials()))
	}

	spans, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("span exporter for %s: %w", m.config.Endpoint, err)
	}
	return spans, nil
}

// createResource describes this process: service, host and the Redis system
// it reads from.
func (m *Manager) createResource() (*resource.Resource, error) {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	attrs := []resource.Option{
		resource.WithAttributes(
			semconv.ServiceNameKey.String(m.config.ServiceName),
			semconv.ServiceVersionKey.String(m.config.ServiceVersion),
			semconv.HostNameKey.String(hostname),
			semconv.DBSystemRedis,
		),
	}

	if m.config.RedisServer != "" {
		attrs = append(attrs, resource.WithAttributes(
			semconv.PeerServiceKey.String(m.config.RedisServer),
		))
	}

	return resource.New(context.Background(), attrs...)
}

func (m *Manager) createSampler() sdktrace.Sampler {
	if m.config.SamplingRate >= 1.0 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.TraceIDRatioBased(m.config.SamplingRate)
}

// Shutdown flushes pending scrape spans. It is a no-op when tracing never
// started.
func (m *Manager) Shutdown(ctx context.Context) error {
	if !m.enabled || m.tracerProvider == nil {
		return nil
	}

	if err := m.tracerProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("flush RQ scrape spans to %s: %w", m.config.Endpoint, err)
	}
	log.Debug("RQ scrape spans flushed")
	return nil
}

// IsEnabled reports whether tracing is active. It turns false when
// initialization failed.
func (m *Manager) IsEnabled() bool {
	return m.enabled
}

// TracerProvider returns the provider to inject into collectors, or nil when
// tracing is off.
func (m *Manager) TracerProvider() trace.TracerProvider {
	if m.tracerProvider == nil {
		return nil
	}
	return m.tracerProvider
}
