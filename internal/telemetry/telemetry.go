// Package telemetry provides OpenTelemetry integration for the RQ exporter.
//
// # Key Components
//
// Manager: builds the OTLP gRPC exporter and TracerProvider, and flushes it on
// shutdown.
//
// Attributes: span attribute keys shared by the collector (Redis, RQ, scrape).
//
// Error Templates: operator-facing messages for password-file and
// connectivity failures.
//
// # Usage Example
//
//	manager := telemetry.NewManager(telemetry.Config{
//	    Enabled:        true,
//	    Endpoint:       "localhost:4317",
//	    Insecure:       true,
//	    SamplingRate:   1.0,
//	    ServiceName:    "rq-exporter",
//	    ServiceVersion: "1.0.0",
//	    RedisServer:    "redis://redis:6379/0",
//	})
//	if err := manager.Initialize(ctx); err != nil {
//	    log.Fatalf("Failed to initialize telemetry: %v", err)
//	}
//	defer manager.Shutdown(ctx)
//
// # Sampling
//
// A SamplingRate of 1.0 keeps every trace (AlwaysSample); lower values use
// TraceIDRatioBased.
package telemetry
