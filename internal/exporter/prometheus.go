// Package exporter implements the Prometheus Collector interface for RQ metrics.
// It reads worker and queue statistics from the Redis server backing RQ and
// exposes them in Prometheus format.
package exporter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/fjacquet/rq_exporter/internal/models"
	"github.com/fjacquet/rq_exporter/internal/rq"
	"github.com/fjacquet/rq_exporter/internal/telemetry"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// CollectorOption configures optional RQCollector settings.
type CollectorOption func(*collectorOptions)

type collectorOptions struct {
	tracerProvider trace.TracerProvider
	dialer         Dialer
}

func defaultCollectorOptions() collectorOptions {
	return collectorOptions{
		tracerProvider: nil, // noop via TracerWrapper
		dialer:         NewRedisDialer(),
	}
}

// WithCollectorTracerProvider sets the TracerProvider for the collector.
// If not provided, tracing operations use a noop provider (no overhead).
func WithCollectorTracerProvider(tp trace.TracerProvider) CollectorOption {
	return func(o *collectorOptions) {
		o.tracerProvider = tp
	}
}

// WithDialer replaces the go-redis dialer used to build connection handles.
func WithDialer(d Dialer) CollectorOption {
	return func(o *collectorOptions) {
		if d != nil {
			o.dialer = d
		}
	}
}

// RQCollector implements the Prometheus Collector interface for RQ.
//
// The collector exposes:
//   - rq_workers: one series per worker with value 1 (labels: name, queues, state)
//   - rq_workers_success_total: jobs a worker finished successfully (labels: name, queues)
//   - rq_workers_failed_total: jobs a worker failed (labels: name, queues)
//   - rq_workers_working_time_total: seconds a worker spent on jobs (labels: name, queues)
//   - rq_jobs: jobs per queue and status (labels: queue, status)
//   - rq_request_processing_seconds: time spent collecting RQ data
//
// Scrapes are serialized. A store error fails the whole scrape: no partial
// metrics are exposed and the registry reports the error.
type RQCollector struct {
	// mu serializes scrapes, reconnects and config updates.
	mu     sync.Mutex
	cfg    models.Config
	dialer Dialer
	cache  *JobsCache

	// clientMu guards the client and the Redis settings it was built from.
	clientMu sync.RWMutex
	client   *rq.Client
	redis    models.RedisConfig

	tracing *TracerWrapper

	scrapeMu       sync.RWMutex
	lastScrapeTime time.Time
	lastScrapeErr  error

	rqWorkers            *prometheus.Desc
	rqWorkersSuccess     *prometheus.Desc
	rqWorkersFailed      *prometheus.Desc
	rqWorkersWorkingTime *prometheus.Desc
	rqJobs               *prometheus.Desc
	requestTime          prometheus.Summary
}

// NewRQCollector resolves the Redis connection described by cfg and creates
// the collector. cfg is expected to be validated.
//
// Building the handle does not contact Redis; an unreachable server only
// shows up on the first scrape or health check. A *PasswordFileError or
// *StoreError is returned when the handle cannot be built.
//
// Example:
//
//	collector, err := NewRQCollector(cfg, WithCollectorTracerProvider(tp))
//	if err != nil {
//	    log.Fatalf("Failed to create collector: %v", err)
//	}
//	registry.MustRegister(collector)
func NewRQCollector(cfg models.Config, opts ...CollectorOption) (*RQCollector, error) {
	options := defaultCollectorOptions()
	for _, opt := range opts {
		opt(&options)
	}

	ttl, err := cfg.GetJobsCacheTTL()
	if err != nil {
		return nil, fmt.Errorf("invalid jobs cache TTL: %w", err)
	}

	store, err := ResolveConnection(cfg.Redis, options.dialer)
	if err != nil {
		return nil, err
	}

	return &RQCollector{
		cfg:     cfg,
		dialer:  options.dialer,
		cache:   NewJobsCache(ttl),
		client:  newRQClient(store, cfg),
		redis:   cfg.Redis,
		tracing: NewTracerWrapper(options.tracerProvider, "rq-exporter/collector"),
		rqWorkers: prometheus.NewDesc(
			"rq_workers",
			"RQ workers",
			[]string{"name", "queues", "state"}, nil,
		),
		rqWorkersSuccess: prometheus.NewDesc(
			"rq_workers_success_total",
			"RQ workers success count",
			[]string{"name", "queues"}, nil,
		),
		rqWorkersFailed: prometheus.NewDesc(
			"rq_workers_failed_total",
			"RQ workers fail count",
			[]string{"name", "queues"}, nil,
		),
		rqWorkersWorkingTime: prometheus.NewDesc(
			"rq_workers_working_time_total",
			"RQ workers spent seconds",
			[]string{"name", "queues"}, nil,
		),
		rqJobs: prometheus.NewDesc(
			"rq_jobs",
			"RQ jobs by state",
			[]string{"queue", "status"}, nil,
		),
		requestTime: prometheus.NewSummary(prometheus.SummaryOpts{
			Name: "rq_request_processing_seconds",
			Help: "Time spent collecting RQ data",
		}),
	}, nil
}

func newRQClient(store rq.Store, cfg models.Config) *rq.Client {
	return rq.NewClient(store, rq.WithKeyPrefix(cfg.RQ.KeyPrefix))
}

// Describe sends the descriptors of each metric to the provided channel.
func (c *RQCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.rqWorkers
	ch <- c.rqWorkersSuccess
	ch <- c.rqWorkersFailed
	ch <- c.rqWorkersWorkingTime
	ch <- c.rqJobs
	c.requestTime.Describe(ch)
}

// Collect reads RQ state from Redis and sends the metrics to ch.
//
// The whole collection runs under the configured scrape timeout. When
// tracing is enabled a "prometheus.scrape" span tagged with a fresh scrape id
// wraps one client span per Redis read.
func (c *RQCollector) Collect(ch chan<- prometheus.Metric) {
	c.mu.Lock()
	defer c.mu.Unlock()

	timer := prometheus.NewTimer(c.requestTime)
	defer func() {
		timer.ObserveDuration()
		ch <- c.requestTime
	}()

	timeout, err := c.cfg.GetScrapeTimeout()
	if err != nil || timeout <= 0 {
		timeout, _ = time.ParseDuration(models.DefaultScrapeTimeout)
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	scrapeStart := time.Now()
	ctx, span := c.createScrapeSpan(ctx)
	defer span.End()

	workers, jobs, err := c.collectAll(ctx, span)
	c.recordScrapeResult(err)
	c.updateScrapeSpan(span, scrapeStart, workers, jobs, err)

	if err != nil {
		log.Errorf("Failed to collect RQ metrics from %s: %v", c.cfg.RedisTarget(), err)
		ch <- prometheus.NewInvalidMetric(c.rqWorkers, err)
		return
	}

	c.exposeWorkerMetrics(ch, workers)
	c.exposeJobMetrics(ch, jobs)

	log.Debugf("Collected %d workers and %d queues", len(workers), len(jobs))
}

func (c *RQCollector) createScrapeSpan(ctx context.Context) (context.Context, trace.Span) {
	return c.tracing.StartSpan(ctx, "prometheus.scrape", trace.SpanKindServer,
		attribute.String(telemetry.AttrScrapeID, uuid.NewString()),
		attribute.String(telemetry.AttrRQKeyPrefix, c.cfg.RQ.KeyPrefix),
	)
}

// collectAll reads workers, then job counts. It stops at the first error.
func (c *RQCollector) collectAll(ctx context.Context, span trace.Span) ([]models.WorkerRecord, map[string]models.JobCounts, error) {
	workers, err := c.collectWorkers(ctx)
	if err != nil {
		c.recordFetchError(span, "workers_fetch_error", err)
		return nil, nil, err
	}

	jobs, err := c.collectJobs(ctx)
	if err != nil {
		c.recordFetchError(span, "jobs_fetch_error", err)
		return nil, nil, err
	}

	return workers, jobs, nil
}

func (c *RQCollector) collectWorkers(ctx context.Context) ([]models.WorkerRecord, error) {
	ctx, span := c.redisSpan(ctx, "rq.workers")
	defer span.End()

	workers, err := CollectWorkerStats(ctx, c.client)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int(telemetry.AttrRQWorkerCount, len(workers)))
	return workers, nil
}

func (c *RQCollector) collectJobs(ctx context.Context) (map[string]models.JobCounts, error) {
	ctx, span := c.redisSpan(ctx, "rq.queues")
	defer span.End()

	target := c.cfg.RedisTarget()
	if jobs, ok := c.cache.Get(target); ok {
		span.SetAttributes(
			attribute.Bool(telemetry.AttrRQCacheHit, true),
			attribute.Int(telemetry.AttrRQQueueCount, len(jobs)),
		)
		return jobs, nil
	}

	jobs, err := CollectQueueJobStats(ctx, c.client)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	c.cache.Set(target, jobs)

	span.SetAttributes(
		attribute.Bool(telemetry.AttrRQCacheHit, false),
		attribute.Int(telemetry.AttrRQQueueCount, len(jobs)),
	)
	return jobs, nil
}

func (c *RQCollector) redisSpan(ctx context.Context, operation string) (context.Context, trace.Span) {
	return c.tracing.StartSpan(ctx, operation, trace.SpanKindClient,
		attribute.String(telemetry.AttrDBSystem, "redis"),
		attribute.String(telemetry.AttrDBOperation, operation),
		attribute.String(telemetry.AttrDBTarget, c.cfg.RedisTarget()),
	)
}

func (c *RQCollector) recordFetchError(span trace.Span, eventName string, err error) {
	span.AddEvent(eventName, trace.WithAttributes(
		attribute.String(telemetry.AttrError, err.Error()),
	))
}

func (c *RQCollector) recordScrapeResult(err error) {
	c.scrapeMu.Lock()
	defer c.scrapeMu.Unlock()
	c.lastScrapeTime = time.Now()
	c.lastScrapeErr = err
}

func (c *RQCollector) updateScrapeSpan(span trace.Span, scrapeStart time.Time, workers []models.WorkerRecord, jobs map[string]models.JobCounts, err error) {
	status := "success"
	if err != nil {
		status = "failure"
		span.SetStatus(codes.Error, "Failed to collect RQ metrics")
	} else {
		span.SetStatus(codes.Ok, "")
	}

	span.SetAttributes(
		attribute.Float64(telemetry.AttrScrapeDurationMS, float64(time.Since(scrapeStart).Milliseconds())),
		attribute.Int(telemetry.AttrScrapeWorkerCount, len(workers)),
		attribute.Int(telemetry.AttrScrapeJobCount, len(jobs)*len(models.JobStatuses)),
		attribute.String(telemetry.AttrScrapeStatus, status),
	)
}

func (c *RQCollector) exposeWorkerMetrics(ch chan<- prometheus.Metric, workers []models.WorkerRecord) {
	for _, w := range workers {
		key := NewWorkerMetricKey(w)
		labels := key.Labels()

		ch <- prometheus.MustNewConstMetric(
			c.rqWorkers,
			prometheus.GaugeValue,
			1,
			append(labels, w.State)...,
		)
		ch <- prometheus.MustNewConstMetric(
			c.rqWorkersSuccess,
			prometheus.CounterValue,
			float64(w.SuccessfulJobs),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			c.rqWorkersFailed,
			prometheus.CounterValue,
			float64(w.FailedJobs),
			labels...,
		)
		ch <- prometheus.MustNewConstMetric(
			c.rqWorkersWorkingTime,
			prometheus.CounterValue,
			w.WorkingTime,
			labels...,
		)
	}
}

func (c *RQCollector) exposeJobMetrics(ch chan<- prometheus.Metric, jobs map[string]models.JobCounts) {
	for queue, counts := range jobs {
		for _, status := range models.JobStatuses {
			key := JobMetricKey{Queue: queue, Status: status}
			ch <- prometheus.MustNewConstMetric(
				c.rqJobs,
				prometheus.GaugeValue,
				float64(counts[status]),
				key.Labels()...,
			)
		}
	}
}

// Reconnect resolves a new connection from cfg and swaps it in once no
// scrape is running. The old handle is closed. On error the current
// connection and configuration are kept.
func (c *RQCollector) Reconnect(cfg models.Config) error {
	store, err := ResolveConnection(cfg.Redis, c.dialer)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.clientMu.Lock()
	old := c.client
	c.client = newRQClient(store, cfg)
	c.redis = cfg.Redis
	c.clientMu.Unlock()

	c.applyConfig(cfg)
	c.cache.Flush()

	if err := old.Close(); err != nil {
		log.Warnf("Failed to close previous Redis connection: %v", err)
	}
	log.Infof("Connected to Redis at %s", cfg.RedisTarget())
	return nil
}

// UpdateConfig applies settings that do not need a new connection: scrape
// timeout, key prefix and jobs cache TTL.
func (c *RQCollector) UpdateConfig(cfg models.Config) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if cfg.RQ.KeyPrefix != c.cfg.RQ.KeyPrefix {
		c.clientMu.Lock()
		c.client = newRQClient(c.client.Store(), cfg)
		c.clientMu.Unlock()
	}
	c.applyConfig(cfg)
	c.cache.Flush()
}

// applyConfig must be called with mu held.
func (c *RQCollector) applyConfig(cfg models.Config) {
	if ttl, err := cfg.GetJobsCacheTTL(); err == nil && ttl != c.cache.TTL() {
		c.cache = NewJobsCache(ttl)
	}
	c.cfg = cfg
}

// Close releases the Redis connection.
func (c *RQCollector) Close() error {
	c.clientMu.RLock()
	defer c.clientMu.RUnlock()
	return c.client.Close()
}

// RedisConfig returns the Redis settings of the current connection. It only
// changes when Reconnect succeeds.
func (c *RQCollector) RedisConfig() models.RedisConfig {
	c.clientMu.RLock()
	defer c.clientMu.RUnlock()
	return c.redis
}

func (c *RQCollector) currentClient() *rq.Client {
	c.clientMu.RLock()
	defer c.clientMu.RUnlock()
	return c.client
}
