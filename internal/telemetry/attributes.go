package telemetry

// Redis command attributes
const (
	AttrDBSystem    = "db.system"
	AttrDBOperation = "db.operation"
	AttrDBTarget    = "db.redis.target"
)

// RQ-specific attributes
const (
	AttrRQKeyPrefix   = "rq.key_prefix"
	AttrRQWorkerCount = "rq.worker_count"
	AttrRQQueueCount  = "rq.queue_count"
	AttrRQCacheHit    = "rq.jobs_cache_hit"
)

// Scrape cycle attributes
const (
	AttrScrapeID          = "scrape.id"
	AttrScrapeDurationMS  = "scrape.duration_ms"
	AttrScrapeWorkerCount = "scrape.worker_metrics_count"
	AttrScrapeJobCount    = "scrape.job_metrics_count"
	AttrScrapeStatus      = "scrape.status"
)

// Error attributes
const (
	AttrError = "error"
)
