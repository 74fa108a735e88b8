package models

import "context"

// Queue is a named RQ queue as seen from a worker.
type Queue interface {
	Name() string
}

// Worker is a worker registered in the backing store. Adapters for a given
// store implement it; the collectors only rely on this interface.
type Worker interface {
	Name() string
	// Queues returns the queues the worker watches, in registration order.
	Queues() []Queue
	// State returns the state reported by the backing store, unmodified.
	State() string
}

// JobCounter is optionally implemented by workers that track job totals.
type JobCounter interface {
	SuccessfulJobCount() int64
	FailedJobCount() int64
	// TotalWorkingTime is the time spent executing jobs, in seconds.
	TotalWorkingTime() float64
}

// WorkerLister lists every worker currently registered.
type WorkerLister interface {
	AllWorkers(ctx context.Context) ([]Worker, error)
}

// QueueLister lists queues and counts their jobs per status.
type QueueLister interface {
	AllQueues(ctx context.Context) ([]string, error)
	JobCounts(ctx context.Context, queue string) (JobCounts, error)
}

// WorkerRecord is the flattened view of a worker exposed as metrics.
type WorkerRecord struct {
	Name   string   `json:"name"`
	Queues []string `json:"queues"`
	State  string   `json:"state"`

	SuccessfulJobs int64   `json:"successful_job_count,omitempty"`
	FailedJobs     int64   `json:"failed_job_count,omitempty"`
	WorkingTime    float64 `json:"total_working_time,omitempty"`
}

// JobStatus is the status of a job inside a queue.
type JobStatus string

// Job statuses reported per queue.
const (
	JobStatusQueued    JobStatus = "queued"
	JobStatusStarted   JobStatus = "started"
	JobStatusFinished  JobStatus = "finished"
	JobStatusFailed    JobStatus = "failed"
	JobStatusDeferred  JobStatus = "deferred"
	JobStatusScheduled JobStatus = "scheduled"
)

// JobStatuses lists every status in exposition order.
var JobStatuses = []JobStatus{
	JobStatusQueued,
	JobStatusStarted,
	JobStatusFinished,
	JobStatusFailed,
	JobStatusDeferred,
	JobStatusScheduled,
}

// JobCounts maps a job status to the number of jobs in that status.
type JobCounts map[JobStatus]int64
