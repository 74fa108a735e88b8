package exporter

import (
	"strings"

	"github.com/fjacquet/rq_exporter/internal/models"
)

// WorkerMetricKey identifies the series of a single worker.
type WorkerMetricKey struct {
	Name   string
	Queues string
}

// JobMetricKey identifies a job count series.
type JobMetricKey struct {
	Queue  string
	Status models.JobStatus
}

// NewWorkerMetricKey builds the key of a worker record. Queue names are
// joined with commas, in worker order.
func NewWorkerMetricKey(r models.WorkerRecord) WorkerMetricKey {
	return WorkerMetricKey{Name: r.Name, Queues: strings.Join(r.Queues, ",")}
}

// Labels returns the metric labels as a slice.
func (k WorkerMetricKey) Labels() []string {
	return []string{k.Name, k.Queues}
}

// Labels returns the metric labels as a slice.
func (k JobMetricKey) Labels() []string {
	return []string{k.Queue, string(k.Status)}
}
