package rq

import (
	"strconv"
	"strings"

	"github.com/fjacquet/rq_exporter/internal/models"
)

// Fields of the worker hash written by RQ workers.
const (
	fieldQueues           = "queues"
	fieldState            = "state"
	fieldSuccessfulJobs   = "successful_job_count"
	fieldFailedJobs       = "failed_job_count"
	fieldTotalWorkingTime = "total_working_time"
)

// unknownState is what RQ reports for a worker hash without a state field.
const unknownState = "?"

type queue string

func (q queue) Name() string { return string(q) }

// Worker is an RQ worker restored from its Redis hash.
// It implements models.Worker and models.JobCounter.
type Worker struct {
	name        string
	queues      []models.Queue
	state       string
	successful  int64
	failed      int64
	workingTime float64
}

func (w *Worker) Name() string              { return w.name }
func (w *Worker) Queues() []models.Queue    { return w.queues }
func (w *Worker) State() string             { return w.state }
func (w *Worker) SuccessfulJobCount() int64 { return w.successful }
func (w *Worker) FailedJobCount() int64     { return w.failed }
func (w *Worker) TotalWorkingTime() float64 { return w.workingTime }

// newWorker restores a worker from the fields of its hash. Queue names are
// kept in the order RQ stored them.
func newWorker(name string, fields map[string]string) *Worker {
	w := &Worker{
		name:  name,
		state: fields[fieldState],
	}
	if w.state == "" {
		w.state = unknownState
	}

	if raw := fields[fieldQueues]; raw != "" {
		for _, q := range strings.Split(raw, ",") {
			w.queues = append(w.queues, queue(q))
		}
	}

	// Counters are absent on workers that never ran a job.
	w.successful, _ = strconv.ParseInt(fields[fieldSuccessfulJobs], 10, 64)
	w.failed, _ = strconv.ParseInt(fields[fieldFailedJobs], 10, 64)
	w.workingTime, _ = strconv.ParseFloat(fields[fieldTotalWorkingTime], 64)

	return w
}
