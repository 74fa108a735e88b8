package exporter

import (
	"context"

	"github.com/fjacquet/rq_exporter/internal/models"
)

// CollectWorkerStats lists every registered worker and flattens each one
// into a WorkerRecord, in the order the lister returns them.
//
// Queue names keep the worker's own order, duplicates included, and the
// state is passed through as reported. Workers that also implement
// models.JobCounter carry their job totals into the record.
//
// An error from the lister is returned as is, with no partial result.
func CollectWorkerStats(ctx context.Context, lister models.WorkerLister) ([]models.WorkerRecord, error) {
	workers, err := lister.AllWorkers(ctx)
	if err != nil {
		return nil, err
	}

	records := make([]models.WorkerRecord, 0, len(workers))
	for _, w := range workers {
		record := models.WorkerRecord{
			Name:   w.Name(),
			Queues: queueNames(w.Queues()),
			State:  w.State(),
		}
		if counter, ok := w.(models.JobCounter); ok {
			record.SuccessfulJobs = counter.SuccessfulJobCount()
			record.FailedJobs = counter.FailedJobCount()
			record.WorkingTime = counter.TotalWorkingTime()
		}
		records = append(records, record)
	}

	return records, nil
}

func queueNames(queues []models.Queue) []string {
	names := make([]string, 0, len(queues))
	for _, q := range queues {
		names = append(names, q.Name())
	}
	return names
}
