package exporter

import (
	"context"

	"github.com/fjacquet/rq_exporter/internal/models"
)

// CollectQueueJobStats counts the jobs of every known queue, per status.
// Any store error fails the whole call.
func CollectQueueJobStats(ctx context.Context, lister models.QueueLister) (map[string]models.JobCounts, error) {
	queues, err := lister.AllQueues(ctx)
	if err != nil {
		return nil, err
	}

	stats := make(map[string]models.JobCounts, len(queues))
	for _, name := range queues {
		counts, err := lister.JobCounts(ctx, name)
		if err != nil {
			return nil, err
		}
		stats[name] = counts
	}

	return stats, nil
}
