package rq

import (
	"context"

	"github.com/fjacquet/rq_exporter/internal/models"
)

// registryKinds maps a job status to the RQ registry holding it.
var registryKinds = []struct {
	status models.JobStatus
	kind   string
}{
	{models.JobStatusStarted, "wip"},
	{models.JobStatusFinished, "finished"},
	{models.JobStatusFailed, "failed"},
	{models.JobStatusDeferred, "deferred"},
	{models.JobStatusScheduled, "scheduled"},
}

// AllQueues returns the names of every queue in the queue registry.
func (c *Client) AllQueues(ctx context.Context) ([]string, error) {
	members, err := c.store.SMembers(ctx, c.keys.queues()).Result()
	if err != nil {
		return nil, err
	}

	names := make([]string, 0, len(members))
	for _, key := range members {
		if key == "" {
			continue
		}
		names = append(names, c.keys.queueName(key))
	}
	return names, nil
}

// JobCounts returns the number of jobs of a queue in every status: the length
// of the queue list for queued jobs and the size of each registry otherwise.
func (c *Client) JobCounts(ctx context.Context, queue string) (models.JobCounts, error) {
	counts := make(models.JobCounts, len(models.JobStatuses))

	queued, err := c.store.LLen(ctx, c.keys.queue(queue)).Result()
	if err != nil {
		return nil, err
	}
	counts[models.JobStatusQueued] = queued

	for _, r := range registryKinds {
		n, err := c.store.ZCard(ctx, c.keys.registry(r.kind, queue)).Result()
		if err != nil {
			return nil, err
		}
		counts[r.status] = n
	}

	return counts, nil
}
