// Package rq reads the state RQ keeps in Redis: registered workers, known
// queues and the job registries of each queue. It never writes to Redis.
package rq

import (
	"context"

	"github.com/fjacquet/rq_exporter/internal/models"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// DefaultKeyPrefix is the namespace RQ uses for all of its keys.
const DefaultKeyPrefix = "rq:"

// Store is the subset of the go-redis command set the adapter needs.
// *redis.Client satisfies it; tests use an in-memory fake.
type Store interface {
	SMembers(ctx context.Context, key string) *redis.StringSliceCmd
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
	LLen(ctx context.Context, key string) *redis.IntCmd
	ZCard(ctx context.Context, key string) *redis.IntCmd
	Ping(ctx context.Context) *redis.StatusCmd
	Close() error
}

var _ Store = (*redis.Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithKeyPrefix overrides the "rq:" key namespace.
func WithKeyPrefix(prefix string) Option {
	return func(c *Client) {
		if prefix != "" {
			c.keys.prefix = prefix
		}
	}
}

// Client lists RQ workers and queues from a Store.
// It implements models.WorkerLister and models.QueueLister.
type Client struct {
	store Store
	keys  keys
}

var (
	_ models.WorkerLister = (*Client)(nil)
	_ models.QueueLister  = (*Client)(nil)
)

// NewClient creates an RQ client reading from store.
func NewClient(store Store, opts ...Option) *Client {
	c := &Client{
		store: store,
		keys:  keys{prefix: DefaultKeyPrefix},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Store returns the underlying connection handle.
func (c *Client) Store() Store {
	return c.store
}

// Ping checks that the backing Redis server answers.
func (c *Client) Ping(ctx context.Context) error {
	return c.store.Ping(ctx).Err()
}

// Close closes the underlying connection handle.
func (c *Client) Close() error {
	return c.store.Close()
}

// AllWorkers returns every worker in the worker registry, in the order Redis
// returns the registry members. Registry entries whose hash has expired are
// skipped. Store errors are returned as is.
func (c *Client) AllWorkers(ctx context.Context) ([]models.Worker, error) {
	members, err := c.store.SMembers(ctx, c.keys.workers()).Result()
	if err != nil {
		return nil, err
	}

	workers := make([]models.Worker, 0, len(members))
	for _, key := range members {
		fields, err := c.store.HGetAll(ctx, key).Result()
		if err != nil {
			return nil, err
		}
		if len(fields) == 0 {
			log.Debugf("Skipping worker %s: hash no longer exists", key)
			continue
		}
		workers = append(workers, newWorker(c.keys.workerName(key), fields))
	}

	return workers, nil
}
