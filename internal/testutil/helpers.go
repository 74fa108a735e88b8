// Package testutil provides shared test utilities and helper functions.
// This file contains an in-memory fake of the Redis commands the RQ adapter
// issues, with a fluent interface for seeding RQ workers and queues.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/fjacquet/rq_exporter/internal/models"
	"github.com/redis/go-redis/v9"
)

// FakeStore is an in-memory stand-in for a go-redis client holding RQ data.
// It is safe for concurrent use.
//
// Example usage:
//
//	store := testutil.NewFakeStore().
//	    WithWorker("w1", []string{"default"}, "idle").
//	    WithQueue("default", models.JobCounts{models.JobStatusQueued: 3})
type FakeStore struct {
	mu      sync.Mutex
	sets    map[string][]string
	hashes  map[string]map[string]string
	lists   map[string]int64
	zsets   map[string]int64
	err     error
	pingErr error
	calls   []string
	closed  bool
}

// NewFakeStore creates an empty FakeStore.
func NewFakeStore() *FakeStore {
	return &FakeStore{
		sets:   make(map[string][]string),
		hashes: make(map[string]map[string]string),
		lists:  make(map[string]int64),
		zsets:  make(map[string]int64),
	}
}

// WithWorker registers a worker with the given queues and state.
func (s *FakeStore) WithWorker(name string, queues []string, state string) *FakeStore {
	return s.WithWorkerFields(name, map[string]string{
		"queues": strings.Join(queues, ","),
		"state":  state,
	})
}

// WithWorkerFields registers a worker whose hash holds exactly fields.
func (s *FakeStore) WithWorkerFields(name string, fields map[string]string) *FakeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := KeyPrefix + "worker:" + name
	s.sets[KeyPrefix+"workers"] = append(s.sets[KeyPrefix+"workers"], key)
	s.hashes[key] = fields
	return s
}

// WithExpiredWorker lists a worker in the registry without a hash, as left
// behind by a worker whose heartbeat key expired.
func (s *FakeStore) WithExpiredWorker(name string) *FakeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[KeyPrefix+"workers"] = append(s.sets[KeyPrefix+"workers"], KeyPrefix+"worker:"+name)
	return s
}

// WithQueue registers a queue and sizes its job list and registries.
func (s *FakeStore) WithQueue(name string, counts models.JobCounts) *FakeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sets[KeyPrefix+"queues"] = append(s.sets[KeyPrefix+"queues"], KeyPrefix+"queue:"+name)
	s.lists[KeyPrefix+"queue:"+name] = counts[models.JobStatusQueued]
	for status, registry := range RegistryKeys {
		s.zsets[KeyPrefix+registry+":"+name] = counts[status]
	}
	return s
}

// WithError makes every data command fail with err.
func (s *FakeStore) WithError(err error) *FakeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
	return s
}

// WithPingError makes PING fail with err.
func (s *FakeStore) WithPingError(err error) *FakeStore {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
	return s
}

// Calls returns the commands issued so far, formatted as "CMD key".
func (s *FakeStore) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

// Closed reports whether Close was called.
func (s *FakeStore) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *FakeStore) record(cmd, key string) {
	s.calls = append(s.calls, strings.TrimSpace(fmt.Sprintf("%s %s", cmd, key)))
}

// SMembers returns the members of a set in insertion order.
func (s *FakeStore) SMembers(ctx context.Context, key string) *redis.StringSliceCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("SMEMBERS", key)
	if s.err != nil {
		return redis.NewStringSliceResult(nil, s.err)
	}
	return redis.NewStringSliceResult(append([]string{}, s.sets[key]...), nil)
}

// HGetAll returns a copy of a hash, or an empty map when it does not exist.
func (s *FakeStore) HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("HGETALL", key)
	if s.err != nil {
		return redis.NewMapStringStringResult(nil, s.err)
	}
	out := make(map[string]string, len(s.hashes[key]))
	for k, v := range s.hashes[key] {
		out[k] = v
	}
	return redis.NewMapStringStringResult(out, nil)
}

// LLen returns the seeded length of a list.
func (s *FakeStore) LLen(ctx context.Context, key string) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("LLEN", key)
	if s.err != nil {
		return redis.NewIntResult(0, s.err)
	}
	return redis.NewIntResult(s.lists[key], nil)
}

// ZCard returns the seeded cardinality of a sorted set.
func (s *FakeStore) ZCard(ctx context.Context, key string) *redis.IntCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("ZCARD", key)
	if s.err != nil {
		return redis.NewIntResult(0, s.err)
	}
	return redis.NewIntResult(s.zsets[key], nil)
}

// Ping answers PONG unless a ping error was configured.
func (s *FakeStore) Ping(ctx context.Context) *redis.StatusCmd {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record("PING", "")
	if s.pingErr != nil {
		return redis.NewStatusResult("", s.pingErr)
	}
	return redis.NewStatusResult("PONG", nil)
}

// Close marks the store closed.
func (s *FakeStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
