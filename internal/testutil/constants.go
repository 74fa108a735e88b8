// Package testutil provides shared testing utilities and constants for the RQ exporter.
//
// This package centralizes common test constants and an in-memory fake of the
// Redis commands used by the RQ adapter, so tests never need a Redis server.
//
// # Key Components
//
// Constants: Shared test values (key prefix, registry names, worker fixtures)
//
// FakeStore: Fluent, in-memory implementation of the rq.Store interface
//
// # Usage Examples
//
// Seeding workers and queues:
//
//	store := testutil.NewFakeStore().
//	    WithWorker("w1", []string{"default"}, "idle").
//	    WithQueue("default", models.JobCounts{models.JobStatusQueued: 2})
//
// Simulating an outage:
//
//	store := testutil.NewFakeStore().WithError(testutil.ErrConnectionRefused)
package testutil

import (
	"errors"

	"github.com/fjacquet/rq_exporter/internal/models"
)

// KeyPrefix is the namespace RQ uses for its keys.
const KeyPrefix = "rq:"

// RegistryKeys maps job statuses to the RQ registry holding them.
var RegistryKeys = map[models.JobStatus]string{
	models.JobStatusStarted:   "wip",
	models.JobStatusFinished:  "finished",
	models.JobStatusFailed:    "failed",
	models.JobStatusDeferred:  "deferred",
	models.JobStatusScheduled: "scheduled",
}

// Common test values
const (
	TestWorkerOne    = "worker_one"
	TestWorkerTwo    = "worker_two"
	TestQueueHigh    = "high"
	TestQueueLow     = "low"
	TestQueueDefault = "default"
	TestStateIdle    = "idle"
	TestStateBusy    = "busy"
	TestRedisHost    = "redis_host"
	TestRedisPass    = "123456"
	TestRedisURL     = "redis://localhost:6379/0"
)

// ErrConnectionRefused simulates a Redis connectivity failure.
var ErrConnectionRefused = errors.New("dial tcp 127.0.0.1:6379: connect: connection refused")
