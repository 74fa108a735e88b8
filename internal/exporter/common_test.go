package exporter

import (
	"sync"

	"github.com/fjacquet/rq_exporter/internal/rq"
	"github.com/fjacquet/rq_exporter/internal/testutil"
)

// Shared test constants - aliased from testutil
const (
	testWorkerOne    = testutil.TestWorkerOne
	testWorkerTwo    = testutil.TestWorkerTwo
	testQueueHigh    = testutil.TestQueueHigh
	testQueueLow     = testutil.TestQueueLow
	testQueueDefault = testutil.TestQueueDefault
	testStateIdle    = testutil.TestStateIdle
	testStateBusy    = testutil.TestStateBusy
	testRedisHost    = testutil.TestRedisHost
	testRedisPass    = testutil.TestRedisPass
	testRedisURL     = testutil.TestRedisURL
)

// recordingDialer hands out a fixed store and records every request.
type recordingDialer struct {
	mu     sync.Mutex
	store  rq.Store
	err    error
	urls   []string
	params []ConnParams
}

func newRecordingDialer(store rq.Store) *recordingDialer {
	return &recordingDialer{store: store}
}

func (d *recordingDialer) FromURL(url string) (rq.Store, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.urls = append(d.urls, url)
	if d.err != nil {
		return nil, d.err
	}
	return d.store, nil
}

func (d *recordingDialer) New(params ConnParams) (rq.Store, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.params = append(d.params, params)
	if d.err != nil {
		return nil, d.err
	}
	return d.store, nil
}

func (d *recordingDialer) calls() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.urls) + len(d.params)
}
