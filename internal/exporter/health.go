// Package exporter provides health check functionality for the RQ exporter.
package exporter

import (
	"context"
	"fmt"
	"time"
)

// healthCheckTimeout is the default timeout for connectivity tests.
const healthCheckTimeout = 5 * time.Second

// TestConnectivity sends PING to Redis. When ctx carries no deadline a 5s
// timeout applies. It does not wait for a running scrape.
//
// Example:
//
//	if err := collector.TestConnectivity(ctx); err != nil {
//	    log.Warnf("Redis connectivity failed: %v", err)
//	}
func (c *RQCollector) TestConnectivity(ctx context.Context) error {
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, healthCheckTimeout)
		defer cancel()
	}

	if err := c.currentClient().Ping(ctx); err != nil {
		return fmt.Errorf("Redis connectivity test failed: %w", err)
	}
	return nil
}

// LastScrape returns the time and error of the last scrape. The time is
// zero before the first scrape. It never contacts Redis.
func (c *RQCollector) LastScrape() (time.Time, error) {
	c.scrapeMu.RLock()
	defer c.scrapeMu.RUnlock()
	return c.lastScrapeTime, c.lastScrapeErr
}
