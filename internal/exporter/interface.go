// Package exporter provides interfaces for Redis connection abstraction.
// These interfaces let tests observe how a connection is requested without
// a Redis server.
package exporter

import (
	"github.com/fjacquet/rq_exporter/internal/rq"
)

// ConnParams are the discrete parameters used when no URL is configured.
type ConnParams struct {
	Host string
	Port int
	DB   int

	// Password is nil when no credential is configured. A nil password and
	// an empty one are different requests.
	Password *string
}

// Dialer builds connection handles to the Redis server backing RQ.
//
// Implementations must not require the server to be reachable: a handle is
// allowed to connect lazily on first use.
//
// The primary implementation is redisDialer, which builds go-redis clients.
type Dialer interface {
	// FromURL builds a handle from a redis:// or rediss:// URL. Every
	// connection parameter is taken from the URL.
	FromURL(url string) (rq.Store, error)

	// New builds a handle from discrete parameters.
	New(params ConnParams) (rq.Store, error)
}
