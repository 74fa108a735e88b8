package rq

import "strings"

// keys builds the Redis key names RQ uses for its registries.
type keys struct {
	prefix string
}

func (k keys) workers() string      { return k.prefix + "workers" }
func (k keys) workerPrefix() string { return k.prefix + "worker:" }
func (k keys) queues() string       { return k.prefix + "queues" }
func (k keys) queuePrefix() string  { return k.prefix + "queue:" }

func (k keys) queue(name string) string { return k.queuePrefix() + name }

// registry returns the sorted set tracking jobs of a queue in a given registry.
// RQ names the started registry "wip".
func (k keys) registry(kind, queue string) string {
	return k.prefix + kind + ":" + queue
}

func (k keys) workerName(key string) string {
	return strings.TrimPrefix(key, k.workerPrefix())
}

func (k keys) queueName(key string) string {
	return strings.TrimPrefix(key, k.queuePrefix())
}
