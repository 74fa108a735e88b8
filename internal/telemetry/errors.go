package telemetry

// Error message templates for failures an operator has to fix by hand.
// Each template carries the likely causes and what to check next.
//
// Usage:
//
//	log.Errorf(telemetry.ErrPasswordFileTemplate, path, err)
const (
	// ErrPasswordFileTemplate is logged when the Redis password file cannot be read
	ErrPasswordFileTemplate = `Unable to read the Redis password file %s: %v

The exporter does not fall back to the inline password when a password file
is configured.

Troubleshooting steps:
1. Check that the file exists and is readable by the exporter user
2. When running in Kubernetes, check that the secret is mounted at this path
3. Or unset RQ_REDIS_PASS_FILE / --redis-pass-file to use RQ_REDIS_PASS`

	// ErrRedisUnreachableTemplate is logged when the startup PING fails
	ErrRedisUnreachableTemplate = `Redis at %s did not answer PING: %v

Metrics will be served once Redis becomes reachable; scrapes fail until then.

Troubleshooting steps:
1. Verify host, port and database (or the full RQ_REDIS_URL)
2. Verify the password, if Redis requires AUTH
3. Check network policies between the exporter and Redis`
)
