// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Tick rate and tick duration
//   - Roll-up records produced per granularity
//   - Journal writes, retries and dropped operations
//   - Live stream clients and published events
//   - HTTP request counts and latencies
package metrics
