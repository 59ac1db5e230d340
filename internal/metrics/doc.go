// Package metrics exposes Prometheus metrics for the realtime channels.
//
// Key metrics:
//   - Connection state and uptime per channel
//   - Message and reconnect counters
//   - Recorded connection errors
package metrics
