// Package metrics provides Prometheus metrics for monitoring.
//
// Key metrics:
//   - Engine operation counts by name and outcome
//   - Active listings, sales and settled volume
//   - Outstanding withdrawable proceeds
//   - HTTP request counts and event stream client count
//
// Gauges mirroring engine state are refreshed by the Sampler; everything
// else is counted at the call site.
package metrics
