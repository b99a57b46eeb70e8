// Package server exposes the escrow engine over HTTP.
//
// Surfaces:
//   - REST operations for listing, repricing, canceling, buying and
//     withdrawing proceeds
//   - A WebSocket event stream backed by the feed
//   - Prometheus exposition and a health probe
//
// Engine errors map onto HTTP statuses in error.go; every handler speaks
// JSON in both directions.
package server
