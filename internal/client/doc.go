// Package client provides a typed Go client for the marketplace HTTP API
// and its WebSocket event stream.
//
// REST reads are retried with exponential backoff. Mutations are sent
// exactly once because a timed-out settlement may still have landed on
// the server.
package client
