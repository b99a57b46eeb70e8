// Package journal persists the marketplace event stream to Postgres.
//
// The writer consumes a feed subscription, stages rows in an unbounded
// queue, and batch inserts them with ON CONFLICT DO NOTHING so a replayed
// event is never recorded twice. The table is append-only (never update,
// only insert).
package journal
