package journal

import (
	"time"
)

// Config contains configuration for the journal writer.
type Config struct {
	// BatchSize is the number of rows to accumulate before flushing.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:     100,
		FlushInterval: 1 * time.Second,
	}
}

// eventRow represents a row to be inserted into the marketplace_events
// table. Numeric columns are BIGINT, so unsigned amounts are stored as
// their signed casts.
type eventRow struct {
	EventID string
	Kind    string
	At      int64 // Microseconds

	Collection string
	TokenID    string
	Seller     string
	Buyer      string
	Account    string
	RoyaltyTo  string
	SaleID     string

	Quantity     int64
	Remaining    int64
	UnitPrice    int64 // Base currency units
	OldUnitPrice int64
	Total        int64
	Fee          int64
	Royalty      int64
	Proceeds     int64
	Amount       int64
}

// Metrics holds counters for the journal writer.
type Metrics struct {
	Inserts   int64
	Conflicts int64
	Errors    int64
	Flushes   int64
}
