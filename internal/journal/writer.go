package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemarket/escrow/internal/event"
)

const createTableSQL = `
CREATE TABLE IF NOT EXISTS marketplace_events (
    event_id          TEXT PRIMARY KEY,
    kind              TEXT NOT NULL,
    at                BIGINT NOT NULL,
    collection        TEXT NOT NULL DEFAULT '',
    token_id          TEXT NOT NULL DEFAULT '',
    seller            TEXT NOT NULL DEFAULT '',
    buyer             TEXT NOT NULL DEFAULT '',
    account           TEXT NOT NULL DEFAULT '',
    royalty_recipient TEXT NOT NULL DEFAULT '',
    sale_id           TEXT NOT NULL DEFAULT '',
    quantity          BIGINT NOT NULL DEFAULT 0,
    remaining         BIGINT NOT NULL DEFAULT 0,
    unit_price        BIGINT NOT NULL DEFAULT 0,
    old_unit_price    BIGINT NOT NULL DEFAULT 0,
    total             BIGINT NOT NULL DEFAULT 0,
    fee               BIGINT NOT NULL DEFAULT 0,
    royalty           BIGINT NOT NULL DEFAULT 0,
    seller_proceeds   BIGINT NOT NULL DEFAULT 0,
    amount            BIGINT NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS marketplace_events_at_idx
    ON marketplace_events (at);
CREATE INDEX IF NOT EXISTS marketplace_events_kind_at_idx
    ON marketplace_events (kind, at);
CREATE INDEX IF NOT EXISTS marketplace_events_asset_idx
    ON marketplace_events (collection, token_id, at);
`

// EnsureSchema creates the marketplace_events table and its indexes if they
// do not exist yet.
func EnsureSchema(ctx context.Context, db *pgxpool.Pool) error {
	if _, err := db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("create journal schema: %w", err)
	}
	return nil
}

// Writer consumes events from a feed subscription and writes them to the
// marketplace_events table.
type Writer struct {
	cfg    Config
	logger *slog.Logger

	// Input from the event feed
	src <-chan event.Event

	// Database
	db *pgxpool.Pool

	// Batching
	pending     *event.Queue[eventRow]
	flushTicker *time.Ticker

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	// Metrics
	mu      sync.Mutex
	metrics Metrics
}

// NewWriter creates a new Writer.
func NewWriter(
	cfg Config,
	src <-chan event.Event,
	db *pgxpool.Pool,
	logger *slog.Logger,
) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Writer{
		cfg:     cfg,
		src:     src,
		db:      db,
		logger:  logger,
		pending: event.NewQueue[eventRow](cfg.BatchSize),
	}
}

// Start begins consuming events and writing to the database.
func (w *Writer) Start(ctx context.Context) error {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.flushTicker = time.NewTicker(w.cfg.FlushInterval)

	// Consumer goroutine
	w.wg.Add(1)
	go w.consumeLoop()

	// Flush ticker goroutine
	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("journal writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
	)
	return nil
}

// Stop gracefully shuts down the writer. The final flush runs on the ctx
// passed here, not on the canceled run context.
func (w *Writer) Stop(ctx context.Context) error {
	w.logger.Info("stopping journal writer")

	if w.cancel != nil {
		w.cancel()
	}

	if w.flushTicker != nil {
		w.flushTicker.Stop()
	}

	// Wait for goroutines
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("journal writer stopped")
	case <-ctx.Done():
		w.logger.Warn("journal writer stop timed out")
	}

	// Final flush
	w.flush(ctx)

	return nil
}

// Stats returns current metrics.
func (w *Writer) Stats() Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.metrics
}

// consumeLoop reads from the feed subscription and accumulates rows.
func (w *Writer) consumeLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.src:
			if !ok {
				return
			}
			w.handleEvent(ev)
		}
	}
}

// flushLoop periodically flushes staged rows.
func (w *Writer) flushLoop() {
	defer w.wg.Done()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushTicker.C:
			w.flush(w.ctx)
		}
	}
}

// handleEvent transforms and stages an event.
func (w *Writer) handleEvent(ev event.Event) {
	w.pending.Push(w.transform(ev))

	if w.pending.Len() >= w.cfg.BatchSize {
		w.flush(w.ctx)
	}
}

// transform converts an Event to an eventRow.
func (w *Writer) transform(ev event.Event) eventRow {
	return eventRow{
		EventID:      ev.ID,
		Kind:         string(ev.Kind),
		At:           ev.At,
		Collection:   string(ev.Collection),
		TokenID:      ev.TokenID,
		Seller:       string(ev.Seller),
		Buyer:        string(ev.Buyer),
		Account:      string(ev.Account),
		RoyaltyTo:    string(ev.RoyaltyRecipient),
		SaleID:       ev.SaleID,
		Quantity:     int64(ev.Quantity),
		Remaining:    int64(ev.Remaining),
		UnitPrice:    int64(ev.UnitPrice),
		OldUnitPrice: int64(ev.OldUnitPrice),
		Total:        int64(ev.Total),
		Fee:          int64(ev.Fee),
		Royalty:      int64(ev.Royalty),
		Proceeds:     int64(ev.SellerProceeds),
		Amount:       int64(ev.Amount),
	}
}

// flush drains the staged rows and writes them to the database. A failed
// insert drops the batch; the journal is a best-effort record, the engine
// ledger stays authoritative.
func (w *Writer) flush(ctx context.Context) {
	rows := w.pending.PopBatch(0)
	if len(rows) == 0 {
		return
	}

	start := time.Now()

	conflicts, err := w.batchInsert(ctx, rows)
	if err != nil {
		w.logger.Error("batch insert failed", "error", err, "count", len(rows))
		w.mu.Lock()
		w.metrics.Errors++
		w.mu.Unlock()
		return
	}

	w.mu.Lock()
	w.metrics.Inserts += int64(len(rows) - conflicts)
	w.metrics.Conflicts += int64(conflicts)
	w.metrics.Flushes++
	w.mu.Unlock()

	w.logger.Debug("flushed events",
		"count", len(rows),
		"conflicts", conflicts,
		"duration", time.Since(start),
	)
}

// batchInsert inserts rows using pgx.Batch with ON CONFLICT DO NOTHING.
func (w *Writer) batchInsert(ctx context.Context, rows []eventRow) (conflicts int, err error) {
	batch := &pgx.Batch{}
	for _, r := range rows {
		batch.Queue(`
			INSERT INTO marketplace_events (
				event_id, kind, at, collection, token_id, seller, buyer,
				account, royalty_recipient, sale_id, quantity, remaining,
				unit_price, old_unit_price, total, fee, royalty,
				seller_proceeds, amount
			)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)
			ON CONFLICT (event_id) DO NOTHING
		`, r.EventID, r.Kind, r.At, r.Collection, r.TokenID, r.Seller, r.Buyer,
			r.Account, r.RoyaltyTo, r.SaleID, r.Quantity, r.Remaining,
			r.UnitPrice, r.OldUnitPrice, r.Total, r.Fee, r.Royalty,
			r.Proceeds, r.Amount)
	}

	results := w.db.SendBatch(ctx, batch)
	defer results.Close()

	for range rows {
		ct, err := results.Exec()
		if err != nil {
			return 0, err
		}
		if ct.RowsAffected() == 0 {
			conflicts++
		}
	}

	return conflicts, nil
}
