package market

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/tidemarket/escrow/internal/event"
	"github.com/tidemarket/escrow/internal/model"
)

const (
	// FeeDenominator is the basis-point scale: rates are parts per 10000.
	FeeDenominator = 10_000

	// MaxFeeBps caps the operator fee at 10%.
	MaxFeeBps = 1_000

	// DefaultFeeBps is the fee rate applied when none is configured.
	DefaultFeeBps = 250

	// DefaultRoyaltyBps is the creator royalty rate applied when none is
	// configured.
	DefaultRoyaltyBps = 250

	// DefaultEventBuffer is the engine event channel capacity.
	DefaultEventBuffer = 1024
)

// DefaultEscrowAccount holds custody of listed assets and captured
// payments unless the configuration names another account.
const DefaultEscrowAccount = model.Address("escrow")

// Config holds Engine configuration.
type Config struct {
	Operator      model.Address // may cancel any listing and set the fee
	FeeRecipient  model.Address // accrues the marketplace fee (defaults to Operator)
	EscrowAccount model.Address // custody account for assets and captured payments
	FeeBps        uint64        // initial fee rate in basis points
	EventBuffer   int           // event channel capacity
}

// DefaultConfig returns sensible defaults. The operator has no default and
// must be set.
func DefaultConfig() Config {
	return Config{
		EscrowAccount: DefaultEscrowAccount,
		FeeBps:        DefaultFeeBps,
		EventBuffer:   DefaultEventBuffer,
	}
}

// Engine owns the listing registry, the proceeds ledger, and the running
// totals. All mutating operations serialize on mu; the state maps are
// additionally guarded by stateMu so that read accessors are safe while an
// operation is mid-flight. Writes require both locks; an operation holding
// mu may read without stateMu because every writer holds mu.
type Engine struct {
	cfg     Config
	bank    ValueTransferrer
	royalty RoyaltyPolicy
	logger  *slog.Logger

	mu      sync.Mutex
	stateMu sync.RWMutex

	collections map[model.Address]Custody
	listings    map[model.AssetRef]*model.Listing
	proceeds    map[model.Address]uint64
	feeBps      uint64
	sales       uint64
	volume      uint64

	events chan event.Event
	closed bool
}

// New creates an Engine. The value transferrer moves native currency
// between buyer, escrow, and payout accounts; royalty may be nil for a
// marketplace without creator royalties.
func New(cfg Config, bank ValueTransferrer, royalty RoyaltyPolicy, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if bank == nil {
		return nil, errors.New("value transferrer is required")
	}
	if cfg.Operator.IsZero() {
		return nil, errors.New("operator address is required")
	}
	if cfg.FeeBps > MaxFeeBps {
		return nil, ErrInvalidFee
	}
	if cfg.FeeRecipient.IsZero() {
		cfg.FeeRecipient = cfg.Operator
	}
	if cfg.EscrowAccount.IsZero() {
		cfg.EscrowAccount = DefaultEscrowAccount
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = DefaultEventBuffer
	}

	return &Engine{
		cfg:         cfg,
		bank:        bank,
		royalty:     royalty,
		logger:      logger,
		collections: make(map[model.Address]Custody),
		listings:    make(map[model.AssetRef]*model.Listing),
		proceeds:    make(map[model.Address]uint64),
		feeBps:      cfg.FeeBps,
		events:      make(chan event.Event, cfg.EventBuffer),
	}, nil
}

// RegisterCollection makes a collection tradeable. Collections cannot be
// replaced once registered.
func (e *Engine) RegisterCollection(c Custody) error {
	if c == nil {
		return errors.New("nil collection")
	}
	id := c.ID()
	if id.IsZero() {
		return errors.New("collection has no address")
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.collections[id]; ok {
		return fmt.Errorf("collection %s already registered", id)
	}

	e.stateMu.Lock()
	e.collections[id] = c
	e.stateMu.Unlock()

	e.logger.Info("collection registered", "collection", id)
	return nil
}

// EscrowAccount returns the custody account the engine operates as.
func (e *Engine) EscrowAccount() model.Address {
	return e.cfg.EscrowAccount
}

// Events returns the engine's event stream. The channel is closed by Close.
func (e *Engine) Events() <-chan event.Event {
	return e.events
}

// Close shuts the event stream down. Operations keep working; they just
// stop emitting.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.stateMu.Lock()
	defer e.stateMu.Unlock()

	if !e.closed {
		e.closed = true
		close(e.events)
	}
}

// OnUnitsReceived acknowledges units arriving at the escrow account during
// a listing pull. The engine accepts every delivery; listings reconcile
// custody themselves. Must not touch engine locks, it is invoked while an
// operation holds them.
func (e *Engine) OnUnitsReceived(ctx context.Context, operator, from model.Address, tokenID string, quantity uint64) error {
	return nil
}

// GetListing returns a copy of the active listing for ref.
func (e *Engine) GetListing(ref model.AssetRef) (model.Listing, bool) {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	l, ok := e.listings[ref]
	if !ok {
		return model.Listing{}, false
	}
	return *l, true
}

// Listings returns a copy of every active listing.
func (e *Engine) Listings() []model.Listing {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	result := make([]model.Listing, 0, len(e.listings))
	for _, l := range e.listings {
		result = append(result, *l)
	}
	return result
}

// FeeBps returns the current fee rate.
func (e *Engine) FeeBps() uint64 {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.feeBps
}

// Totals returns the running marketplace counters.
func (e *Engine) Totals() model.Totals {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	return model.Totals{
		ActiveListings: len(e.listings),
		Sales:          e.sales,
		Volume:         e.volume,
	}
}

// SetFee updates the fee rate applied to future settlements. Operator
// only; the rate may not exceed MaxFeeBps.
func (e *Engine) SetFee(ctx context.Context, caller model.Address, bps uint64) error {
	if reentrant(ctx) {
		return ErrReentrantCall
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if caller != e.cfg.Operator {
		return ErrNotAuthorized
	}
	if bps > MaxFeeBps {
		return ErrInvalidFee
	}

	e.stateMu.Lock()
	e.feeBps = bps
	e.stateMu.Unlock()

	e.logger.Info("fee updated", "fee_bps", bps)
	return nil
}

// publishLocked emits ev without blocking (caller must hold mu). A full
// channel drops the oldest event.
func (e *Engine) publishLocked(ev event.Event) {
	if e.closed {
		return
	}

	select {
	case e.events <- ev:
	default:
		// Channel full, drop oldest by consuming one and retrying.
		select {
		case <-e.events:
		default:
		}
		select {
		case e.events <- ev:
		default:
		}
	}
}

// approvedForEscrow reports whether the escrow account may move owner's
// units of tokenID, via either an owner-wide grant or a per-token approval.
func (e *Engine) approvedForEscrow(coll Custody, owner model.Address, tokenID string) bool {
	if coll.IsApprovedForAll(owner, e.cfg.EscrowAccount) {
		return true
	}
	if op, ok := coll.ApprovedOperator(tokenID); ok && op == e.cfg.EscrowAccount {
		return true
	}
	return false
}
