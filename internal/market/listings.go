package market

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tidemarket/escrow/internal/event"
	"github.com/tidemarket/escrow/internal/model"
)

// List places quantity units of ref into escrow at unitPrice per unit. The
// seller must own the units (or hold at least quantity of them) and must
// have pre-authorized the escrow account to move them; the units are pulled
// into escrow custody before the listing is recorded.
func (e *Engine) List(ctx context.Context, seller model.Address, ref model.AssetRef, quantity, unitPrice uint64) error {
	if reentrant(ctx) {
		return ErrReentrantCall
	}
	if unitPrice == 0 {
		return ErrInvalidPrice
	}
	if quantity == 0 {
		return ErrInvalidQuantity
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	coll, ok := e.collections[ref.Collection]
	if !ok {
		return ErrUnsupportedAsset
	}
	if _, exists := e.listings[ref]; exists {
		return ErrAlreadyListed
	}

	switch {
	case coll.Supports(model.InterfaceUniqueUnit):
		if quantity != 1 {
			return ErrInvalidQuantity
		}
		owner, ok := coll.OwnerOf(ref.TokenID)
		if !ok || owner != seller {
			return ErrNotAuthorized
		}
	case coll.Supports(model.InterfaceQuantityBearing):
		if coll.BalanceOf(seller, ref.TokenID) < quantity {
			return ErrInvalidQuantity
		}
	default:
		return ErrUnsupportedAsset
	}

	if !e.approvedForEscrow(coll, seller, ref.TokenID) {
		return ErrNotApproved
	}

	// Pull the units into escrow custody, then record the listing.
	err := coll.TransferUnits(outboundContext(ctx), e.cfg.EscrowAccount, seller, e.cfg.EscrowAccount, ref.TokenID, quantity)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	now := time.Now().UnixMicro()
	e.stateMu.Lock()
	e.listings[ref] = &model.Listing{
		Collection: ref.Collection,
		TokenID:    ref.TokenID,
		Seller:     seller,
		UnitPrice:  unitPrice,
		Quantity:   quantity,
		CreatedAt:  now,
	}
	e.stateMu.Unlock()

	e.publishLocked(event.Event{
		ID:         uuid.NewString(),
		Kind:       event.KindListingCreated,
		At:         now,
		Collection: ref.Collection,
		TokenID:    ref.TokenID,
		Seller:     seller,
		Quantity:   quantity,
		UnitPrice:  unitPrice,
	})

	e.logger.Info("listing created",
		"collection", ref.Collection,
		"token", ref.TokenID,
		"seller", seller,
		"quantity", quantity,
		"unit_price", unitPrice,
	)
	return nil
}

// Cancel delists ref and returns the remaining units to the seller. The
// caller must be the seller or the operator.
func (e *Engine) Cancel(ctx context.Context, caller model.Address, ref model.AssetRef) error {
	if reentrant(ctx) {
		return ErrReentrantCall
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.listings[ref]
	if !ok {
		return ErrNotListed
	}
	if caller != l.Seller && caller != e.cfg.Operator {
		return ErrNotAuthorized
	}
	coll := e.collections[ref.Collection]

	// Remove the listing before handing custody back.
	e.stateMu.Lock()
	delete(e.listings, ref)
	e.stateMu.Unlock()

	err := coll.TransferUnits(outboundContext(ctx), e.cfg.EscrowAccount, e.cfg.EscrowAccount, l.Seller, ref.TokenID, l.Quantity)
	if err != nil {
		e.stateMu.Lock()
		e.listings[ref] = l
		e.stateMu.Unlock()
		return fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	e.publishLocked(event.Event{
		ID:         uuid.NewString(),
		Kind:       event.KindListingCanceled,
		At:         time.Now().UnixMicro(),
		Collection: ref.Collection,
		TokenID:    ref.TokenID,
		Seller:     l.Seller,
		Quantity:   l.Quantity,
		UnitPrice:  l.UnitPrice,
	})

	e.logger.Info("listing canceled",
		"collection", ref.Collection,
		"token", ref.TokenID,
		"seller", l.Seller,
		"caller", caller,
		"quantity", l.Quantity,
	)
	return nil
}

// Reprice changes the unit price of an active listing in place. Seller
// only; escrowed quantity is untouched.
func (e *Engine) Reprice(ctx context.Context, seller model.Address, ref model.AssetRef, newUnitPrice uint64) error {
	if reentrant(ctx) {
		return ErrReentrantCall
	}
	if newUnitPrice == 0 {
		return ErrInvalidPrice
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.listings[ref]
	if !ok {
		return ErrNotListed
	}
	if seller != l.Seller {
		return ErrNotAuthorized
	}

	old := l.UnitPrice
	e.stateMu.Lock()
	l.UnitPrice = newUnitPrice
	e.stateMu.Unlock()

	e.publishLocked(event.Event{
		ID:           uuid.NewString(),
		Kind:         event.KindListingRepriced,
		At:           time.Now().UnixMicro(),
		Collection:   ref.Collection,
		TokenID:      ref.TokenID,
		Seller:       seller,
		Quantity:     l.Quantity,
		UnitPrice:    newUnitPrice,
		OldUnitPrice: old,
	})

	e.logger.Info("listing repriced",
		"collection", ref.Collection,
		"token", ref.TokenID,
		"seller", seller,
		"old_unit_price", old,
		"unit_price", newUnitPrice,
	)
	return nil
}
