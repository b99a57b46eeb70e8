package market

import (
	"context"
	"fmt"
	"math/bits"
	"time"

	"github.com/google/uuid"

	"github.com/tidemarket/escrow/internal/event"
	"github.com/tidemarket/escrow/internal/model"
)

// totalOf returns unitPrice * quantity, rejecting 64-bit overflow.
func totalOf(unitPrice, quantity uint64) (uint64, error) {
	hi, lo := bits.Mul64(unitPrice, quantity)
	if hi != 0 {
		return 0, ErrAmountOverflow
	}
	return lo, nil
}

// bpsShare returns floor(total * bps / 10000). The intermediate product is
// computed in 128 bits, so any total is safe as long as bps does not exceed
// FeeDenominator.
func bpsShare(total, bps uint64) uint64 {
	hi, lo := bits.Mul64(total, bps)
	q, _ := bits.Div64(hi, lo, FeeDenominator)
	return q
}

// Settle executes a purchase of quantity units of ref. The buyer's payment
// is captured in full and must cover unitPrice*quantity; any excess is
// refunded. The split credits the seller, the fee recipient, and the
// royalty beneficiary in the proceeds ledger; the units then leave escrow
// for the buyer. Either every effect commits or none does: a failed refund
// or release rolls the whole settlement back.
func (e *Engine) Settle(ctx context.Context, buyer model.Address, ref model.AssetRef, quantity, payment uint64) (model.SaleReceipt, error) {
	if reentrant(ctx) {
		return model.SaleReceipt{}, ErrReentrantCall
	}
	if quantity == 0 {
		return model.SaleReceipt{}, ErrInvalidQuantity
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	l, ok := e.listings[ref]
	if !ok {
		return model.SaleReceipt{}, ErrNotListed
	}
	if quantity > l.Quantity {
		return model.SaleReceipt{}, ErrInvalidQuantity
	}

	total, err := totalOf(l.UnitPrice, quantity)
	if err != nil {
		return model.SaleReceipt{}, err
	}
	if payment < total {
		return model.SaleReceipt{}, &PriceNotMetError{Required: total, Sent: payment}
	}

	coll := e.collections[ref.Collection]
	fee := bpsShare(total, e.feeBps)

	var royalty uint64
	var royaltyTo model.Address
	if e.royalty != nil {
		royaltyTo, royalty = e.royalty.RoyaltyFor(coll, ref.TokenID, total)
		if royaltyTo.IsZero() || royaltyTo == l.Seller {
			royaltyTo, royalty = "", 0
		}
		if royalty > total-fee {
			royalty = total - fee
		}
		if royalty == 0 {
			royaltyTo = ""
		}
	}
	sellerProceeds := total - fee - royalty

	// Merge the split per account and reject any credit that would
	// overflow, before any value moves.
	pending := make(map[model.Address]uint64, 3)
	for _, c := range []struct {
		account model.Address
		amount  uint64
	}{
		{l.Seller, sellerProceeds},
		{e.cfg.FeeRecipient, fee},
		{royaltyTo, royalty},
	} {
		if c.amount == 0 {
			continue
		}
		pending[c.account] += c.amount
	}
	for account, amount := range pending {
		if e.proceeds[account]+amount < e.proceeds[account] {
			return model.SaleReceipt{}, ErrAmountOverflow
		}
	}
	if e.volume+total < e.volume {
		return model.SaleReceipt{}, ErrAmountOverflow
	}

	// Capture the buyer's payment into escrow.
	err = e.bank.Transfer(outboundContext(ctx), buyer, e.cfg.EscrowAccount, payment)
	if err != nil {
		return model.SaleReceipt{}, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	// Every state change lands before the remaining call-outs; a failure
	// after this point is compensated explicitly.
	prevQuantity := l.Quantity
	e.stateMu.Lock()
	l.Quantity -= quantity
	if l.Quantity == 0 {
		delete(e.listings, ref)
	}
	for account, amount := range pending {
		e.proceeds[account] += amount
	}
	e.sales++
	e.volume += total
	e.stateMu.Unlock()

	// undo reverses the state changes and returns restore to the buyer,
	// leaving only the engine's own value transfers to reverse: units have
	// not left escrow yet.
	undo := func(restore uint64) {
		e.stateMu.Lock()
		l.Quantity = prevQuantity
		e.listings[ref] = l
		for account, amount := range pending {
			e.debitLocked(account, amount)
		}
		e.sales--
		e.volume -= total
		e.stateMu.Unlock()

		if err := e.bank.Transfer(outboundContext(ctx), e.cfg.EscrowAccount, buyer, restore); err != nil {
			e.logger.Error("settlement rollback refund failed",
				"buyer", buyer,
				"amount", restore,
				"error", err,
			)
		}
	}

	if refund := payment - total; refund > 0 {
		err = e.bank.Transfer(outboundContext(ctx), e.cfg.EscrowAccount, buyer, refund)
		if err != nil {
			undo(payment)
			return model.SaleReceipt{}, fmt.Errorf("%w: %w", ErrTransferFailed, err)
		}
	}

	// Release the units last.
	err = coll.TransferUnits(outboundContext(ctx), e.cfg.EscrowAccount, e.cfg.EscrowAccount, buyer, ref.TokenID, quantity)
	if err != nil {
		undo(total)
		return model.SaleReceipt{}, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	now := time.Now().UnixMicro()
	receipt := model.SaleReceipt{
		SaleID:           uuid.NewString(),
		Collection:       ref.Collection,
		TokenID:          ref.TokenID,
		Seller:           l.Seller,
		Buyer:            buyer,
		Quantity:         quantity,
		UnitPrice:        l.UnitPrice,
		Total:            total,
		Fee:              fee,
		Royalty:          royalty,
		RoyaltyRecipient: royaltyTo,
		SellerProceeds:   sellerProceeds,
		Remaining:        l.Quantity,
		ExecutedAt:       now,
	}

	e.publishLocked(event.Event{
		ID:               receipt.SaleID,
		Kind:             event.KindItemSold,
		At:               now,
		Collection:       ref.Collection,
		TokenID:          ref.TokenID,
		Seller:           l.Seller,
		Buyer:            buyer,
		RoyaltyRecipient: royaltyTo,
		SaleID:           receipt.SaleID,
		Quantity:         quantity,
		Remaining:        l.Quantity,
		UnitPrice:        l.UnitPrice,
		Total:            total,
		Fee:              fee,
		Royalty:          royalty,
		SellerProceeds:   sellerProceeds,
	})

	e.logger.Info("item sold",
		"sale_id", receipt.SaleID,
		"collection", ref.Collection,
		"token", ref.TokenID,
		"seller", l.Seller,
		"buyer", buyer,
		"quantity", quantity,
		"total", total,
		"fee", fee,
		"royalty", royalty,
	)
	return receipt, nil
}
