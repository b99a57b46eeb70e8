package market

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tidemarket/escrow/internal/event"
	"github.com/tidemarket/escrow/internal/model"
)

// Withdraw pays out account's full accrued proceeds. The balance is zeroed
// strictly before value moves, so a second withdrawal attempt finds
// nothing to claim; a failed payout restores the balance.
func (e *Engine) Withdraw(ctx context.Context, account model.Address) (uint64, error) {
	if reentrant(ctx) {
		return 0, ErrReentrantCall
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	amount := e.proceeds[account]
	if amount == 0 {
		return 0, ErrNoProceeds
	}

	e.stateMu.Lock()
	delete(e.proceeds, account)
	e.stateMu.Unlock()

	err := e.bank.Transfer(outboundContext(ctx), e.cfg.EscrowAccount, account, amount)
	if err != nil {
		e.stateMu.Lock()
		e.proceeds[account] = amount
		e.stateMu.Unlock()
		return 0, fmt.Errorf("%w: %w", ErrTransferFailed, err)
	}

	e.publishLocked(event.Event{
		ID:      uuid.NewString(),
		Kind:    event.KindProceedsWithdrawn,
		At:      time.Now().UnixMicro(),
		Account: account,
		Amount:  amount,
	})

	e.logger.Info("proceeds withdrawn", "account", account, "amount", amount)
	return amount, nil
}

// Proceeds returns account's accrued, unwithdrawn balance.
func (e *Engine) Proceeds(account model.Address) uint64 {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()
	return e.proceeds[account]
}

// Outstanding returns the sum of all accrued balances, the amount of
// captured value not yet withdrawn.
func (e *Engine) Outstanding() uint64 {
	e.stateMu.RLock()
	defer e.stateMu.RUnlock()

	var sum uint64
	for _, amount := range e.proceeds {
		sum += amount
	}
	return sum
}

// debitLocked removes amount from account's balance, deleting empty
// entries (caller must hold stateMu; the account must have been credited
// at least amount).
func (e *Engine) debitLocked(account model.Address, amount uint64) {
	rest := e.proceeds[account] - amount
	if rest == 0 {
		delete(e.proceeds, account)
	} else {
		e.proceeds[account] = rest
	}
}
