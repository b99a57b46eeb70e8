// Package vault implements the native-currency accounts backing the
// marketplace. Buyers fund their accounts by deposit; the engine moves value
// between accounts during settlement and withdrawal.
package vault

import (
	"context"
	"errors"
	"sync"

	"github.com/tidemarket/escrow/internal/model"
)

// Errors
var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrZeroAddress       = errors.New("zero address")
	ErrAmountOverflow    = errors.New("amount overflow")
)

// Vault holds per-address balances in base units. All methods are safe for
// concurrent use.
type Vault struct {
	mu       sync.RWMutex
	accounts map[model.Address]uint64
	supply   uint64
}

// New creates an empty vault.
func New() *Vault {
	return &Vault{
		accounts: make(map[model.Address]uint64),
	}
}

// Deposit credits amount to account from outside the system.
func (v *Vault) Deposit(account model.Address, amount uint64) error {
	if account.IsZero() {
		return ErrZeroAddress
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.accounts[account]+amount < v.accounts[account] {
		return ErrAmountOverflow
	}
	if v.supply+amount < v.supply {
		return ErrAmountOverflow
	}

	v.accounts[account] += amount
	v.supply += amount
	return nil
}

// Balance returns the balance of account.
func (v *Vault) Balance(account model.Address) uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.accounts[account]
}

// Transfer moves amount from from to to. A transfer never changes the total
// supply.
func (v *Vault) Transfer(ctx context.Context, from, to model.Address, amount uint64) error {
	if from.IsZero() || to.IsZero() {
		return ErrZeroAddress
	}

	v.mu.Lock()
	defer v.mu.Unlock()

	if v.accounts[from] < amount {
		return ErrInsufficientFunds
	}
	if amount == 0 || from == to {
		return nil
	}
	if v.accounts[to]+amount < v.accounts[to] {
		return ErrAmountOverflow
	}

	v.accounts[from] -= amount
	if v.accounts[from] == 0 {
		delete(v.accounts, from)
	}
	v.accounts[to] += amount
	return nil
}

// TotalSupply returns the sum of all balances.
func (v *Vault) TotalSupply() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return v.supply
}
