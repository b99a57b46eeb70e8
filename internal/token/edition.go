package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidemarket/escrow/internal/model"
)

// EditionCollection is a quantity-bearing collection: a token is an edition
// run and any address may hold some number of its units. There is no single
// owner and no per-token approval; delegation is owner-wide only.
type EditionCollection struct {
	id    model.Address
	admin model.Address

	mu sync.RWMutex

	// balances[tokenID][holder] = units held. Zero balances are deleted.
	balances map[string]map[model.Address]uint64
	supply   map[string]uint64
	creators map[string]model.Address

	operators map[model.Address]map[model.Address]bool
	minters   map[model.Address]bool
	receivers map[model.Address]UnitReceiver
}

// NewEditionCollection creates an empty edition collection administered by
// admin.
func NewEditionCollection(id, admin model.Address) *EditionCollection {
	return &EditionCollection{
		id:        id,
		admin:     admin,
		balances:  make(map[string]map[model.Address]uint64),
		supply:    make(map[string]uint64),
		creators:  make(map[string]model.Address),
		operators: make(map[model.Address]map[model.Address]bool),
		minters:   make(map[model.Address]bool),
		receivers: make(map[model.Address]UnitReceiver),
	}
}

// ID returns the collection address.
func (c *EditionCollection) ID() model.Address {
	return c.id
}

// Supports reports whether the collection implements the probed capability.
func (c *EditionCollection) Supports(id model.InterfaceID) bool {
	return id == model.InterfaceQuantityBearing
}

// Mint credits quantity units of tokenID to to. The first mint of a token
// records the caller as its creator; only the creator may grow the run
// afterwards.
func (c *EditionCollection) Mint(ctx context.Context, caller, to model.Address, tokenID string, quantity uint64) error {
	if quantity == 0 {
		return ErrBadQuantity
	}
	if to.IsZero() {
		return ErrZeroAddress
	}

	c.mu.Lock()
	if !c.isMinterLocked(caller) {
		c.mu.Unlock()
		return ErrNotMinter
	}
	if creator, ok := c.creators[tokenID]; ok && creator != caller {
		c.mu.Unlock()
		return ErrNotAuthorized
	}
	if c.supply[tokenID]+quantity < c.supply[tokenID] {
		c.mu.Unlock()
		return ErrBadQuantity
	}

	first := false
	if _, ok := c.creators[tokenID]; !ok {
		c.creators[tokenID] = caller
		first = true
	}
	if c.balances[tokenID] == nil {
		c.balances[tokenID] = make(map[model.Address]uint64)
	}
	c.balances[tokenID][to] += quantity
	c.supply[tokenID] += quantity
	receiver := c.receivers[to]
	c.mu.Unlock()

	if receiver == nil {
		return nil
	}
	if err := receiver.OnUnitsReceived(ctx, caller, "", tokenID, quantity); err != nil {
		c.mu.Lock()
		c.debitLocked(tokenID, to, quantity)
		c.supply[tokenID] -= quantity
		if c.supply[tokenID] == 0 {
			delete(c.supply, tokenID)
		}
		if first {
			delete(c.creators, tokenID)
		}
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrReceiverRejected, err)
	}
	return nil
}

// SetApprovalForAll grants or revokes operator over every unit the caller
// holds now or later.
func (c *EditionCollection) SetApprovalForAll(caller, operator model.Address, approved bool) error {
	if operator.IsZero() {
		return ErrZeroAddress
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if approved {
		if c.operators[caller] == nil {
			c.operators[caller] = make(map[model.Address]bool)
		}
		c.operators[caller][operator] = true
	} else {
		delete(c.operators[caller], operator)
	}
	return nil
}

// GrantMinter adds account to the minter set. Admin only.
func (c *EditionCollection) GrantMinter(caller, account model.Address) error {
	if caller != c.admin {
		return ErrNotAuthorized
	}
	if account.IsZero() {
		return ErrZeroAddress
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.minters[account] = true
	return nil
}

// RevokeMinter removes account from the minter set. Admin only.
func (c *EditionCollection) RevokeMinter(caller, account model.Address) error {
	if caller != c.admin {
		return ErrNotAuthorized
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.minters, account)
	return nil
}

// RegisterReceiver installs an acknowledgment hook for units arriving at
// account. A nil receiver removes the hook.
func (c *EditionCollection) RegisterReceiver(account model.Address, r UnitReceiver) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r == nil {
		delete(c.receivers, account)
	} else {
		c.receivers[account] = r
	}
}

// TransferUnits moves quantity units of tokenID from from to to on behalf
// of operator. The operator must be the holder or an owner-wide operator.
//
// The lock is released around the receiver callback so the receiver may
// inspect the collection; a rejection reverses the transfer.
func (c *EditionCollection) TransferUnits(ctx context.Context, operator, from, to model.Address, tokenID string, quantity uint64) error {
	if quantity == 0 {
		return ErrBadQuantity
	}
	if to.IsZero() {
		return ErrZeroAddress
	}

	c.mu.Lock()
	holders, ok := c.balances[tokenID]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownToken
	}
	if operator != from && !c.operators[from][operator] {
		c.mu.Unlock()
		return ErrNotAuthorized
	}
	if holders[from] < quantity {
		c.mu.Unlock()
		return ErrInsufficientBalance
	}
	if holders[to]+quantity < holders[to] {
		c.mu.Unlock()
		return ErrBadQuantity
	}

	c.debitLocked(tokenID, from, quantity)
	c.balances[tokenID][to] += quantity
	receiver := c.receivers[to]
	c.mu.Unlock()

	if receiver == nil {
		return nil
	}
	if err := receiver.OnUnitsReceived(ctx, operator, from, tokenID, quantity); err != nil {
		c.mu.Lock()
		c.debitLocked(tokenID, to, quantity)
		if c.balances[tokenID] == nil {
			c.balances[tokenID] = make(map[model.Address]uint64)
		}
		c.balances[tokenID][from] += quantity
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrReceiverRejected, err)
	}
	return nil
}

// debitLocked removes quantity units of tokenID from holder, deleting empty
// entries (caller must hold write lock and have checked the balance).
func (c *EditionCollection) debitLocked(tokenID string, holder model.Address, quantity uint64) {
	holders := c.balances[tokenID]
	holders[holder] -= quantity
	if holders[holder] == 0 {
		delete(holders, holder)
	}
	if len(holders) == 0 {
		delete(c.balances, tokenID)
	}
}

// BalanceOf returns the units of tokenID held by owner.
func (c *EditionCollection) BalanceOf(owner model.Address, tokenID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.balances[tokenID][owner]
}

// OwnerOf always reports no owner; edition tokens have holders, not owners.
func (c *EditionCollection) OwnerOf(tokenID string) (model.Address, bool) {
	return "", false
}

// CreatorOf returns the account that first minted tokenID.
func (c *EditionCollection) CreatorOf(tokenID string) (model.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	creator, ok := c.creators[tokenID]
	return creator, ok
}

// IsApprovedForAll reports whether operator holds an owner-wide grant from
// owner.
func (c *EditionCollection) IsApprovedForAll(owner, operator model.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.operators[owner][operator]
}

// ApprovedOperator always reports no operator; editions carry no per-token
// approvals.
func (c *EditionCollection) ApprovedOperator(tokenID string) (model.Address, bool) {
	return "", false
}

// Supply returns the total minted units of tokenID.
func (c *EditionCollection) Supply(tokenID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.supply[tokenID]
}

// IsMinter reports whether account may mint.
func (c *EditionCollection) IsMinter(account model.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.isMinterLocked(account)
}

// isMinterLocked checks the minter role (caller must hold lock).
func (c *EditionCollection) isMinterLocked(account model.Address) bool {
	return account == c.admin || c.minters[account]
}
