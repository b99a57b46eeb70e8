package token

import (
	"context"
	"fmt"
	"sync"

	"github.com/tidemarket/escrow/internal/model"
)

// DeedCollection is a unique-unit collection: every token has exactly one
// owner and transfers always move the whole token. Approvals follow the
// deed model, a per-token approved operator plus owner-wide operator grants.
type DeedCollection struct {
	id    model.Address
	admin model.Address

	mu sync.RWMutex

	// Token state indexed by token ID.
	owners    map[string]model.Address
	approvals map[string]model.Address
	creators  map[string]model.Address

	// owner -> operator -> approved for all tokens of that owner.
	operators map[model.Address]map[model.Address]bool

	// Accounts allowed to mint. The admin is implicitly a minter.
	minters map[model.Address]bool

	// Destinations that must acknowledge incoming units.
	receivers map[model.Address]UnitReceiver
}

// NewDeedCollection creates an empty deed collection administered by admin.
func NewDeedCollection(id, admin model.Address) *DeedCollection {
	return &DeedCollection{
		id:        id,
		admin:     admin,
		owners:    make(map[string]model.Address),
		approvals: make(map[string]model.Address),
		creators:  make(map[string]model.Address),
		operators: make(map[model.Address]map[model.Address]bool),
		minters:   make(map[model.Address]bool),
		receivers: make(map[model.Address]UnitReceiver),
	}
}

// ID returns the collection address.
func (c *DeedCollection) ID() model.Address {
	return c.id
}

// Supports reports whether the collection implements the probed capability.
func (c *DeedCollection) Supports(id model.InterfaceID) bool {
	return id == model.InterfaceUniqueUnit
}

// Mint creates tokenID owned by to. Deed tokens are indivisible, so quantity
// must be 1. The caller is recorded as the token's creator.
func (c *DeedCollection) Mint(ctx context.Context, caller, to model.Address, tokenID string, quantity uint64) error {
	if quantity != 1 {
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
	if _, ok := c.owners[tokenID]; ok {
		c.mu.Unlock()
		return ErrExists
	}

	c.owners[tokenID] = to
	c.creators[tokenID] = caller
	receiver := c.receivers[to]
	c.mu.Unlock()

	if receiver == nil {
		return nil
	}
	if err := receiver.OnUnitsReceived(ctx, caller, "", tokenID, 1); err != nil {
		c.mu.Lock()
		delete(c.owners, tokenID)
		delete(c.creators, tokenID)
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrReceiverRejected, err)
	}
	return nil
}

// Approve sets the per-token approved operator. An empty operator clears the
// approval. Only the owner or an owner-wide operator may approve.
func (c *DeedCollection) Approve(caller model.Address, tokenID string, operator model.Address) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	owner, ok := c.owners[tokenID]
	if !ok {
		return ErrUnknownToken
	}
	if caller != owner && !c.operators[owner][caller] {
		return ErrNotAuthorized
	}

	if operator.IsZero() {
		delete(c.approvals, tokenID)
	} else {
		c.approvals[tokenID] = operator
	}
	return nil
}

// SetApprovalForAll grants or revokes operator over every token the caller
// owns now or later.
func (c *DeedCollection) SetApprovalForAll(caller, operator model.Address, approved bool) error {
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
func (c *DeedCollection) GrantMinter(caller, account model.Address) error {
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

// RevokeMinter removes account from the minter set. Admin only. The admin's
// implicit minter role cannot be revoked.
func (c *DeedCollection) RevokeMinter(caller, account model.Address) error {
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
func (c *DeedCollection) RegisterReceiver(account model.Address, r UnitReceiver) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r == nil {
		delete(c.receivers, account)
	} else {
		c.receivers[account] = r
	}
}

// TransferUnits moves tokenID from from to to on behalf of operator. The
// operator must be the owner, the per-token approved operator, or an
// owner-wide operator. Any per-token approval is cleared by the transfer.
//
// The lock is released around the receiver callback so the receiver may
// inspect the collection; a rejection reverses the transfer.
func (c *DeedCollection) TransferUnits(ctx context.Context, operator, from, to model.Address, tokenID string, quantity uint64) error {
	if quantity != 1 {
		return ErrBadQuantity
	}
	if to.IsZero() {
		return ErrZeroAddress
	}

	c.mu.Lock()
	owner, ok := c.owners[tokenID]
	if !ok {
		c.mu.Unlock()
		return ErrUnknownToken
	}
	if owner != from {
		c.mu.Unlock()
		return ErrNotOwner
	}
	if operator != owner && c.approvals[tokenID] != operator && !c.operators[owner][operator] {
		c.mu.Unlock()
		return ErrNotAuthorized
	}

	prevApproval := c.approvals[tokenID]
	c.owners[tokenID] = to
	delete(c.approvals, tokenID)
	receiver := c.receivers[to]
	c.mu.Unlock()

	if receiver == nil {
		return nil
	}
	if err := receiver.OnUnitsReceived(ctx, operator, from, tokenID, 1); err != nil {
		c.mu.Lock()
		c.owners[tokenID] = from
		if !prevApproval.IsZero() {
			c.approvals[tokenID] = prevApproval
		}
		c.mu.Unlock()
		return fmt.Errorf("%w: %w", ErrReceiverRejected, err)
	}
	return nil
}

// BalanceOf returns 1 if owner holds tokenID, else 0.
func (c *DeedCollection) BalanceOf(owner model.Address, tokenID string) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.owners[tokenID] == owner {
		return 1
	}
	return 0
}

// OwnerOf returns the owner of tokenID.
func (c *DeedCollection) OwnerOf(tokenID string) (model.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	owner, ok := c.owners[tokenID]
	return owner, ok
}

// CreatorOf returns the account that minted tokenID.
func (c *DeedCollection) CreatorOf(tokenID string) (model.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	creator, ok := c.creators[tokenID]
	return creator, ok
}

// IsApprovedForAll reports whether operator holds an owner-wide grant from
// owner.
func (c *DeedCollection) IsApprovedForAll(owner, operator model.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.operators[owner][operator]
}

// ApprovedOperator returns the per-token approved operator for tokenID.
func (c *DeedCollection) ApprovedOperator(tokenID string) (model.Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	operator, ok := c.approvals[tokenID]
	return operator, ok
}

// IsMinter reports whether account may mint.
func (c *DeedCollection) IsMinter(account model.Address) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.isMinterLocked(account)
}

// isMinterLocked checks the minter role (caller must hold lock).
func (c *DeedCollection) isMinterLocked(account model.Address) bool {
	return account == c.admin || c.minters[account]
}
