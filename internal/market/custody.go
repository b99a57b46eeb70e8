package market

import (
	"context"

	"github.com/tidemarket/escrow/internal/model"
)

// Custody is the engine's view of an asset collection: ownership and
// approval introspection plus the transfer primitive that moves units in
// and out of escrow. The view methods are called while an operation is in
// flight and must not call back into the engine.
type Custody interface {
	// ID returns the collection address listings are keyed by.
	ID() model.Address

	// Supports probes a capability. The engine requires exactly one of
	// model.InterfaceUniqueUnit or model.InterfaceQuantityBearing.
	Supports(id model.InterfaceID) bool

	// BalanceOf returns the units of tokenID held by owner.
	BalanceOf(owner model.Address, tokenID string) uint64

	// OwnerOf returns the single owner of tokenID. Quantity-bearing
	// collections report no owner.
	OwnerOf(tokenID string) (model.Address, bool)

	// CreatorOf returns the account that minted tokenID, the royalty
	// beneficiary candidate.
	CreatorOf(tokenID string) (model.Address, bool)

	// IsApprovedForAll reports whether operator may move all of owner's
	// units.
	IsApprovedForAll(owner, operator model.Address) bool

	// ApprovedOperator returns the per-token approved operator, if the
	// collection supports per-token approvals.
	ApprovedOperator(tokenID string) (model.Address, bool)

	// TransferUnits moves quantity units of tokenID from from to to on
	// behalf of operator.
	TransferUnits(ctx context.Context, operator, from, to model.Address, tokenID string, quantity uint64) error
}

// ValueTransferrer moves native currency between accounts. The engine uses
// it to capture payments, refund overpay, and pay out withdrawals.
type ValueTransferrer interface {
	Transfer(ctx context.Context, from, to model.Address, amount uint64) error
}
