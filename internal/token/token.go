// Package token implements the asset collections the escrow engine trades:
// deed collections that track a single owner per token, and edition
// collections that track per-address unit balances. Collections enforce
// approval and minting rules themselves; the engine only consumes the
// custody surface (ownership views and TransferUnits).
package token

import (
	"context"

	"github.com/tidemarket/escrow/internal/model"
)

// Error is just a basic error.
type Error string

// Error satisfies the error interface.
func (e Error) Error() string {
	return string(e)
}

const (
	ErrUnknownToken        = Error("unknown token")
	ErrExists              = Error("token already exists")
	ErrNotOwner            = Error("sender does not own token")
	ErrNotAuthorized       = Error("caller not authorized")
	ErrNotMinter           = Error("caller lacks minter role")
	ErrBadQuantity         = Error("bad quantity")
	ErrZeroAddress         = Error("zero address")
	ErrInsufficientBalance = Error("insufficient balance")
	ErrReceiverRejected    = Error("receiver rejected transfer")
)

// UnitReceiver is implemented by destinations that must acknowledge
// incoming units. A collection invokes OnUnitsReceived after crediting the
// destination; a non-nil error reverses the transfer.
type UnitReceiver interface {
	OnUnitsReceived(ctx context.Context, operator, from model.Address, tokenID string, quantity uint64) error
}
