package market

import "fmt"

// Error is just a basic error.
type Error string

// Error satisfies the error interface.
func (e Error) Error() string {
	return string(e)
}

const (
	ErrNotApproved      = Error("escrow not approved to move asset")
	ErrAlreadyListed    = Error("asset already listed")
	ErrInvalidPrice     = Error("unit price must be positive")
	ErrInvalidQuantity  = Error("invalid quantity")
	ErrUnsupportedAsset = Error("unsupported asset collection")
	ErrNotListed        = Error("asset not listed")
	ErrNotAuthorized    = Error("caller not authorized")
	ErrNoProceeds       = Error("no proceeds to withdraw")
	ErrInvalidFee       = Error("fee exceeds ceiling")
	ErrReentrantCall    = Error("reentrant call rejected")
	ErrAmountOverflow   = Error("amount overflow")
	ErrTransferFailed   = Error("transfer failed")

	// ErrPriceNotMet is the sentinel matched by PriceNotMetError.
	ErrPriceNotMet = Error("payment below required total")
)

// PriceNotMetError reports an underpayment and carries the required total so
// the caller can retry with a corrected amount.
type PriceNotMetError struct {
	Required uint64
	Sent     uint64
}

func (e *PriceNotMetError) Error() string {
	return fmt.Sprintf("payment below required total: need %d, got %d", e.Required, e.Sent)
}

// Is matches ErrPriceNotMet.
func (e *PriceNotMetError) Is(target error) bool {
	return target == ErrPriceNotMet
}
