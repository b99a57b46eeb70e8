package market

import (
	"github.com/tidemarket/escrow/internal/model"
)

// RoyaltyPolicy resolves the creator royalty for a sale.
type RoyaltyPolicy interface {
	// RoyaltyFor returns the royalty beneficiary and amount for a sale of
	// tokenID totaling total. A zero beneficiary or amount means no
	// royalty. The engine suppresses the royalty when the beneficiary is
	// the seller and caps it at the post-fee remainder.
	RoyaltyFor(c Custody, tokenID string, total uint64) (model.Address, uint64)
}

// FixedRateRoyalty routes a fixed basis-point share of every sale to the
// token's recorded creator. The rate is not subject to the operator fee
// ceiling; it is clamped to FeeDenominator.
type FixedRateRoyalty struct {
	Bps uint64
}

// RoyaltyFor returns the token's creator and floor(total*Bps/10000).
func (r FixedRateRoyalty) RoyaltyFor(c Custody, tokenID string, total uint64) (model.Address, uint64) {
	if r.Bps == 0 || c == nil {
		return "", 0
	}
	creator, ok := c.CreatorOf(tokenID)
	if !ok {
		return "", 0
	}
	return creator, bpsShare(total, min(r.Bps, FeeDenominator))
}
