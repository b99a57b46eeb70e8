// Package event defines the marketplace event stream: the envelope emitted
// by the engine for every state change, an unbounded queue for staging, and
// a Feed that fans events out to subscribers.
package event

import (
	"github.com/tidemarket/escrow/internal/model"
)

// Kind identifies the type of a marketplace event.
type Kind string

const (
	KindListingCreated    Kind = "listing_created"
	KindListingCanceled   Kind = "listing_canceled"
	KindListingRepriced   Kind = "listing_repriced"
	KindItemSold          Kind = "item_sold"
	KindProceedsWithdrawn Kind = "proceeds_withdrawn"
)

// Event is the flat envelope shared by every kind. Fields that do not apply
// to a kind stay at their zero values and are omitted from JSON; a missing
// numeric key reads back as zero, so the stream stays lossless.
type Event struct {
	ID   string `json:"id"`
	Kind Kind   `json:"kind"`
	At   int64  `json:"at"` // µs since epoch

	Collection       model.Address `json:"collection,omitempty"`
	TokenID          string        `json:"token_id,omitempty"`
	Seller           model.Address `json:"seller,omitempty"`
	Buyer            model.Address `json:"buyer,omitempty"`
	Account          model.Address `json:"account,omitempty"`
	RoyaltyRecipient model.Address `json:"royalty_recipient,omitempty"`
	SaleID           string        `json:"sale_id,omitempty"`

	Quantity       uint64 `json:"quantity,omitempty"`
	Remaining      uint64 `json:"remaining,omitempty"`
	UnitPrice      uint64 `json:"unit_price,omitempty"`
	OldUnitPrice   uint64 `json:"old_unit_price,omitempty"`
	Total          uint64 `json:"total,omitempty"`
	Fee            uint64 `json:"fee,omitempty"`
	Royalty        uint64 `json:"royalty,omitempty"`
	SellerProceeds uint64 `json:"seller_proceeds,omitempty"`
	Amount         uint64 `json:"amount,omitempty"`
}
