package model

// -----------------------------------------------------------------------------
// Identity Types
// -----------------------------------------------------------------------------

// Address identifies an account: a seller, buyer, operator, or collection.
// The engine treats addresses as opaque; it never derives meaning from them.
type Address string

// IsZero reports whether the address is unset.
func (a Address) IsZero() bool {
	return a == ""
}

// InterfaceID identifies a custody capability a collection can advertise.
type InterfaceID string

const (
	// InterfaceUniqueUnit marks collections whose tokens are single
	// indivisible units with exactly one owner each.
	InterfaceUniqueUnit InterfaceID = "unique_unit"

	// InterfaceQuantityBearing marks collections whose tokens carry
	// per-owner unit balances.
	InterfaceQuantityBearing InterfaceID = "quantity_bearing"
)

// AssetRef identifies a token within a collection. It is the listing key:
// at most one active listing exists per AssetRef.
type AssetRef struct {
	Collection Address // Collection identity
	TokenID    string  // Token identifier within the collection
}

// String returns the canonical "collection/token" form.
func (r AssetRef) String() string {
	return string(r.Collection) + "/" + r.TokenID
}

// -----------------------------------------------------------------------------
// Market Types
// -----------------------------------------------------------------------------

// Listing is an active sale offer. The listed units are held by the escrow
// account for the life of the listing and leave it only through settlement
// or cancellation.
type Listing struct {
	Collection Address // Collection identity
	TokenID    string  // Token identifier
	Seller     Address // Offer owner
	UnitPrice  uint64  // Price per unit, base units
	Quantity   uint64  // Units remaining for sale
	CreatedAt  int64   // Listing time (µs since epoch), informational only
}

// Ref returns the listing's asset reference.
func (l Listing) Ref() AssetRef {
	return AssetRef{Collection: l.Collection, TokenID: l.TokenID}
}

// SaleReceipt records one completed settlement.
type SaleReceipt struct {
	SaleID           string  // Unique sale identifier
	Collection       Address // Collection identity
	TokenID          string  // Token identifier
	Seller           Address // Selling party
	Buyer            Address // Buying party
	Quantity         uint64  // Units sold
	UnitPrice        uint64  // Price per unit at settlement
	Total            uint64  // UnitPrice * Quantity
	Fee              uint64  // Marketplace fee share
	Royalty          uint64  // Royalty share (0 on primary sales)
	RoyaltyRecipient Address // Royalty beneficiary, empty when Royalty is 0
	SellerProceeds   uint64  // Total - Fee - Royalty
	Remaining        uint64  // Units left on the listing after this sale
	ExecutedAt       int64   // Settlement time (µs since epoch)
}

// Totals aggregates marketplace activity counters.
type Totals struct {
	ActiveListings int    // Listings currently open
	Sales          uint64 // Settlements completed since start
	Volume         uint64 // Cumulative sale value, base units
}
