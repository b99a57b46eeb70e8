package client

// Listing is an active listing as reported by the API.
type Listing struct {
	Collection string `json:"collection"`
	TokenID    string `json:"token_id"`
	Seller     string `json:"seller"`
	UnitPrice  uint64 `json:"unit_price"`
	Quantity   uint64 `json:"quantity"`
	CreatedAt  int64  `json:"created_at"`
}

// Receipt describes one settled purchase.
type Receipt struct {
	SaleID           string `json:"sale_id"`
	Collection       string `json:"collection"`
	TokenID          string `json:"token_id"`
	Seller           string `json:"seller"`
	Buyer            string `json:"buyer"`
	Quantity         uint64 `json:"quantity"`
	UnitPrice        uint64 `json:"unit_price"`
	Total            uint64 `json:"total"`
	Fee              uint64 `json:"fee"`
	Royalty          uint64 `json:"royalty"`
	RoyaltyRecipient string `json:"royalty_recipient"`
	SellerProceeds   uint64 `json:"seller_proceeds"`
	Remaining        uint64 `json:"remaining"`
	ExecutedAt       int64  `json:"executed_at"`
}

// Proceeds is the pending balance of one account.
type Proceeds struct {
	Account string `json:"account"`
	Amount  uint64 `json:"amount"`
}

// Totals summarizes marketplace activity.
type Totals struct {
	ActiveListings      int    `json:"active_listings"`
	Sales               uint64 `json:"sales"`
	Volume              uint64 `json:"volume"`
	FeeBps              uint64 `json:"fee_bps"`
	ProceedsOutstanding uint64 `json:"proceeds_outstanding"`
}

// CreateListingParams are the inputs for listing an asset.
type CreateListingParams struct {
	Collection string `json:"collection"`
	TokenID    string `json:"token_id"`
	Seller     string `json:"seller"`
	Quantity   uint64 `json:"quantity"`
	UnitPrice  uint64 `json:"unit_price"`
}

// BuyParams are the inputs for purchasing from a listing.
type BuyParams struct {
	Buyer    string `json:"buyer"`
	Quantity uint64 `json:"quantity"`
	Payment  uint64 `json:"payment"`
}
