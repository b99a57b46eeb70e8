package client

import (
	"context"
	"fmt"
	"net/url"
)

// listingPath builds the route for one asset, escaping both key parts.
func listingPath(collection, tokenID string) string {
	return "/v1/listings/" + url.PathEscape(collection) + "/" + url.PathEscape(tokenID)
}

// Listings fetches every active listing.
func (c *Client) Listings(ctx context.Context) ([]Listing, error) {
	var resp []Listing
	if err := c.get(ctx, "/v1/listings", &resp); err != nil {
		return nil, fmt.Errorf("get listings: %w", err)
	}
	return resp, nil
}

// GetListing fetches a single listing by collection and token.
func (c *Client) GetListing(ctx context.Context, collection, tokenID string) (*Listing, error) {
	var resp Listing
	if err := c.get(ctx, listingPath(collection, tokenID), &resp); err != nil {
		return nil, fmt.Errorf("get listing %s/%s: %w", collection, tokenID, err)
	}
	return &resp, nil
}

// CreateListing places an asset in escrow and lists it for sale.
func (c *Client) CreateListing(ctx context.Context, params CreateListingParams) (*Listing, error) {
	var resp Listing
	if err := c.post(ctx, "/v1/listings", params, &resp); err != nil {
		return nil, fmt.Errorf("create listing: %w", err)
	}
	return &resp, nil
}

// CancelListing delists an asset and returns it to the seller.
func (c *Client) CancelListing(ctx context.Context, collection, tokenID, caller string) error {
	body := struct {
		Caller string `json:"caller"`
	}{Caller: caller}

	if err := c.post(ctx, listingPath(collection, tokenID)+"/cancel", body, nil); err != nil {
		return fmt.Errorf("cancel listing %s/%s: %w", collection, tokenID, err)
	}
	return nil
}

// Reprice changes the unit price of an active listing.
func (c *Client) Reprice(ctx context.Context, collection, tokenID, seller string, unitPrice uint64) (*Listing, error) {
	body := struct {
		Seller    string `json:"seller"`
		UnitPrice uint64 `json:"unit_price"`
	}{Seller: seller, UnitPrice: unitPrice}

	var resp Listing
	if err := c.post(ctx, listingPath(collection, tokenID)+"/reprice", body, &resp); err != nil {
		return nil, fmt.Errorf("reprice listing %s/%s: %w", collection, tokenID, err)
	}
	return &resp, nil
}

// Buy settles a purchase against an active listing.
func (c *Client) Buy(ctx context.Context, collection, tokenID string, params BuyParams) (*Receipt, error) {
	var resp Receipt
	if err := c.post(ctx, listingPath(collection, tokenID)+"/buy", params, &resp); err != nil {
		return nil, fmt.Errorf("buy %s/%s: %w", collection, tokenID, err)
	}
	return &resp, nil
}
