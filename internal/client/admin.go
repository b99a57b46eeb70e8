package client

import (
	"context"
	"fmt"
	"net/url"
)

// MintParams issues new units of a token to an owner.
type MintParams struct {
	Caller   string `json:"caller"`
	To       string `json:"to"`
	TokenID  string `json:"token_id"`
	Quantity uint64 `json:"quantity"`
}

// AccountBalance is the funds an account holds in the settlement bank.
type AccountBalance struct {
	Account string `json:"account"`
	Balance uint64 `json:"balance"`
}

func collectionPath(collection, action string) string {
	return "/v1/collections/" + url.PathEscape(collection) + "/" + action
}

// Mint creates units in a collection. The caller needs the minter role.
func (c *Client) Mint(ctx context.Context, collection string, params MintParams) error {
	if err := c.post(ctx, collectionPath(collection, "mint"), params, nil); err != nil {
		return fmt.Errorf("mint %s/%s: %w", collection, params.TokenID, err)
	}
	return nil
}

// SetApproval grants or revokes the escrow account's permission to move
// the owner's units. Sellers need this in place before listing.
func (c *Client) SetApproval(ctx context.Context, collection, owner string, approved bool) error {
	body := struct {
		Owner  string `json:"owner"`
		Revoke bool   `json:"revoke"`
	}{Owner: owner, Revoke: !approved}

	if err := c.post(ctx, collectionPath(collection, "approve"), body, nil); err != nil {
		return fmt.Errorf("set approval %s for %s: %w", collection, owner, err)
	}
	return nil
}

// SetMinter adds or removes an account from a collection's minter set.
// Only the collection admin may call it.
func (c *Client) SetMinter(ctx context.Context, collection, caller, account string, minter bool) error {
	body := struct {
		Caller  string `json:"caller"`
		Account string `json:"account"`
		Revoke  bool   `json:"revoke"`
	}{Caller: caller, Account: account, Revoke: !minter}

	if err := c.post(ctx, collectionPath(collection, "minters"), body, nil); err != nil {
		return fmt.Errorf("set minter %s on %s: %w", account, collection, err)
	}
	return nil
}

// Deposit credits funds to an account and returns the new balance.
func (c *Client) Deposit(ctx context.Context, account string, amount uint64) (*AccountBalance, error) {
	body := struct {
		Amount uint64 `json:"amount"`
	}{Amount: amount}

	var resp AccountBalance
	if err := c.post(ctx, "/v1/accounts/"+url.PathEscape(account)+"/deposit", body, &resp); err != nil {
		return nil, fmt.Errorf("deposit %s: %w", account, err)
	}
	return &resp, nil
}

// Balance fetches an account's bank balance.
func (c *Client) Balance(ctx context.Context, account string) (*AccountBalance, error) {
	var resp AccountBalance
	if err := c.get(ctx, "/v1/accounts/"+url.PathEscape(account), &resp); err != nil {
		return nil, fmt.Errorf("get balance %s: %w", account, err)
	}
	return &resp, nil
}
