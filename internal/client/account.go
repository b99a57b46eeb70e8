package client

import (
	"context"
	"fmt"
	"net/url"
)

// Proceeds fetches the pending balance of one account.
func (c *Client) Proceeds(ctx context.Context, account string) (*Proceeds, error) {
	var resp Proceeds
	if err := c.get(ctx, "/v1/proceeds/"+url.PathEscape(account), &resp); err != nil {
		return nil, fmt.Errorf("get proceeds %s: %w", account, err)
	}
	return &resp, nil
}

// Withdraw pays out an account's pending proceeds and reports the amount.
func (c *Client) Withdraw(ctx context.Context, account string) (*Proceeds, error) {
	var resp Proceeds
	if err := c.post(ctx, "/v1/proceeds/"+url.PathEscape(account)+"/withdraw", nil, &resp); err != nil {
		return nil, fmt.Errorf("withdraw %s: %w", account, err)
	}
	return &resp, nil
}

// SetFee updates the marketplace fee rate. Only the operator may call it.
func (c *Client) SetFee(ctx context.Context, caller string, feeBps uint64) error {
	body := struct {
		Caller string `json:"caller"`
		FeeBps uint64 `json:"fee_bps"`
	}{Caller: caller, FeeBps: feeBps}

	if err := c.post(ctx, "/v1/fee", body, nil); err != nil {
		return fmt.Errorf("set fee: %w", err)
	}
	return nil
}

// Totals fetches the marketplace activity summary.
func (c *Client) Totals(ctx context.Context) (*Totals, error) {
	var resp Totals
	if err := c.get(ctx, "/v1/totals", &resp); err != nil {
		return nil, fmt.Errorf("get totals: %w", err)
	}
	return &resp, nil
}

// Health reports whether the server is up.
func (c *Client) Health(ctx context.Context) error {
	var resp struct {
		Status string `json:"status"`
	}
	if err := c.get(ctx, "/healthz", &resp); err != nil {
		return fmt.Errorf("health check: %w", err)
	}
	if resp.Status != "ok" {
		return fmt.Errorf("health check: status %q", resp.Status)
	}
	return nil
}
