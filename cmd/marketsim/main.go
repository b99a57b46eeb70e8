// marketsim runs a scripted marketplace session against an in-process
// engine and streams the resulting events to the console.
// Usage: go run ./cmd/marketsim [--verbose]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/tidemarket/escrow/internal/event"
	"github.com/tidemarket/escrow/internal/market"
	"github.com/tidemarket/escrow/internal/model"
	"github.com/tidemarket/escrow/internal/token"
	"github.com/tidemarket/escrow/internal/vault"
)

const (
	operator = model.Address("operator")
	curator  = model.Address("curator")
	ana      = model.Address("ana")
	ben      = model.Address("ben")
	carl     = model.Address("carl")
	dana     = model.Address("dana")
	erin     = model.Address("erin")

	galleryID = model.Address("gallery")
	pressID   = model.Address("press")
)

func main() {
	verbose := flag.Bool("verbose", false, "print full event JSON")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("received shutdown signal")
		cancel()
	}()

	// In-process marketplace: a bank, two collections, the engine.
	bank := vault.New()
	gallery := token.NewDeedCollection(galleryID, curator)
	press := token.NewEditionCollection(pressID, curator)

	cfg := market.DefaultConfig()
	cfg.Operator = operator
	engine, err := market.New(cfg, bank, market.FixedRateRoyalty{Bps: market.DefaultRoyaltyBps}, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}
	for _, coll := range []interface {
		market.Custody
		RegisterReceiver(model.Address, token.UnitReceiver)
	}{gallery, press} {
		if err := engine.RegisterCollection(coll); err != nil {
			logger.Error("failed to register collection", "error", err)
			os.Exit(1)
		}
		coll.RegisterReceiver(engine.EscrowAccount(), engine)
	}

	feed := event.NewFeed(engine.Events(), logger)
	if err := feed.Start(ctx); err != nil {
		logger.Error("failed to start event feed", "error", err)
		os.Exit(1)
	}

	sub, _ := feed.Subscribe(64)
	printerDone := make(chan struct{})
	go func() {
		defer close(printerDone)
		printEvents(ctx, sub, *verbose)
	}()

	logger.Info("running scripted session")
	if err := runScenario(ctx, engine, bank, gallery, press); err != nil {
		logger.Error("scenario failed", "error", err)
		os.Exit(1)
	}

	// Closing the engine ends the stream; wait for the printer to drain.
	engine.Close()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := feed.Stop(shutdownCtx); err != nil {
		logger.Warn("event feed shutdown", "error", err)
	}
	<-printerDone

	totals := engine.Totals()
	logger.Info("session complete",
		"sales", totals.Sales,
		"volume", totals.Volume,
		"active_listings", totals.ActiveListings,
		"outstanding", engine.Outstanding(),
		"bank_supply", bank.TotalSupply(),
	)

	for _, acct := range []model.Address{ana, ben, carl, dana, erin, operator} {
		fmt.Printf("[BALANCE] %-8s bank=%d pending=%d\n", acct, bank.Balance(acct), engine.Proceeds(acct))
	}
}

// runScenario walks one primary sale, an edition run, a royalty-bearing
// resale, a cancellation, and the payouts.
func runScenario(ctx context.Context, engine *market.Engine, bank *vault.Vault, gallery *token.DeedCollection, press *token.EditionCollection) error {
	escrow := engine.EscrowAccount()

	// Artists mint their own work so royalties track them.
	if err := gallery.GrantMinter(curator, ana); err != nil {
		return fmt.Errorf("grant minter: %w", err)
	}
	if err := press.GrantMinter(curator, ben); err != nil {
		return fmt.Errorf("grant minter: %w", err)
	}
	if err := gallery.Mint(ctx, ana, ana, "sunrise-1", 1); err != nil {
		return fmt.Errorf("mint deed: %w", err)
	}
	if err := press.Mint(ctx, ben, ben, "print-7", 50); err != nil {
		return fmt.Errorf("mint editions: %w", err)
	}

	for acct, amount := range map[model.Address]uint64{
		carl: 200_000,
		dana: 200_000,
		erin: 60_000,
	} {
		if err := bank.Deposit(acct, amount); err != nil {
			return fmt.Errorf("deposit %s: %w", acct, err)
		}
	}

	for _, approve := range []func() error{
		func() error { return gallery.SetApprovalForAll(ana, escrow, true) },
		func() error { return gallery.SetApprovalForAll(carl, escrow, true) },
		func() error { return press.SetApprovalForAll(ben, escrow, true) },
	} {
		if err := approve(); err != nil {
			return fmt.Errorf("approve escrow: %w", err)
		}
	}

	sunrise := model.AssetRef{Collection: galleryID, TokenID: "sunrise-1"}
	prints := model.AssetRef{Collection: pressID, TokenID: "print-7"}

	// Primary sale: the creator sells, so no royalty is taken.
	if err := engine.List(ctx, ana, sunrise, 1, 120_000); err != nil {
		return fmt.Errorf("list sunrise-1: %w", err)
	}
	if _, err := engine.Settle(ctx, carl, sunrise, 1, 125_000); err != nil {
		return fmt.Errorf("buy sunrise-1: %w", err)
	}

	// Edition run, partially filled by two buyers.
	if err := engine.List(ctx, ben, prints, 40, 1_000); err != nil {
		return fmt.Errorf("list print-7: %w", err)
	}
	if _, err := engine.Settle(ctx, dana, prints, 25, 25_000); err != nil {
		return fmt.Errorf("buy print-7 x25: %w", err)
	}
	if _, err := engine.Settle(ctx, erin, prints, 10, 10_000); err != nil {
		return fmt.Errorf("buy print-7 x10: %w", err)
	}

	// Resale: the royalty now flows back to the creator.
	if err := engine.List(ctx, carl, sunrise, 1, 160_000); err != nil {
		return fmt.Errorf("relist sunrise-1: %w", err)
	}
	if err := engine.Reprice(ctx, carl, sunrise, 150_000); err != nil {
		return fmt.Errorf("reprice sunrise-1: %w", err)
	}
	if _, err := engine.Settle(ctx, dana, sunrise, 1, 150_000); err != nil {
		return fmt.Errorf("resale sunrise-1: %w", err)
	}

	// The unsold remainder comes back.
	if err := engine.Cancel(ctx, ben, prints); err != nil {
		return fmt.Errorf("cancel print-7: %w", err)
	}

	for _, acct := range []model.Address{ana, ben, carl, operator} {
		if _, err := engine.Withdraw(ctx, acct); err != nil {
			return fmt.Errorf("withdraw %s: %w", acct, err)
		}
	}

	return nil
}

func printEvents(ctx context.Context, sub <-chan event.Event, verbose bool) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}

			if verbose {
				data, _ := json.MarshalIndent(ev, "", "  ")
				fmt.Printf("[EVENT] %s\n", data)
				continue
			}

			switch ev.Kind {
			case event.KindListingCreated:
				fmt.Printf("[LISTED]    %s/%s qty=%d price=%d seller=%s\n",
					ev.Collection, ev.TokenID, ev.Quantity, ev.UnitPrice, ev.Seller)
			case event.KindListingRepriced:
				fmt.Printf("[REPRICED]  %s/%s price=%d (was %d)\n",
					ev.Collection, ev.TokenID, ev.UnitPrice, ev.OldUnitPrice)
			case event.KindListingCanceled:
				fmt.Printf("[CANCELED]  %s/%s qty=%d returned to %s\n",
					ev.Collection, ev.TokenID, ev.Quantity, ev.Seller)
			case event.KindItemSold:
				fmt.Printf("[SOLD]      %s/%s qty=%d total=%d fee=%d royalty=%d buyer=%s remaining=%d\n",
					ev.Collection, ev.TokenID, ev.Quantity, ev.Total, ev.Fee, ev.Royalty, ev.Buyer, ev.Remaining)
			case event.KindProceedsWithdrawn:
				fmt.Printf("[WITHDRAWN] %s amount=%d\n", ev.Account, ev.Amount)
			}
		}
	}
}
