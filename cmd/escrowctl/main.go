// escrowctl is a command line client for the marketplace API.
//
// Usage:
//
//	escrowctl [-addr http://localhost:8080] <command> [args]
//
// Commands:
//
//	health                                            check server liveness
//	listings                                          list all active listings
//	listing <collection> <token>                      show one listing
//	list <collection> <token> <seller> <qty> <price>  create a listing
//	cancel <collection> <token> <caller>              cancel a listing
//	reprice <collection> <token> <seller> <price>     change a listing price
//	buy <collection> <token> <buyer> <qty> <payment>  settle a purchase
//	proceeds <account>                                show pending proceeds
//	withdraw <account>                                pay out pending proceeds
//	set-fee <caller> <bps>                            update the marketplace fee
//	totals                                            show activity totals
//	mint <collection> <caller> <to> <token> <qty>     mint units to an owner
//	approve <collection> <owner>                      let escrow move the owner's units
//	grant-minter <collection> <caller> <account>      add account to the minter set
//	revoke-minter <collection> <caller> <account>     remove account from the minter set
//	deposit <account> <amount>                        credit funds to an account
//	balance <account>                                 show an account's bank balance
//	watch                                             follow the event stream
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/tidemarket/escrow/internal/client"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "marketplace API base URL")
	timeout := flag.Duration("timeout", 10*time.Second, "request timeout")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "escrowctl: missing command (try: listings, totals, watch)")
		os.Exit(2)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		cancel()
	}()

	c := client.New(*addr, client.WithTimeout(*timeout))

	if err := run(ctx, c, *addr, args); err != nil {
		fmt.Fprintln(os.Stderr, "escrowctl:", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, c *client.Client, addr string, args []string) error {
	cmd, rest := args[0], args[1:]

	switch cmd {
	case "health":
		if err := c.Health(ctx); err != nil {
			return err
		}
		fmt.Println("ok")
		return nil

	case "listings":
		listings, err := c.Listings(ctx)
		if err != nil {
			return err
		}
		return printJSON(listings)

	case "listing":
		if len(rest) != 2 {
			return fmt.Errorf("usage: escrowctl listing <collection> <token>")
		}
		l, err := c.GetListing(ctx, rest[0], rest[1])
		if err != nil {
			return err
		}
		return printJSON(l)

	case "list":
		if len(rest) != 5 {
			return fmt.Errorf("usage: escrowctl list <collection> <token> <seller> <qty> <price>")
		}
		qty, err := parseAmount(rest[3])
		if err != nil {
			return err
		}
		price, err := parseAmount(rest[4])
		if err != nil {
			return err
		}
		l, err := c.CreateListing(ctx, client.CreateListingParams{
			Collection: rest[0],
			TokenID:    rest[1],
			Seller:     rest[2],
			Quantity:   qty,
			UnitPrice:  price,
		})
		if err != nil {
			return err
		}
		return printJSON(l)

	case "cancel":
		if len(rest) != 3 {
			return fmt.Errorf("usage: escrowctl cancel <collection> <token> <caller>")
		}
		if err := c.CancelListing(ctx, rest[0], rest[1], rest[2]); err != nil {
			return err
		}
		fmt.Println("canceled")
		return nil

	case "reprice":
		if len(rest) != 4 {
			return fmt.Errorf("usage: escrowctl reprice <collection> <token> <seller> <price>")
		}
		price, err := parseAmount(rest[3])
		if err != nil {
			return err
		}
		l, err := c.Reprice(ctx, rest[0], rest[1], rest[2], price)
		if err != nil {
			return err
		}
		return printJSON(l)

	case "buy":
		if len(rest) != 5 {
			return fmt.Errorf("usage: escrowctl buy <collection> <token> <buyer> <qty> <payment>")
		}
		qty, err := parseAmount(rest[3])
		if err != nil {
			return err
		}
		payment, err := parseAmount(rest[4])
		if err != nil {
			return err
		}
		receipt, err := c.Buy(ctx, rest[0], rest[1], client.BuyParams{
			Buyer:    rest[2],
			Quantity: qty,
			Payment:  payment,
		})
		if err != nil {
			return err
		}
		return printJSON(receipt)

	case "proceeds":
		if len(rest) != 1 {
			return fmt.Errorf("usage: escrowctl proceeds <account>")
		}
		p, err := c.Proceeds(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(p)

	case "withdraw":
		if len(rest) != 1 {
			return fmt.Errorf("usage: escrowctl withdraw <account>")
		}
		p, err := c.Withdraw(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(p)

	case "set-fee":
		if len(rest) != 2 {
			return fmt.Errorf("usage: escrowctl set-fee <caller> <bps>")
		}
		bps, err := parseAmount(rest[1])
		if err != nil {
			return err
		}
		if err := c.SetFee(ctx, rest[0], bps); err != nil {
			return err
		}
		fmt.Printf("fee set to %d bps\n", bps)
		return nil

	case "totals":
		totals, err := c.Totals(ctx)
		if err != nil {
			return err
		}
		return printJSON(totals)

	case "mint":
		if len(rest) != 5 {
			return fmt.Errorf("usage: escrowctl mint <collection> <caller> <to> <token> <qty>")
		}
		qty, err := parseAmount(rest[4])
		if err != nil {
			return err
		}
		if err := c.Mint(ctx, rest[0], client.MintParams{
			Caller:   rest[1],
			To:       rest[2],
			TokenID:  rest[3],
			Quantity: qty,
		}); err != nil {
			return err
		}
		fmt.Printf("minted %d of %s/%s to %s\n", qty, rest[0], rest[3], rest[2])
		return nil

	case "approve":
		if len(rest) != 2 {
			return fmt.Errorf("usage: escrowctl approve <collection> <owner>")
		}
		if err := c.SetApproval(ctx, rest[0], rest[1], true); err != nil {
			return err
		}
		fmt.Println("approved")
		return nil

	case "grant-minter", "revoke-minter":
		if len(rest) != 3 {
			return fmt.Errorf("usage: escrowctl %s <collection> <caller> <account>", cmd)
		}
		grant := cmd == "grant-minter"
		if err := c.SetMinter(ctx, rest[0], rest[1], rest[2], grant); err != nil {
			return err
		}
		if grant {
			fmt.Printf("%s can now mint on %s\n", rest[2], rest[0])
		} else {
			fmt.Printf("%s can no longer mint on %s\n", rest[2], rest[0])
		}
		return nil

	case "deposit":
		if len(rest) != 2 {
			return fmt.Errorf("usage: escrowctl deposit <account> <amount>")
		}
		amount, err := parseAmount(rest[1])
		if err != nil {
			return err
		}
		b, err := c.Deposit(ctx, rest[0], amount)
		if err != nil {
			return err
		}
		return printJSON(b)

	case "balance":
		if len(rest) != 1 {
			return fmt.Errorf("usage: escrowctl balance <account>")
		}
		b, err := c.Balance(ctx, rest[0])
		if err != nil {
			return err
		}
		return printJSON(b)

	case "watch":
		return watch(ctx, addr)

	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
}

// watch follows the event stream until interrupted.
func watch(ctx context.Context, addr string) error {
	endpoint, err := client.StreamURL(addr)
	if err != nil {
		return err
	}

	stream := client.NewStream(client.DefaultStreamConfig(endpoint), nil)
	if err := stream.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer stopCancel()
		stream.Stop(stopCtx)
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-stream.Events():
			if !ok {
				return nil
			}
			if err := printJSON(ev); err != nil {
				return err
			}
		}
	}
}

func printJSON(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal output: %w", err)
	}
	fmt.Println(string(data))
	return nil
}

func parseAmount(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q", s)
	}
	return n, nil
}
