// journalstat summarizes the persisted marketplace event journal.
//
// It connects to the journal database named in the service configuration
// and prints overall activity, a per-kind event breakdown, and the
// busiest collections.
//
// Usage:
//
//	journalstat [-config configs/escrowd.local.yaml] [-top 10]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemarket/escrow/internal/config"
	"github.com/tidemarket/escrow/internal/database"
	"github.com/tidemarket/escrow/internal/event"
)

func main() {
	configPath := flag.String("config", "configs/escrowd.local.yaml", "path to config file")
	top := flag.Int("top", 10, "number of collections to show")
	flag.Parse()

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
	slog.SetDefault(logger)

	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := database.Connect(ctx, cfg.Database.Postgres)
	if err != nil {
		fatal(err)
	}
	defer db.Close()

	if err := report(ctx, db, *top); err != nil {
		fatal(err)
	}
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "journalstat:", err)
	os.Exit(1)
}

func report(ctx context.Context, db *pgxpool.Pool, top int) error {
	var count, first, last int64
	err := db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(MIN(at), 0), COALESCE(MAX(at), 0) FROM marketplace_events`,
	).Scan(&count, &first, &last)
	if err != nil {
		return fmt.Errorf("query journal range: %w", err)
	}

	if count == 0 {
		fmt.Println("journal is empty")
		return nil
	}

	fmt.Printf("Journal: %d events from %s to %s\n\n",
		count,
		time.UnixMicro(first).UTC().Format(time.RFC3339),
		time.UnixMicro(last).UTC().Format(time.RFC3339),
	)

	if err := printKinds(ctx, db); err != nil {
		return err
	}
	if err := printSales(ctx, db); err != nil {
		return err
	}
	return printTopCollections(ctx, db, top)
}

func printKinds(ctx context.Context, db *pgxpool.Pool) error {
	rows, err := db.Query(ctx,
		`SELECT kind, COUNT(*) FROM marketplace_events GROUP BY kind ORDER BY kind`,
	)
	if err != nil {
		return fmt.Errorf("query kinds: %w", err)
	}
	defer rows.Close()

	fmt.Println("Events by kind:")
	for rows.Next() {
		var kind string
		var n int64
		if err := rows.Scan(&kind, &n); err != nil {
			return fmt.Errorf("scan kind row: %w", err)
		}
		fmt.Printf("  %-22s %8d\n", kind, n)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate kinds: %w", err)
	}

	fmt.Println()
	return nil
}

func printSales(ctx context.Context, db *pgxpool.Pool) error {
	var sales, volume, fees, royalties, proceeds int64
	err := db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(total), 0), COALESCE(SUM(fee), 0),
		        COALESCE(SUM(royalty), 0), COALESCE(SUM(proceeds), 0)
		 FROM marketplace_events WHERE kind = $1`,
		string(event.KindItemSold),
	).Scan(&sales, &volume, &fees, &royalties, &proceeds)
	if err != nil {
		return fmt.Errorf("query sales: %w", err)
	}

	var payouts, paidOut int64
	err = db.QueryRow(ctx,
		`SELECT COUNT(*), COALESCE(SUM(amount), 0) FROM marketplace_events WHERE kind = $1`,
		string(event.KindProceedsWithdrawn),
	).Scan(&payouts, &paidOut)
	if err != nil {
		return fmt.Errorf("query withdrawals: %w", err)
	}

	fmt.Printf("Sales:       %d settled, volume %d, fees %d, royalties %d, seller proceeds %d\n",
		sales, volume, fees, royalties, proceeds)
	fmt.Printf("Withdrawals: %d payouts, %d paid out\n\n", payouts, paidOut)
	return nil
}

func printTopCollections(ctx context.Context, db *pgxpool.Pool, top int) error {
	rows, err := db.Query(ctx,
		`SELECT collection, COUNT(*), COALESCE(SUM(quantity), 0), COALESCE(SUM(total), 0)
		 FROM marketplace_events
		 WHERE kind = $1
		 GROUP BY collection
		 ORDER BY COALESCE(SUM(total), 0) DESC
		 LIMIT $2`,
		string(event.KindItemSold), top,
	)
	if err != nil {
		return fmt.Errorf("query collections: %w", err)
	}
	defer rows.Close()

	fmt.Println("Top collections by volume:")
	fmt.Printf("  %-22s %8s %8s %12s\n", "COLLECTION", "SALES", "UNITS", "VOLUME")
	for rows.Next() {
		var collection string
		var sales, units, volume int64
		if err := rows.Scan(&collection, &sales, &units, &volume); err != nil {
			return fmt.Errorf("scan collection row: %w", err)
		}
		fmt.Printf("  %-22s %8d %8d %12d\n", collection, sales, units, volume)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate collections: %w", err)
	}

	return nil
}
