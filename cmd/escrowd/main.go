package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tidemarket/escrow/internal/config"
	"github.com/tidemarket/escrow/internal/database"
	"github.com/tidemarket/escrow/internal/event"
	"github.com/tidemarket/escrow/internal/journal"
	"github.com/tidemarket/escrow/internal/market"
	"github.com/tidemarket/escrow/internal/metrics"
	"github.com/tidemarket/escrow/internal/model"
	"github.com/tidemarket/escrow/internal/server"
	"github.com/tidemarket/escrow/internal/token"
	"github.com/tidemarket/escrow/internal/vault"
	"github.com/tidemarket/escrow/internal/version"
)

// collection is the concrete surface shared by both token kinds: the
// engine's custody view, the API's administrative surface, and receiver
// registration.
type collection interface {
	market.Custody
	server.Collection
	RegisterReceiver(account model.Address, r token.UnitReceiver)
}

func main() {
	configPath := flag.String("config", "configs/escrowd.local.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting escrowd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Recreate the logger at the configured level
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Instance.LogLevel),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"addr", cfg.Server.Addr,
		"collections", len(cfg.Market.Collections),
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Build the engine and its collections
	bank := vault.New()

	engineCfg := market.Config{
		Operator:      model.Address(cfg.Market.Operator),
		FeeRecipient:  model.Address(cfg.Market.FeeRecipient),
		EscrowAccount: model.Address(cfg.Market.EscrowAccount),
		FeeBps:        cfg.Market.FeeBps,
		EventBuffer:   cfg.Events.Buffer,
	}
	royalty := market.FixedRateRoyalty{Bps: cfg.Market.RoyaltyBps}

	engine, err := market.New(engineCfg, bank, royalty, logger)
	if err != nil {
		logger.Error("failed to create engine", "error", err)
		os.Exit(1)
	}

	collections := make(map[model.Address]server.Collection, len(cfg.Market.Collections))
	for _, cc := range cfg.Market.Collections {
		coll, err := buildCollection(cc)
		if err != nil {
			logger.Error("failed to build collection", "id", cc.ID, "error", err)
			os.Exit(1)
		}
		if err := engine.RegisterCollection(coll); err != nil {
			logger.Error("failed to register collection", "id", cc.ID, "error", err)
			os.Exit(1)
		}
		coll.RegisterReceiver(engine.EscrowAccount(), engine)
		collections[model.Address(cc.ID)] = coll
		logger.Info("collection registered", "id", cc.ID, "kind", cc.Kind)
	}

	// Fan events out to subscribers
	feed := event.NewFeed(engine.Events(), logger)
	if err := feed.Start(ctx); err != nil {
		logger.Error("failed to start event feed", "error", err)
		os.Exit(1)
	}

	// Metrics
	reg := metrics.NewRegistry()
	sampler := metrics.NewSampler(cfg.Metrics.SampleInterval, engine, reg, logger)
	if err := sampler.Start(ctx); err != nil {
		logger.Error("failed to start metrics sampler", "error", err)
		os.Exit(1)
	}

	// Durable event journal (optional)
	var db *pgxpool.Pool
	var writer *journal.Writer
	if cfg.Journal.Enabled {
		logger.Info("connecting to database",
			"host", cfg.Database.Postgres.Host,
			"port", cfg.Database.Postgres.Port,
			"database", cfg.Database.Postgres.Name,
		)

		db, err = database.Connect(ctx, cfg.Database.Postgres)
		if err != nil {
			logger.Error("failed to connect to database", "error", err)
			os.Exit(1)
		}
		if err := journal.EnsureSchema(ctx, db); err != nil {
			logger.Error("failed to ensure journal schema", "error", err)
			os.Exit(1)
		}

		sub, _ := feed.Subscribe(cfg.Journal.BufferSize)
		writer = journal.NewWriter(journal.Config{
			BatchSize:     cfg.Journal.BatchSize,
			FlushInterval: cfg.Journal.FlushInterval,
		}, sub, db, logger)
		if err := writer.Start(ctx); err != nil {
			logger.Error("failed to start journal writer", "error", err)
			os.Exit(1)
		}
	}

	// HTTP API
	srv := server.New(cfg, engine, feed, bank, collections, reg, logger)
	if err := srv.Start(ctx); err != nil {
		logger.Error("failed to start http server", "error", err)
		os.Exit(1)
	}

	logger.Info("escrowd running",
		"instance_id", cfg.Instance.ID,
		"addr", srv.Addr(),
		"journal", cfg.Journal.Enabled,
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	// Stop the inbound surface first, then drain the event pipeline.
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err)
	}
	if err := sampler.Stop(shutdownCtx); err != nil {
		logger.Warn("metrics sampler shutdown", "error", err)
	}
	engine.Close()
	if err := feed.Stop(shutdownCtx); err != nil {
		logger.Warn("event feed shutdown", "error", err)
	}
	if writer != nil {
		if err := writer.Stop(shutdownCtx); err != nil {
			logger.Warn("journal writer shutdown", "error", err)
		}
	}
	if db != nil {
		db.Close()
	}

	logger.Info("escrowd stopped")
}

// buildCollection constructs the configured token collection.
func buildCollection(cc config.CollectionConfig) (collection, error) {
	id := model.Address(cc.ID)
	admin := model.Address(cc.Admin)

	switch cc.Kind {
	case config.CollectionKindDeed:
		return token.NewDeedCollection(id, admin), nil
	case config.CollectionKindEdition:
		return token.NewEditionCollection(id, admin), nil
	default:
		return nil, fmt.Errorf("unknown collection kind %q", cc.Kind)
	}
}

// parseLevel maps the configured log level onto slog.
func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
