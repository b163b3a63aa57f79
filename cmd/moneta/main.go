// moneta opens the configured store, wires the domain core and runs the
// integrity verify pass over it. The pass detects (and with REPAIR_ORPHANS
// cleans up) the partial states the non-atomic cascades can leave behind.
package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"moneta/internal/amqp"
	"moneta/internal/config"
	"moneta/internal/docstore"
	"moneta/internal/docstore/memory"
	"moneta/internal/docstore/sqlite"
	applog "moneta/internal/log"
	"moneta/internal/notify"
	"moneta/internal/predict"
	"moneta/internal/services"
	"moneta/internal/tags"
)

func main() {
	// Load .env for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	cfg := config.Load()
	logger := applog.New(applog.ParseLevel(cfg.LogLevel), "moneta")
	applog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var store docstore.Store
	switch cfg.DataBackend {
	case "sqlite":
		sqliteStore, err := sqlite.Open(cfg.SQLiteDBPath)
		if err != nil {
			logger.Error("Failed to open sqlite store", "error", err, "path", cfg.SQLiteDBPath)
			os.Exit(1)
		}
		defer sqliteStore.Close()
		store = sqliteStore
		logger.Info("Initialized sqlite backend", "path", cfg.SQLiteDBPath)
	default:
		store = memory.New()
		logger.Info("Initialized memory backend")
	}

	taxonomy, err := tags.Open(ctx, store, cfg.TaxonomyKey)
	if err != nil {
		logger.Error("Failed to load taxonomy", "error", err, "key", cfg.TaxonomyKey)
		os.Exit(1)
	}

	events := notify.NewChannel()
	if cfg.AMQPURL != "" {
		client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("Failed to initialize AMQP client, lifecycle events stay local", "error", err)
		} else {
			defer client.Close()
			events.Subscribe(client)
			logger.Info("AMQP lifecycle publishing enabled", "exchange", cfg.AMQPExchange)
		}
	}

	predictor := predict.New(store, cfg.PredictionWindowMonths)
	ledger := services.NewLedgerService(taxonomy, store, events, predictor)

	report, err := services.VerifyIntegrity(ctx, store, taxonomy, cfg.RepairOrphans)
	if err != nil {
		logger.Error("Integrity verify pass failed", "error", err)
		os.Exit(1)
	}

	// Rewrite the taxonomy snapshot: repairs drift from any earlier
	// best-effort persist failure.
	if err := taxonomy.PersistSnapshot(ctx); err != nil {
		logger.Error("Failed to rewrite taxonomy snapshot", "error", err)
		os.Exit(1)
	}

	if err := ledger.RefreshPredictions(ctx); err != nil {
		logger.Error("Failed to load expenses for predictions", "error", err)
		os.Exit(1)
	}

	logger.Info("Verify pass finished",
		"transactions", report.TransactionsScanned,
		"associations", report.AssociationsScanned,
		"orphan_associations", report.OrphanAssociations,
		"unknown_tag_associations", report.UnknownTagAssociations,
		"inconsistent_groups", len(report.InconsistentGroups),
		"repaired_associations", report.RepairedAssociations)
}
