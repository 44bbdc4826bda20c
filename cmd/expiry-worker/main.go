package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/robertarktes/ticket-inventory/internal/app"
	"github.com/robertarktes/ticket-inventory/internal/config"
	"github.com/robertarktes/ticket-inventory/internal/expiry"
	"github.com/robertarktes/ticket-inventory/internal/observability"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint, "tix-expiry-worker")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdownOtel()

	logger := observability.NewLogger(cfg.LogLevel)

	repo, closeCRDB, err := app.OpenCRDB(context.Background(), cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeCRDB()

	mongoDB, closeMongo, err := app.OpenMongo(context.Background(), cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeMongo()

	core := app.NewCore(cfg, repo, mongoDB, logger)
	sweeper := expiry.NewSweeper(core.Inventory, core.Reconciler, cfg.SweepBatch, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	sweeper.Run(ctx, cfg.SweepInterval)
	logger.Info("Shutdown expiry worker")
}
