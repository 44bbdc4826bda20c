package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/robertarktes/ticket-inventory/internal/adapters/rabbit"
	"github.com/robertarktes/ticket-inventory/internal/app"
	"github.com/robertarktes/ticket-inventory/internal/config"
	"github.com/robertarktes/ticket-inventory/internal/observability"
	"github.com/robertarktes/ticket-inventory/internal/payment"
)

const prefetch = 16

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdownOtel, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint, "tix-payment-worker")
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

	conn, err := amqp.Dial(cfg.RabbitURL)
	if err != nil {
		log.Fatalf("failed to connect to rabbitmq: %v", err)
	}
	defer conn.Close()
	consumer, err := rabbit.NewConsumer(conn, cfg.PaymentsQueue, prefetch)
	if err != nil {
		log.Fatalf("failed to create consumer: %v", err)
	}
	defer consumer.Close()

	core := app.NewCore(cfg, repo, mongoDB, logger)
	worker := payment.NewWorker(core.Reconciler, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	deliveries, err := consumer.Consume(ctx)
	if err != nil {
		log.Fatalf("failed to consume %s: %v", cfg.PaymentsQueue, err)
	}

	logger.WithField("queue", cfg.PaymentsQueue).Info("payment worker started")
	if err := worker.Run(ctx, deliveries); err != nil && !errors.Is(err, context.Canceled) {
		logger.WithError(err).Error("payment worker stopped")
	}
	logger.Info("Shutdown payment worker")
}
