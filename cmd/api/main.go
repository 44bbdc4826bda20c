package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	redisclient "github.com/redis/go-redis/v9"
	mongoadapter "github.com/robertarktes/ticket-inventory/internal/adapters/mongo"
	redisadapter "github.com/robertarktes/ticket-inventory/internal/adapters/redis"
	"github.com/robertarktes/ticket-inventory/internal/app"
	"github.com/robertarktes/ticket-inventory/internal/config"
	httphandler "github.com/robertarktes/ticket-inventory/internal/http"
	"github.com/robertarktes/ticket-inventory/internal/idempotency"
	"github.com/robertarktes/ticket-inventory/internal/observability"
	"github.com/robertarktes/ticket-inventory/internal/rateLimit"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	shutdown, err := observability.SetupOTel(context.Background(), cfg.OTLPEndpoint, "tix-api")
	if err != nil {
		log.Fatalf("failed to setup otel: %v", err)
	}
	defer shutdown()

	logger := observability.NewLogger(cfg.LogLevel)

	crdbRepo, closeCRDB, err := app.OpenCRDB(context.Background(), cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeCRDB()

	mongoDB, closeMongo, err := app.OpenMongo(context.Background(), cfg)
	if err != nil {
		log.Fatalf("%v", err)
	}
	defer closeMongo()
	mongoCatalog := mongoadapter.NewCatalogRepository(mongoDB, logger)

	redisClient := redisclient.NewClient(&redisclient.Options{Addr: cfg.RedisAddr})
	defer redisClient.Close()
	redisCache := redisadapter.NewCache(redisClient)
	idemp := idempotency.NewIdempotency(redisadapter.NewIdempotency(redisClient), cfg.IdempotencyTTL)
	rl := rateLimit.NewRateLimiter(redisCache, cfg.RateLimitPerMin, time.Minute)

	core := app.NewCore(cfg, crdbRepo, mongoDB, logger)

	handlers := httphandler.NewHandlers(httphandler.Deps{
		Inventory:  core.Inventory,
		Ledger:     core.Ledger,
		Purchase:   core.Purchase,
		Reconciler: core.Reconciler,
		CheckIn:    core.CheckIn,
		Catalog:    mongoCatalog,
		Checks: map[string]httphandler.Check{
			"crdb":  crdbRepo.Ping,
			"redis": redisCache.Ping,
			"mongo": func(ctx context.Context) error { return mongoDB.Client().Ping(ctx, readpref.Primary()) },
		},
		Logger: logger,
	})

	if cfg.PaymentCallbackSecret == "" {
		logger.Warn("PAYMENT_CALLBACK_SECRET is empty, payment callbacks are not authenticated")
	}
	r := httphandler.SetupRouter(handlers, logger, rl, idemp, cfg.PaymentCallbackSecret)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %s\n", err)
		}
	}()
	logger.WithField("addr", cfg.HTTPAddr).Info("api listening")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutdown Server ...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server Shutdown:", err)
	}
	logger.Info("Server exiting")
}
