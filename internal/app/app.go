// Package app wires the core services onto the production adapters. Every
// binary that changes ticket state builds its core here so ticket events
// reach the same outbox and audit trail.
package app

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/ticket-inventory/internal/adapters/crdb"
	mongoadapter "github.com/robertarktes/ticket-inventory/internal/adapters/mongo"
	"github.com/robertarktes/ticket-inventory/internal/checkin"
	"github.com/robertarktes/ticket-inventory/internal/clock"
	"github.com/robertarktes/ticket-inventory/internal/config"
	"github.com/robertarktes/ticket-inventory/internal/inventory"
	"github.com/robertarktes/ticket-inventory/internal/ledger"
	"github.com/robertarktes/ticket-inventory/internal/notify"
	"github.com/robertarktes/ticket-inventory/internal/observability"
	"github.com/robertarktes/ticket-inventory/internal/payment"
	"github.com/robertarktes/ticket-inventory/internal/purchase"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type Core struct {
	Inventory  *inventory.Service
	Ledger     *ledger.Ledger
	Purchase   *purchase.Service
	Reconciler *payment.Reconciler
	CheckIn    *checkin.Service
}

// NewCore builds the services over CockroachDB. Ticket events are written to
// the outbox with the ticket itself and, when db is set, copied to the audit
// trail after commit.
func NewCore(cfg *config.Config, repo *crdb.Repository, db *mongo.Database, logger observability.Logger) *Core {
	clk := clock.NewSystem()

	var notifiers notify.Fanout
	if db != nil {
		notifiers = append(notifiers, mongoadapter.NewAuditLogger(db, logger))
	}

	inv := inventory.NewService(crdb.NewInventoryStore(repo), clk,
		inventory.WithReservationTTL(cfg.ReservationTTL),
		inventory.WithLogger(logger))
	l := ledger.New(crdb.NewTicketStore(repo), clk, notifiers, logger)

	return &Core{
		Inventory:  inv,
		Ledger:     l,
		Purchase:   purchase.NewService(inv, l, logger),
		Reconciler: payment.NewReconciler(inv, l, clk, logger),
		CheckIn:    checkin.NewService(l, logger),
	}
}

// OpenCRDB connects to CockroachDB and applies the schema.
func OpenCRDB(ctx context.Context, cfg *config.Config) (*crdb.Repository, func(), error) {
	pool, err := pgxpool.New(ctx, cfg.CRDBDSN)
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to crdb")
	}
	repo := crdb.NewRepository(pool)
	if err := repo.Migrate(ctx); err != nil {
		pool.Close()
		return nil, nil, errors.Wrap(err, "migrate crdb")
	}
	return repo, pool.Close, nil
}

func OpenMongo(ctx context.Context, cfg *config.Config) (*mongo.Database, func(), error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, nil, errors.Wrap(err, "connect to mongo")
	}
	closeFn := func() { _ = client.Disconnect(context.Background()) }
	return client.Database(cfg.MongoDB), closeFn, nil
}
