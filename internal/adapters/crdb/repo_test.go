package crdb_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/robertarktes/ticket-inventory/internal/adapters/crdb"
	"github.com/robertarktes/ticket-inventory/internal/clock"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/inventory"
	"github.com/robertarktes/ticket-inventory/internal/ledger"
	"github.com/robertarktes/ticket-inventory/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"golang.org/x/sync/errgroup"
)

func startCockroach(t *testing.T) *crdb.Repository {
	t.Helper()
	if testing.Short() {
		t.Skip("cockroachdb container test")
	}
	ctx := context.Background()

	crdbContainer, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "cockroachdb/cockroach:v24.1.1",
			Cmd:          []string{"start-single-node", "--insecure"},
			ExposedPorts: []string{"26257/tcp", "8080/tcp"},
			WaitingFor:   wait.ForHTTP("/health?ready=1").WithPort("8080"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = crdbContainer.Terminate(ctx) })

	hostPort, err := crdbContainer.PortEndpoint(ctx, "26257/tcp", "")
	require.NoError(t, err)

	admin, err := pgxpool.New(ctx, "postgresql://root@"+hostPort+"/defaultdb?sslmode=disable")
	require.NoError(t, err)
	_, err = admin.Exec(ctx, "CREATE DATABASE IF NOT EXISTS tix")
	admin.Close()
	require.NoError(t, err)

	pool, err := pgxpool.New(ctx, "postgresql://root@"+hostPort+"/tix?sslmode=disable")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	repo := crdb.NewRepository(pool)
	require.NoError(t, repo.Migrate(ctx))
	return repo
}

func TestInventoryStore_ConcurrentReservesNeverOversell(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()

	svc := inventory.NewService(crdb.NewInventoryStore(repo), clock.NewSystem())
	eventID := uuid.New()
	_, err := svc.Publish(ctx, eventID, 5)
	require.NoError(t, err)

	var g errgroup.Group
	for i := 0; i < 20; i++ {
		g.Go(func() error {
			for {
				_, err := svc.Reserve(ctx, eventID, 1)
				if errors.Is(err, domain.ErrSerializationFailure) {
					continue
				}
				if errors.Is(err, domain.ErrCapacityExceeded) {
					return nil
				}
				return err
			}
		})
	}
	require.NoError(t, g.Wait())

	inv, err := svc.Event(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 5, inv.Reserved)
	assert.Equal(t, 0, inv.Available())
}

func TestInventoryStore_ConfirmReleaseAndExpired(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()

	clk := clock.NewManual(time.Now().UTC().Truncate(time.Microsecond))
	store := crdb.NewInventoryStore(repo)
	svc := inventory.NewService(store, clk, inventory.WithReservationTTL(time.Minute))
	eventID := uuid.New()
	_, err := svc.Publish(ctx, eventID, 3)
	require.NoError(t, err)

	kept, err := svc.Reserve(ctx, eventID, 2)
	require.NoError(t, err)
	lapsed, err := svc.Reserve(ctx, eventID, 1)
	require.NoError(t, err)

	require.NoError(t, svc.Confirm(ctx, kept.ID))

	clk.Advance(2 * time.Minute)
	expired, err := store.Expired(ctx, clk.Now(), 10)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, lapsed.ID, expired[0].ID)

	released, err := svc.ReleaseExpired(ctx, lapsed.ID)
	require.NoError(t, err)
	assert.True(t, released)

	inv, err := svc.Event(ctx, eventID)
	require.NoError(t, err)
	assert.Equal(t, 2, inv.Sold)
	assert.Equal(t, 0, inv.Reserved)

	_, err = svc.Reservation(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrUnknownReservation)
}

func TestTicketStore_LifecycleAndDuplicateReservation(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()

	clk := clock.NewSystem()
	inv := inventory.NewService(crdb.NewInventoryStore(repo), clk)
	l := ledger.New(crdb.NewTicketStore(repo), clk, nil, observability.NewNopLogger())

	eventID := uuid.New()
	_, err := inv.Publish(ctx, eventID, 1)
	require.NoError(t, err)
	res, err := inv.Reserve(ctx, eventID, 1)
	require.NoError(t, err)

	userID := uuid.New()
	ticket, err := l.CreateReserved(ctx, userID, res)
	require.NoError(t, err)

	_, err = l.CreateReserved(ctx, userID, res)
	assert.ErrorIs(t, err, domain.ErrConflict)

	ticket, err = l.Apply(ctx, ticket.ID, domain.PaymentSucceeded, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketValid, ticket.Status)

	operator := uuid.New()
	ticket, err = l.Apply(ctx, ticket.ID, domain.CheckedIn, operator)
	require.NoError(t, err)
	require.NotNil(t, ticket.UsedAt)
	require.NotNil(t, ticket.CheckedInBy)
	assert.Equal(t, operator, *ticket.CheckedInBy)

	_, err = l.Apply(ctx, ticket.ID, domain.CheckedIn, uuid.New())
	assert.ErrorIs(t, err, domain.ErrAlreadyUsed)

	byUser, err := l.ByUser(ctx, userID)
	require.NoError(t, err)
	require.Len(t, byUser, 1)
	assert.Equal(t, domain.TicketUsed, byUser[0].Status)

	_, err = l.Get(ctx, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)

	var relayed []string
	_, err = repo.Relay(ctx, 10, func(ctx context.Context, rec crdb.OutboxRecord) error {
		relayed = append(relayed, rec.EventType)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"ticket.confirmed", "ticket.used"}, relayed)
}

func TestRepository_OutboxRelay(t *testing.T) {
	repo := startCockroach(t)
	ctx := context.Background()

	occurred := time.Date(2025, 11, 20, 18, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		rec, err := crdb.OutboxRecordFor(domain.Event{
			ID:         uuid.New(),
			Type:       domain.EventTicketConfirmed,
			TicketID:   uuid.New(),
			OccurredAt: occurred.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
		require.NoError(t, repo.WithTx(ctx, func(tx pgx.Tx) error {
			if err := repo.InsertOutbox(ctx, tx, rec); err != nil {
				return err
			}
			return repo.InsertOutbox(ctx, tx, rec)
		}), "a repeated dedupe key is skipped")
	}

	oldest, pending, err := repo.OldestPending(ctx)
	require.NoError(t, err)
	assert.True(t, pending)
	assert.True(t, occurred.Equal(oldest), "created_at keeps the time the event occurred")

	calls := 0
	published, err := repo.Relay(ctx, 10, func(ctx context.Context, rec crdb.OutboxRecord) error {
		calls++
		if calls == 3 {
			return errors.New("broker down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, published)

	published, err = repo.Relay(ctx, 10, func(ctx context.Context, rec crdb.OutboxRecord) error { return nil })
	require.NoError(t, err)
	assert.Equal(t, 1, published)

	_, pending, err = repo.OldestPending(ctx)
	require.NoError(t, err)
	assert.False(t, pending)
}
