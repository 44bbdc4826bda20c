package ledger_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/adapters/memory"
	"github.com/robertarktes/ticket-inventory/internal/clock"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/ledger"
	"github.com/robertarktes/ticket-inventory/internal/notify"
	"github.com/robertarktes/ticket-inventory/internal/observability"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type brokenNotifier struct{}

func (brokenNotifier) Notify(context.Context, domain.Event) error {
	return errors.New("dispatcher unavailable")
}

// flakyNotifier fails its first call and records the rest.
type flakyNotifier struct {
	calls int
	notify.Recorder
}

func (f *flakyNotifier) Notify(ctx context.Context, ev domain.Event) error {
	f.calls++
	if f.calls == 1 {
		return errors.New("dispatcher unavailable")
	}
	return f.Recorder.Notify(ctx, ev)
}

func newLedger(n notify.Notifier) (*ledger.Ledger, *clock.Manual) {
	clk := clock.NewManual(time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC))
	return ledger.New(memory.NewTicketStore(), clk, n, observability.NewNopLogger()), clk
}

func reservation(qty int) domain.Reservation {
	return domain.NewReservation(uuid.New(), qty, time.Now(), time.Minute)
}

func TestLedger_CreateReserved(t *testing.T) {
	ctx := context.Background()
	l, clk := newLedger(nil)
	user := uuid.New()
	res := reservation(4)

	tk, err := l.CreateReserved(ctx, user, res)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketReserved, tk.Status)
	assert.Equal(t, res.ID, tk.ReservationID)
	assert.Equal(t, 4, tk.Quantity)
	assert.Equal(t, clk.Now(), tk.CreatedAt)

	got, err := l.ByReservation(ctx, res.ID)
	require.NoError(t, err)
	assert.Equal(t, tk.ID, got.ID)

	_, err = l.CreateReserved(ctx, user, res)
	assert.ErrorIs(t, err, domain.ErrConflict, "one ticket per reservation")

	mine, err := l.ByUser(ctx, user)
	require.NoError(t, err)
	assert.Len(t, mine, 1)
}

func TestLedger_ApplyEmitsEventsOnlyOnChange(t *testing.T) {
	ctx := context.Background()
	rec := &notify.Recorder{}
	l, clk := newLedger(rec)

	tk, err := l.CreateReserved(ctx, uuid.New(), reservation(1))
	require.NoError(t, err)

	clk.Advance(time.Minute)
	valid, err := l.Apply(ctx, tk.ID, domain.PaymentSucceeded, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketValid, valid.Status)
	assert.Equal(t, clk.Now(), valid.UpdatedAt)

	again, err := l.Apply(ctx, tk.ID, domain.PaymentSucceeded, uuid.Nil)
	require.NoError(t, err)
	assert.Equal(t, valid, again)

	_, err = l.Apply(ctx, tk.ID, domain.PaymentFailed, uuid.Nil)
	assert.ErrorIs(t, err, domain.ErrInvalidTransition)

	_, err = l.Apply(ctx, tk.ID, domain.RefundApproved, uuid.Nil)
	require.NoError(t, err)

	assert.Equal(t, []domain.EventType{domain.EventTicketConfirmed, domain.EventTicketRefunded}, rec.Types())
	ev := rec.Events()[0]
	assert.Equal(t, tk.ID, ev.TicketID)
	assert.Equal(t, tk.EventID, ev.EventID)
	assert.Equal(t, tk.UserID, ev.UserID)
}

func TestLedger_NotifierFailureKeepsTransition(t *testing.T) {
	ctx := context.Background()
	l, _ := newLedger(brokenNotifier{})

	tk, err := l.CreateReserved(ctx, uuid.New(), reservation(1))
	require.NoError(t, err)

	_, err = l.Apply(ctx, tk.ID, domain.PaymentFailed, uuid.Nil)
	require.NoError(t, err)

	got, err := l.Get(ctx, tk.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.TicketCancelled, got.Status)
}

func TestLedger_OutboxKeepsEventWhenNotifierFailsBeforeReplay(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTicketStore()
	n := &flakyNotifier{}
	clk := clock.NewManual(time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC))
	l := ledger.New(store, clk, n, observability.NewNopLogger())

	tk, err := l.CreateReserved(ctx, uuid.New(), reservation(1))
	require.NoError(t, err)

	_, err = l.Apply(ctx, tk.ID, domain.PaymentSucceeded, uuid.Nil)
	require.NoError(t, err)
	_, err = l.Apply(ctx, tk.ID, domain.PaymentSucceeded, uuid.Nil)
	require.NoError(t, err)

	assert.Equal(t, 1, n.calls, "replay emits nothing")
	assert.Empty(t, n.Events())

	outbox := store.Outbox()
	require.Len(t, outbox, 1)
	assert.Equal(t, domain.EventTicketConfirmed, outbox[0].Type)
	assert.Equal(t, tk.ID, outbox[0].TicketID)
}

func TestLedger_ApplyUnknownTicket(t *testing.T) {
	l, _ := newLedger(nil)
	_, err := l.Apply(context.Background(), uuid.New(), domain.CheckedIn, uuid.New())
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
