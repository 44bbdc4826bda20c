// Package payment turns payment provider outcomes into ticket and inventory
// transitions. Every entry point is safe to call again with the same outcome.
package payment

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/clock"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/inventory"
	"github.com/robertarktes/ticket-inventory/internal/ledger"
	"github.com/robertarktes/ticket-inventory/internal/observability"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type Reconciler struct {
	inventory *inventory.Service
	ledger    *ledger.Ledger
	clock     clock.Clock
	logger    observability.Logger
}

func NewReconciler(inv *inventory.Service, l *ledger.Ledger, clk clock.Clock, logger observability.Logger) *Reconciler {
	return &Reconciler{inventory: inv, ledger: l, clock: clk, logger: logger}
}

// Apply dispatches an outcome delivered by the payment provider.
func (r *Reconciler) Apply(ctx context.Context, out domain.PaymentOutcome) (domain.Ticket, error) {
	ctx, span := observability.Tracer().Start(ctx, "payment.apply", trace.WithAttributes(
		attribute.String("ticket.id", out.TicketID.String()),
		attribute.String("payment.outcome", string(out.Kind)),
	))
	defer span.End()

	log := r.logger.WithFields(map[string]interface{}{
		"ticket_id":      out.TicketID,
		"outcome":        out.Kind,
		"amount_cents":   out.AmountCents,
		"transaction_id": out.TransactionID,
	})

	var (
		t   domain.Ticket
		err error
	)
	switch out.Kind {
	case domain.PaymentSuccess:
		t, err = r.OnPaymentSuccess(ctx, out.TicketID)
	case domain.PaymentFailure:
		t, err = r.OnPaymentFailure(ctx, out.TicketID)
	case domain.PaymentRefund:
		t, err = r.OnRefundApproved(ctx, out.TicketID)
	default:
		err = errors.Wrapf(domain.ErrInvalidInput, "unknown payment outcome %q", out.Kind)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.WithError(err).Warn("payment outcome not applied")
		return domain.Ticket{}, err
	}
	log.WithField("status", t.Status).Info("payment outcome applied")
	return t, nil
}

// OnPaymentSuccess makes the ticket VALID and then converts its reservation
// into sold capacity. If the inventory step fails the call can be repeated;
// the status write is then a no-op and only the confirm runs again.
func (r *Reconciler) OnPaymentSuccess(ctx context.Context, ticketID uuid.UUID) (domain.Ticket, error) {
	t, err := r.ledger.Get(ctx, ticketID)
	if err != nil {
		return domain.Ticket{}, err
	}

	if t.Status == domain.TicketReserved {
		res, err := r.inventory.Reservation(ctx, t.ReservationID)
		if err != nil {
			return domain.Ticket{}, err
		}
		if res.Status != domain.ReservationHeld || res.Lapsed(r.clock.Now()) {
			if _, err := r.expire(ctx, t); err != nil {
				return domain.Ticket{}, err
			}
			return domain.Ticket{}, errors.Wrapf(domain.ErrReservationExpired, "ticket %s", ticketID)
		}
	}

	t, err = r.ledger.Apply(ctx, ticketID, domain.PaymentSucceeded, uuid.Nil)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := r.inventory.Confirm(ctx, t.ReservationID, inventory.IgnoreDeadline()); err != nil {
		return domain.Ticket{}, errors.Wrapf(err, "confirm reservation %s", t.ReservationID)
	}
	return t, nil
}

// OnPaymentFailure cancels the ticket and gives its capacity back.
func (r *Reconciler) OnPaymentFailure(ctx context.Context, ticketID uuid.UUID) (domain.Ticket, error) {
	t, err := r.ledger.Apply(ctx, ticketID, domain.PaymentFailed, uuid.Nil)
	if err != nil {
		return domain.Ticket{}, err
	}
	if err := r.inventory.Release(ctx, t.ReservationID); err != nil {
		return domain.Ticket{}, errors.Wrapf(err, "release reservation %s", t.ReservationID)
	}
	return t, nil
}

// OnRefundApproved marks the ticket refunded. Sold capacity is not returned;
// re-selling the seat is a separate re-publication.
func (r *Reconciler) OnRefundApproved(ctx context.Context, ticketID uuid.UUID) (domain.Ticket, error) {
	return r.ledger.Apply(ctx, ticketID, domain.RefundApproved, uuid.Nil)
}

// SettleExpired resolves a reservation that outlived its deadline, driving
// the owning ticket to a consistent end state first. It reports whether
// capacity went back to the pool.
func (r *Reconciler) SettleExpired(ctx context.Context, res domain.Reservation) (bool, error) {
	t, err := r.ledger.ByReservation(ctx, res.ID)
	if errors.Is(err, domain.ErrNotFound) {
		// Reserved but the ticket was never written.
		return r.inventory.ReleaseExpired(ctx, res.ID)
	}
	if err != nil {
		return false, err
	}
	return r.expire(ctx, t)
}

func (r *Reconciler) expire(ctx context.Context, t domain.Ticket) (bool, error) {
	if t.Status == domain.TicketReserved {
		var err error
		t, err = r.ledger.Apply(ctx, t.ID, domain.ReservationLapsed, uuid.Nil)
		if errors.Is(err, domain.ErrInvalidTransition) {
			// Lost the race to a payment outcome; act on what won.
			t, err = r.ledger.Get(ctx, t.ID)
		}
		if err != nil {
			return false, err
		}
	}

	switch t.Status {
	case domain.TicketCancelled:
		res, err := r.inventory.Reservation(ctx, t.ReservationID)
		if err != nil {
			return false, err
		}
		if res.Lapsed(r.clock.Now()) {
			return r.inventory.ReleaseExpired(ctx, t.ReservationID)
		}
		if res.Status == domain.ReservationHeld {
			return true, r.inventory.Release(ctx, t.ReservationID)
		}
		return false, nil
	case domain.TicketReserved:
		return false, nil
	default:
		// Payment went through before the deadline; finish the confirm.
		err := r.inventory.Confirm(ctx, t.ReservationID, inventory.IgnoreDeadline())
		return false, err
	}
}
