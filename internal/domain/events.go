package domain

import (
	"time"

	"github.com/google/uuid"
)

type EventType string

const (
	EventTicketConfirmed EventType = "ticket.confirmed"
	EventTicketCancelled EventType = "ticket.cancelled"
	EventTicketUsed      EventType = "ticket.used"
	EventTicketRefunded  EventType = "ticket.refunded"
)

// Event is a domain notification emitted after a ticket changes status.
type Event struct {
	ID         uuid.UUID `json:"id"`
	Type       EventType `json:"type"`
	TicketID   uuid.UUID `json:"ticket_id"`
	EventID    uuid.UUID `json:"event_id"`
	UserID     uuid.UUID `json:"user_id"`
	Quantity   int       `json:"quantity"`
	Actor      uuid.UUID `json:"actor,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// EventFor maps a ticket's new status to the notification it produces.
func EventFor(t Ticket, actor uuid.UUID) (Event, bool) {
	var typ EventType
	switch t.Status {
	case TicketValid:
		typ = EventTicketConfirmed
	case TicketCancelled:
		typ = EventTicketCancelled
	case TicketUsed:
		typ = EventTicketUsed
	case TicketRefunded:
		typ = EventTicketRefunded
	default:
		return Event{}, false
	}
	return Event{
		ID:         uuid.New(),
		Type:       typ,
		TicketID:   t.ID,
		EventID:    t.EventID,
		UserID:     t.UserID,
		Quantity:   t.Quantity,
		Actor:      actor,
		OccurredAt: t.UpdatedAt,
	}, true
}

type PaymentKind string

const (
	PaymentSuccess PaymentKind = "success"
	PaymentFailure PaymentKind = "failure"
	PaymentRefund  PaymentKind = "refund"
)

// PaymentOutcome is a fact reported by the payment provider.
type PaymentOutcome struct {
	TicketID      uuid.UUID   `json:"ticket_id"`
	Kind          PaymentKind `json:"outcome"`
	AmountCents   int64       `json:"amount_cents"`
	TransactionID string      `json:"transaction_id"`
}
