package domain

import (
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
)

type TicketStatus string

const (
	TicketReserved  TicketStatus = "RESERVED"
	TicketValid     TicketStatus = "VALID"
	TicketUsed      TicketStatus = "USED"
	TicketCancelled TicketStatus = "CANCELLED"
	TicketRefunded  TicketStatus = "REFUNDED"
)

func (s TicketStatus) Terminal() bool {
	return s == TicketUsed || s == TicketCancelled || s == TicketRefunded
}

// TicketEvent is a lifecycle trigger applied to a ticket.
type TicketEvent string

const (
	PaymentSucceeded  TicketEvent = "PAYMENT_SUCCEEDED"
	PaymentFailed     TicketEvent = "PAYMENT_FAILED"
	ReservationLapsed TicketEvent = "RESERVATION_EXPIRED"
	CheckedIn         TicketEvent = "CHECKED_IN"
	RefundApproved    TicketEvent = "REFUND_APPROVED"
)

var TicketEvents = []TicketEvent{PaymentSucceeded, PaymentFailed, ReservationLapsed, CheckedIn, RefundApproved}

var TicketStatuses = []TicketStatus{TicketReserved, TicketValid, TicketUsed, TicketCancelled, TicketRefunded}

type edge struct {
	from  TicketStatus
	event TicketEvent
}

var transitions = map[edge]TicketStatus{
	{TicketReserved, PaymentSucceeded}:  TicketValid,
	{TicketReserved, PaymentFailed}:     TicketCancelled,
	{TicketReserved, ReservationLapsed}: TicketCancelled,
	{TicketValid, CheckedIn}:            TicketUsed,
	{TicketValid, RefundApproved}:       TicketRefunded,
}

// Target returns the status an event leads to.
func (e TicketEvent) Target() TicketStatus {
	for k, to := range transitions {
		if k.event == e {
			return to
		}
	}
	return ""
}

// Ticket is a purchased (or pending) admission for Quantity seats.
type Ticket struct {
	ID            uuid.UUID
	UserID        uuid.UUID
	EventID       uuid.UUID
	ReservationID uuid.UUID
	Quantity      int
	Status        TicketStatus
	CreatedAt     time.Time
	UsedAt        *time.Time
	CheckedInBy   *uuid.UUID
	UpdatedAt     time.Time
}

func NewReservedTicket(userID uuid.UUID, res Reservation, now time.Time) (Ticket, error) {
	if res.Quantity <= 0 {
		return Ticket{}, ErrInvalidQuantity
	}
	return Ticket{
		ID:            uuid.New(),
		UserID:        userID,
		EventID:       res.EventID,
		ReservationID: res.ID,
		Quantity:      res.Quantity,
		Status:        TicketReserved,
		CreatedAt:     now,
		UpdatedAt:     now,
	}, nil
}

// Apply moves the ticket along the lifecycle. Replaying an event whose target is
// already the current status is a no-op, except a second check-in which fails
// with ErrAlreadyUsed. On error the ticket is left untouched.
func (t *Ticket) Apply(event TicketEvent, at time.Time, actor uuid.UUID) (bool, error) {
	to, ok := transitions[edge{t.Status, event}]
	if !ok {
		if event == CheckedIn {
			if t.Status == TicketUsed {
				return false, ErrAlreadyUsed
			}
			return false, errors.Wrapf(ErrNotValid, "ticket %s is %s", t.ID, t.Status)
		}
		if target := event.Target(); target != "" && target == t.Status {
			return false, nil
		}
		return false, errors.Wrapf(ErrInvalidTransition, "%s on %s ticket %s", event, t.Status, t.ID)
	}

	t.Status = to
	t.UpdatedAt = at
	if to == TicketUsed {
		usedAt := at
		by := actor
		t.UsedAt = &usedAt
		t.CheckedInBy = &by
	}
	return true, nil
}
