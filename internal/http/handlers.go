package http

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/checkin"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/inventory"
	"github.com/robertarktes/ticket-inventory/internal/ledger"
	"github.com/robertarktes/ticket-inventory/internal/observability"
	"github.com/robertarktes/ticket-inventory/internal/payment"
	"github.com/robertarktes/ticket-inventory/internal/purchase"
)

// Catalog is the source of event capacity. The mongo adapter implements it.
type Catalog interface {
	EventCapacity(ctx context.Context, id uuid.UUID) (int, error)
	SetEventStatus(ctx context.Context, id uuid.UUID, status domain.EventStatus) error
}

// Check reports whether a dependency is reachable.
type Check func(ctx context.Context) error

type Handlers struct {
	inventory  *inventory.Service
	ledger     *ledger.Ledger
	purchase   *purchase.Service
	reconciler *payment.Reconciler
	checkin    *checkin.Service
	catalog    Catalog
	checks     map[string]Check
	logger     observability.Logger
}

type Deps struct {
	Inventory  *inventory.Service
	Ledger     *ledger.Ledger
	Purchase   *purchase.Service
	Reconciler *payment.Reconciler
	CheckIn    *checkin.Service
	Catalog    Catalog
	Checks     map[string]Check
	Logger     observability.Logger
}

func NewHandlers(d Deps) *Handlers {
	return &Handlers{
		inventory:  d.Inventory,
		ledger:     d.Ledger,
		purchase:   d.Purchase,
		reconciler: d.Reconciler,
		checkin:    d.CheckIn,
		catalog:    d.Catalog,
		checks:     d.Checks,
		logger:     d.Logger,
	}
}

type eventResponse struct {
	EventID   uuid.UUID          `json:"event_id"`
	Capacity  int                `json:"capacity"`
	Sold      int                `json:"sold"`
	Reserved  int                `json:"reserved"`
	Available int                `json:"available"`
	Status    domain.EventStatus `json:"status"`
}

func toEventResponse(inv domain.EventInventory) eventResponse {
	return eventResponse{
		EventID:   inv.EventID,
		Capacity:  inv.Capacity,
		Sold:      inv.Sold,
		Reserved:  inv.Reserved,
		Available: inv.Available(),
		Status:    inv.Status,
	}
}

type ticketResponse struct {
	ID            uuid.UUID           `json:"ticket_id"`
	UserID        uuid.UUID           `json:"user_id"`
	EventID       uuid.UUID           `json:"event_id"`
	ReservationID uuid.UUID           `json:"reservation_id"`
	Quantity      int                 `json:"quantity"`
	Status        domain.TicketStatus `json:"status"`
	CreatedAt     time.Time           `json:"created_at"`
	UsedAt        *time.Time          `json:"used_at,omitempty"`
	CheckedInBy   *uuid.UUID          `json:"checked_in_by,omitempty"`
}

func toTicketResponse(t domain.Ticket) ticketResponse {
	return ticketResponse{
		ID:            t.ID,
		UserID:        t.UserID,
		EventID:       t.EventID,
		ReservationID: t.ReservationID,
		Quantity:      t.Quantity,
		Status:        t.Status,
		CreatedAt:     t.CreatedAt,
		UsedAt:        t.UsedAt,
		CheckedInBy:   t.CheckedInBy,
	}
}

// PublishEvent opens an event for sale. Without an explicit capacity in the
// body the catalog's capacity is used.
func (h *Handlers) PublishEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r)
	if !ok {
		return
	}

	var req struct {
		Capacity *int `json:"capacity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, errors.Mark(err, domain.ErrInvalidInput))
		return
	}

	capacity := 0
	if req.Capacity != nil {
		capacity = *req.Capacity
	} else {
		if h.catalog == nil {
			writeError(w, errors.Wrap(domain.ErrInvalidInput, "capacity required"))
			return
		}
		c, err := h.catalog.EventCapacity(r.Context(), eventID)
		if err != nil {
			writeError(w, err)
			return
		}
		capacity = c
	}

	inv, err := h.inventory.Publish(r.Context(), eventID, capacity)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEventResponse(inv))
}

func (h *Handlers) CancelEvent(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r)
	if !ok {
		return
	}
	if err := h.inventory.CancelEvent(r.Context(), eventID); err != nil {
		writeError(w, err)
		return
	}
	if h.catalog != nil {
		if err := h.catalog.SetEventStatus(r.Context(), eventID, domain.EventCancelled); err != nil {
			loggerFrom(r.Context(), h.logger).WithError(err).Warn("catalog status not updated")
		}
	}
	inv, err := h.inventory.Event(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(inv))
}

func (h *Handlers) Availability(w http.ResponseWriter, r *http.Request) {
	eventID, ok := pathID(w, r)
	if !ok {
		return
	}
	inv, err := h.inventory.Event(r.Context(), eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventResponse(inv))
}

func (h *Handlers) CreatePurchase(w http.ResponseWriter, r *http.Request) {
	var req struct {
		EventID  uuid.UUID `json:"event_id"`
		Quantity int       `json:"quantity"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, errors.Mark(err, domain.ErrInvalidInput))
		return
	}

	res, err := h.purchase.Begin(r.Context(), UserID(r.Context()), req.EventID, req.Quantity)
	if err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"ticket_id":      res.Ticket.ID,
		"reservation_id": res.Reservation.ID,
		"status":         res.Ticket.Status,
		"quantity":       res.Ticket.Quantity,
		"expires_at":     res.Reservation.ExpiresAt.Format(time.RFC3339),
	})
}

// GetTicket only shows a ticket to its owner.
func (h *Handlers) GetTicket(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.ledger.Get(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}
	if t.UserID != UserID(r.Context()) {
		writeError(w, domain.ErrNotFound)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(t))
}

func (h *Handlers) ListUserTickets(w http.ResponseWriter, r *http.Request) {
	userID, ok := pathID(w, r)
	if !ok {
		return
	}
	if userID != UserID(r.Context()) {
		http.Error(w, "forbidden", http.StatusForbidden)
		return
	}
	tickets, err := h.ledger.ByUser(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]ticketResponse, 0, len(tickets))
	for _, t := range tickets {
		out = append(out, toTicketResponse(t))
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tickets": out})
}

// CheckIn admits a ticket; the caller is the gate operator.
func (h *Handlers) CheckIn(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	t, err := h.checkin.CheckIn(r.Context(), id, UserID(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(t))
}

func (h *Handlers) PaymentCallback(w http.ResponseWriter, r *http.Request) {
	var out domain.PaymentOutcome
	if err := json.NewDecoder(r.Body).Decode(&out); err != nil {
		writeError(w, errors.Mark(err, domain.ErrInvalidInput))
		return
	}
	t, err := h.reconciler.Apply(r.Context(), out)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTicketResponse(t))
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	failed := map[string]string{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			failed[name] = err.Error()
		}
	}
	if len(failed) > 0 {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{"failed": failed})
		return
	}
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("Ready"))
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return uuid.Nil, false
	}
	return id, true
}
