// Package purchase starts a checkout: it reserves capacity and records the
// pending ticket bound to that reservation.
package purchase

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/inventory"
	"github.com/robertarktes/ticket-inventory/internal/ledger"
	"github.com/robertarktes/ticket-inventory/internal/observability"
)

type Service struct {
	inventory *inventory.Service
	ledger    *ledger.Ledger
	logger    observability.Logger
}

func NewService(inv *inventory.Service, l *ledger.Ledger, logger observability.Logger) *Service {
	return &Service{inventory: inv, ledger: l, logger: logger}
}

type Result struct {
	Ticket      domain.Ticket
	Reservation domain.Reservation
}

func (s *Service) Begin(ctx context.Context, userID, eventID uuid.UUID, qty int) (Result, error) {
	if userID == uuid.Nil {
		return Result{}, errors.Wrap(domain.ErrInvalidInput, "user id required")
	}
	res, err := s.inventory.Reserve(ctx, eventID, qty)
	if err != nil {
		return Result{}, err
	}

	t, err := s.ledger.CreateReserved(ctx, userID, res)
	if err != nil {
		// Hand the capacity back now rather than waiting for the sweep.
		if relErr := s.inventory.Release(ctx, res.ID); relErr != nil {
			s.logger.WithError(relErr).WithField("reservation_id", res.ID).
				Error("release after failed ticket creation")
		}
		return Result{}, errors.Wrap(err, "create ticket")
	}
	return Result{Ticket: t, Reservation: res}, nil
}
