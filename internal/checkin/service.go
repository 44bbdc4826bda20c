package checkin

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/ledger"
	"github.com/robertarktes/ticket-inventory/internal/observability"
)

// Service admits ticket holders at the gate. A ticket admits exactly once.
type Service struct {
	ledger *ledger.Ledger
	logger observability.Logger
}

func NewService(l *ledger.Ledger, logger observability.Logger) *Service {
	return &Service{ledger: l, logger: logger}
}

// CheckIn marks a VALID ticket USED. Rescanning a used ticket fails with
// domain.ErrAlreadyUsed and leaves the original admission untouched.
func (s *Service) CheckIn(ctx context.Context, ticketID, operatorID uuid.UUID) (domain.Ticket, error) {
	t, err := s.ledger.Apply(ctx, ticketID, domain.CheckedIn, operatorID)
	observability.CheckIns.WithLabelValues(result(err)).Inc()
	if err != nil {
		s.logger.WithError(err).WithFields(map[string]interface{}{
			"ticket_id":   ticketID,
			"operator_id": operatorID,
		}).Warn("admission refused")
		return domain.Ticket{}, err
	}
	return t, nil
}

func result(err error) string {
	switch {
	case err == nil:
		return "admitted"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrAlreadyUsed):
		return "already_used"
	case errors.Is(err, domain.ErrNotValid):
		return "not_valid"
	default:
		return "error"
	}
}
