package http

import (
	"encoding/json"
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/robertarktes/ticket-inventory/internal/domain"
	"github.com/robertarktes/ticket-inventory/internal/idempotency"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// statusFor maps domain errors to a status and a stable error code. More
// specific errors come first since several are marked with a broader one.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrAlreadyUsed):
		return http.StatusConflict, "already_used"
	case errors.Is(err, domain.ErrNotValid):
		return http.StatusConflict, "not_valid"
	case errors.Is(err, domain.ErrReservationExpired):
		return http.StatusConflict, "reservation_expired"
	case errors.Is(err, domain.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, domain.ErrCapacityExceeded):
		return http.StatusConflict, "capacity_exceeded"
	case errors.Is(err, domain.ErrEventNotAvailable):
		return http.StatusConflict, "event_not_available"
	case errors.Is(err, domain.ErrCapacityImmutable):
		return http.StatusConflict, "capacity_immutable"
	case errors.Is(err, domain.ErrSerializationFailure):
		return http.StatusConflict, "retry"
	case errors.Is(err, idempotency.ErrInFlight):
		return http.StatusConflict, "request_in_flight"
	case errors.Is(err, domain.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, domain.ErrUnknownReservation):
		return http.StatusNotFound, "unknown_reservation"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func writeError(w http.ResponseWriter, err error) {
	status, code := statusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	writeJSON(w, status, errorResponse{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}
