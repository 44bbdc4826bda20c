package domain

import "github.com/cockroachdb/errors"

var (
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")

	ErrCapacityExceeded   = errors.New("capacity exceeded")
	ErrUnknownReservation = errors.New("unknown reservation")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrEventNotAvailable  = errors.New("event not available")
	ErrInvalidQuantity    = errors.Mark(errors.New("quantity must be positive"), ErrInvalidInput)
	ErrInvalidCapacity    = errors.Mark(errors.New("capacity must not be negative"), ErrInvalidInput)
	ErrCapacityImmutable  = errors.Mark(errors.New("capacity is immutable once published"), ErrConflict)

	ErrEventNotFound      = errors.Mark(errors.New("event not found"), ErrNotFound)
	ErrReservationExpired = errors.Mark(errors.New("reservation expired"), ErrInvalidTransition)

	// Check-in failures. Both still satisfy errors.Is(err, ErrInvalidTransition).
	ErrAlreadyUsed = errors.Mark(errors.New("ticket already used"), ErrInvalidTransition)
	ErrNotValid    = errors.Mark(errors.New("ticket not valid for admission"), ErrInvalidTransition)
)
