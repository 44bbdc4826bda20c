package domain

import (
	"math"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventInventory_Hold(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name      string
		inv       EventInventory
		qty       int
		wantErr   error
		wantAvail int
	}{
		{"fits exactly", EventInventory{Capacity: 2, Status: EventOpen}, 2, nil, 0},
		{"counts sold and reserved", EventInventory{Capacity: 5, Sold: 2, Reserved: 2, Status: EventOpen}, 2, ErrCapacityExceeded, 1},
		{"zero quantity", EventInventory{Capacity: 5, Status: EventOpen}, 0, ErrInvalidQuantity, 5},
		{"negative quantity", EventInventory{Capacity: 5, Status: EventOpen}, -1, ErrInvalidQuantity, 5},
		{"cancelled event", EventInventory{Capacity: 5, Status: EventCancelled}, 1, ErrEventNotAvailable, 5},
		{"zero capacity", EventInventory{Capacity: 0, Status: EventOpen}, 1, ErrCapacityExceeded, 0},
		{"quantity that would overflow", EventInventory{Capacity: 2, Reserved: 1, Status: EventOpen}, math.MaxInt, ErrCapacityExceeded, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inv := tt.inv
			inv.EventID = uuid.New()
			err := inv.Hold(tt.qty, now)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, tt.inv.Reserved, inv.Reserved)
			} else {
				require.NoError(t, err)
			}
			assert.Equal(t, tt.wantAvail, inv.Available())
			assert.NoError(t, inv.CheckInvariant())
		})
	}
}

func TestEventInventory_CommitAndReturn(t *testing.T) {
	now := time.Now()
	inv, err := NewEventInventory(uuid.New(), 4, now)
	require.NoError(t, err)

	require.NoError(t, inv.Hold(3, now))
	require.NoError(t, inv.Commit(2, now))
	assert.Equal(t, 2, inv.Sold)
	assert.Equal(t, 1, inv.Reserved)

	assert.ErrorIs(t, inv.Return(2, now), ErrInvalidTransition)
	require.NoError(t, inv.Return(1, now))
	assert.Equal(t, 0, inv.Reserved)
	assert.Equal(t, 2, inv.Available())
	assert.ErrorIs(t, inv.Commit(1, now), ErrInvalidTransition)
}

func TestNewEventInventory_NegativeCapacity(t *testing.T) {
	_, err := NewEventInventory(uuid.New(), -1, time.Now())
	assert.ErrorIs(t, err, ErrInvalidCapacity)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestReservation_Lapsed(t *testing.T) {
	now := time.Now()
	r := NewReservation(uuid.New(), 1, now, time.Minute)
	assert.False(t, r.Lapsed(now))
	assert.True(t, r.Lapsed(now.Add(time.Minute)))
	r.Status = ReservationConfirmed
	assert.False(t, r.Lapsed(now.Add(time.Hour)))
}
