package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTimeSlotValidate(t *testing.T) {
	tests := []struct {
		name string
		slot TimeSlot
		want error
	}{
		{"empty slot available", TimeSlot{Capacity: 3, UsedCapacity: 0, Status: SlotAvailable}, nil},
		{"at capacity is full", TimeSlot{Capacity: 3, UsedCapacity: 3, Status: SlotFull}, nil},
		{"zero capacity is full", TimeSlot{Capacity: 0, UsedCapacity: 0, Status: SlotFull}, nil},
		{"negative capacity", TimeSlot{Capacity: -1, Status: SlotFull}, ErrNegativeCapacity},
		{"overbooked", TimeSlot{Capacity: 2, UsedCapacity: 3, Status: SlotFull}, ErrUsageOutOfRange},
		{"full flag without usage", TimeSlot{Capacity: 2, UsedCapacity: 1, Status: SlotFull}, ErrSlotStatusMismatch},
		{"available flag at capacity", TimeSlot{Capacity: 2, UsedCapacity: 2, Status: SlotAvailable}, ErrSlotStatusMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.slot.Validate()
			if tt.want == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestTimeSlotRemaining(t *testing.T) {
	assert.Equal(t, 2, (&TimeSlot{Capacity: 5, UsedCapacity: 3}).Remaining())
	assert.Equal(t, 0, (&TimeSlot{Capacity: 5, UsedCapacity: 5}).Remaining())
	assert.Equal(t, 0, (&TimeSlot{Capacity: 0}).Remaining())
}

func TestOrderStatusValid(t *testing.T) {
	for _, s := range []OrderStatus{StatusPending, StatusProvisional, StatusConfirmed, StatusDelivered, StatusCancelled} {
		assert.True(t, s.Valid(), s)
	}
	assert.False(t, OrderStatus("shipped").Valid())
	assert.False(t, OrderStatus("").Valid())
}

func TestOrderHasSlot(t *testing.T) {
	empty := ""
	slot := "slot-1"
	assert.False(t, (&Order{}).HasSlot())
	assert.False(t, (&Order{TimeSlotID: &empty}).HasSlot())
	assert.True(t, (&Order{TimeSlotID: &slot}).HasSlot())
}

func TestRoleValid(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleCollaborator.Valid())
	assert.False(t, Role("root").Valid())
}
