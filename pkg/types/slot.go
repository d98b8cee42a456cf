package types

import "time"

// SlotStatus is the availability of a time slot
type SlotStatus string

const (
	SlotAvailable SlotStatus = "available"
	SlotFull      SlotStatus = "full"
)

// Date and clock layouts used for slot and delivery dates
const (
	DateLayout  = "2006-01-02"
	ClockLayout = "15:04"
)

// TimeSlot is a one-hour delivery window with bounded order capacity.
// Status is full exactly when UsedCapacity >= Capacity.
type TimeSlot struct {
	ID           string     `json:"id"`
	Date         string     `json:"date"`
	StartTime    string     `json:"start_time"`
	EndTime      string     `json:"end_time"`
	Capacity     int        `json:"capacity"`
	UsedCapacity int        `json:"used_capacity"`
	Status       SlotStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
}

// Remaining returns the number of orders the slot can still accept
func (s *TimeSlot) Remaining() int {
	if s.UsedCapacity >= s.Capacity {
		return 0
	}
	return s.Capacity - s.UsedCapacity
}

// Validate checks the capacity invariants of the slot
func (s *TimeSlot) Validate() error {
	if s.Capacity < 0 {
		return ErrNegativeCapacity
	}
	if s.UsedCapacity < 0 || s.UsedCapacity > s.Capacity {
		return ErrUsageOutOfRange
	}
	full := s.UsedCapacity >= s.Capacity
	if full != (s.Status == SlotFull) {
		return ErrSlotStatusMismatch
	}
	return nil
}
