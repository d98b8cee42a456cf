package types

import "errors"

// Domain errors for type validation
var (
	// Time slot invariants
	ErrNegativeCapacity   = errors.New("capacity must be >= 0")
	ErrUsageOutOfRange    = errors.New("used capacity must be between 0 and capacity")
	ErrSlotStatusMismatch = errors.New("slot status does not match its usage")
)
