// Package ledger owns the used-capacity counters of delivery time slots.
//
// Every change to a slot's used_capacity goes through Reserve or Release.
// Each call moves exactly one unit in a single conditional statement, so
// concurrent callers can never push a slot past its capacity or below zero.
// Callers are responsible for calling each at most once per order.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/hfarhat1982/gestion-tournee/internal/storage"
	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

var (
	// ErrSlotNotFound is returned when the slot id does not exist
	ErrSlotNotFound = errors.New("time slot not found")
	// ErrSlotFull is returned when the slot has no capacity left
	ErrSlotFull = errors.New("time slot is full")
)

// SlotStore is the subset of storage the ledger needs. Both
// storage.Storage and storage.Tx satisfy it, so the ledger runs inside
// whatever unit of work the caller holds.
type SlotStore interface {
	GetTimeSlot(ctx context.Context, slotID string) (*types.TimeSlot, error)
	IncrementSlotUsage(ctx context.Context, slotID string) (*types.TimeSlot, error)
	DecrementSlotUsage(ctx context.Context, slotID string) (*types.TimeSlot, error)
}

// Ledger reserves and releases slot capacity
type Ledger struct{}

// New creates a capacity ledger
func New() *Ledger {
	return &Ledger{}
}

// Reserve takes one unit of capacity from the slot and returns its new state
func (l *Ledger) Reserve(ctx context.Context, store SlotStore, slotID string) (*types.TimeSlot, error) {
	slot, err := store.IncrementSlotUsage(ctx, slotID)
	if err == nil {
		return slot, nil
	}
	if !errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("reserve slot %s: %w", slotID, err)
	}

	// The conditional update matched nothing: tell a missing slot from a full one
	if _, err := store.GetTimeSlot(ctx, slotID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("reserve slot %s: %w", slotID, ErrSlotNotFound)
		}
		return nil, fmt.Errorf("reserve slot %s: %w", slotID, err)
	}
	return nil, fmt.Errorf("reserve slot %s: %w", slotID, ErrSlotFull)
}

// Release gives one unit of capacity back to the slot. Usage never drops
// below zero.
func (l *Ledger) Release(ctx context.Context, store SlotStore, slotID string) (*types.TimeSlot, error) {
	slot, err := store.DecrementSlotUsage(ctx, slotID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fmt.Errorf("release slot %s: %w", slotID, ErrSlotNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("release slot %s: %w", slotID, err)
	}
	return slot, nil
}
