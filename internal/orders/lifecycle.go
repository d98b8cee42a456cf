package orders

import (
	"context"
	"errors"
	"fmt"

	"github.com/hfarhat1982/gestion-tournee/internal/ledger"
	"github.com/hfarhat1982/gestion-tournee/internal/storage"
	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

// Event is a lifecycle operation applied to an order
type Event string

const (
	EventConfirm Event = "confirm"
	EventDeliver Event = "deliver"
	EventCancel  Event = "cancel"
	EventDelete  Event = "delete"
)

// statusRemoved is the pseudo status of a deleted order
const statusRemoved types.OrderStatus = ""

// transitions is the complete lifecycle. Pairs not listed are rejected.
var transitions = map[types.OrderStatus]map[Event]types.OrderStatus{
	types.StatusPending: {
		EventCancel: types.StatusCancelled,
	},
	types.StatusProvisional: {
		EventConfirm: types.StatusConfirmed,
		EventDeliver: types.StatusDelivered,
		EventCancel:  types.StatusCancelled,
	},
	types.StatusConfirmed: {
		EventDeliver: types.StatusDelivered,
		EventCancel:  types.StatusCancelled,
	},
	types.StatusDelivered: {
		EventCancel: types.StatusCancelled,
	},
	types.StatusCancelled: {
		EventDelete: statusRemoved,
	},
}

// NextStatus looks up the status reached by applying event in status from
func NextStatus(from types.OrderStatus, event Event) (types.OrderStatus, bool) {
	to, ok := transitions[from][event]
	return to, ok
}

// Confirm moves a provisional order to confirmed
func (s *Service) Confirm(ctx context.Context, orderID string) (*types.Order, error) {
	return s.apply(ctx, orderID, EventConfirm)
}

// Deliver marks a provisional or confirmed order as delivered
func (s *Service) Deliver(ctx context.Context, orderID string) (*types.Order, error) {
	return s.apply(ctx, orderID, EventDeliver)
}

// Cancel cancels any order not already cancelled and gives back the slot
// capacity unit it holds
func (s *Service) Cancel(ctx context.Context, orderID string) (*types.Order, error) {
	return s.apply(ctx, orderID, EventCancel)
}

// Delete removes a cancelled order with its items. Only admins may delete.
func (s *Service) Delete(ctx context.Context, orderID string, role types.Role) error {
	if role != types.RoleAdmin {
		return ErrForbidden
	}
	_, err := s.apply(ctx, orderID, EventDelete)
	return err
}

// apply runs one lifecycle event as a unit of work: read the current
// status, look up the transition, compare-and-set the new status and
// release the slot on cancel.
func (s *Service) apply(ctx context.Context, orderID string, event Event) (*types.Order, error) {
	log := s.logger.FromContext(ctx)

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin %s: %w", event, err)
	}
	defer rollback(tx)

	current, err := tx.GetOrder(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("%s order %s: %w", event, orderID, err)
	}

	to, ok := NextStatus(current.Status, event)
	if !ok {
		return nil, &TransitionError{OrderID: orderID, From: string(current.Status), Event: event}
	}

	if event == EventDelete {
		if err := tx.DeleteOrder(ctx, orderID, current.Status); err != nil {
			return nil, fmt.Errorf("delete order %s: %w", orderID, err)
		}
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("commit delete: %w", err)
		}
		log.Info("order deleted", "order_id", orderID)
		return nil, nil
	}

	updated, err := tx.UpdateOrderStatus(ctx, orderID, current.Status, to)
	if errors.Is(err, storage.ErrNotFound) {
		// Status moved underneath us
		return nil, &TransitionError{OrderID: orderID, From: string(current.Status), Event: event}
	}
	if err != nil {
		return nil, fmt.Errorf("%s order %s: %w", event, orderID, err)
	}

	// Only a unit actually taken at admission is given back
	if event == EventCancel && updated.SlotReserved {
		if updated.HasSlot() {
			if _, err := s.ledger.Release(ctx, tx, *updated.TimeSlotID); err != nil {
				if !errors.Is(err, ledger.ErrSlotNotFound) {
					return nil, err
				}
				log.Warn("slot to release no longer exists",
					"order_id", orderID,
					"slot_id", *updated.TimeSlotID)
			}
		}
		if err := tx.SetSlotReserved(ctx, orderID, false); err != nil {
			return nil, fmt.Errorf("clear slot reservation: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit %s: %w", event, err)
	}

	log.Info("order status changed",
		"order_id", orderID,
		"event", string(event),
		"from", string(current.Status),
		"to", string(to))

	return s.Get(ctx, orderID)
}
