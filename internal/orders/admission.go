package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hfarhat1982/gestion-tournee/internal/storage"
	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

// ItemRequest is one requested order line
type ItemRequest struct {
	PaletteTypeID string `json:"palette_type_id"`
	Quantity      int    `json:"quantity"`
}

// SubmitRequest is the input of order admission
type SubmitRequest struct {
	CustomerName    string        `json:"customer_name"`
	CustomerPhone   string        `json:"customer_phone"`
	CustomerEmail   string        `json:"customer_email,omitempty"`
	CustomerAddress string        `json:"customer_address,omitempty"`
	DeliveryAddress string        `json:"delivery_address"`
	DeliveryDate    string        `json:"delivery_date"`
	Notes           string        `json:"notes,omitempty"`
	CreatedViaAPI   *bool         `json:"created_via_api,omitempty"`
	TimeSlotID      string        `json:"time_slot_id,omitempty"`
	Items           []ItemRequest `json:"items,omitempty"`

	// Single-item form, used when Items is empty
	PaletteTypeID string `json:"palette_type_id,omitempty"`
	Quantity      int    `json:"quantity,omitempty"`
}

// ResolvedItems returns the order lines: Items, or the single top-level
// palette type when Items is empty
func (r *SubmitRequest) ResolvedItems() []ItemRequest {
	if len(r.Items) > 0 {
		return r.Items
	}
	if strings.TrimSpace(r.PaletteTypeID) == "" {
		return nil
	}
	return []ItemRequest{{PaletteTypeID: r.PaletteTypeID, Quantity: r.Quantity}}
}

// Validate checks the request without touching storage
func (r *SubmitRequest) Validate() error {
	if strings.TrimSpace(r.CustomerName) == "" ||
		strings.TrimSpace(r.CustomerPhone) == "" ||
		strings.TrimSpace(r.DeliveryAddress) == "" ||
		strings.TrimSpace(r.DeliveryDate) == "" {
		return newValidationError("Missing required fields")
	}

	items := r.ResolvedItems()
	if len(items) == 0 {
		return newValidationError("Missing required fields")
	}
	for i, item := range items {
		if strings.TrimSpace(item.PaletteTypeID) == "" {
			return newValidationErrorf("item %d: palette_type_id is required", i)
		}
		if item.Quantity < 1 {
			return newValidationErrorf("item %d: quantity must be at least 1", i)
		}
	}

	return validateDate(strings.TrimSpace(r.DeliveryDate))
}

func validateDate(date string) error {
	if _, err := time.Parse(types.DateLayout, date); err != nil {
		return newValidationErrorf("invalid date %q: expected YYYY-MM-DD", date)
	}
	return nil
}

// Submit admits a new order. On success the stored order is returned
// joined with its customer, first palette type, slot and items.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (*types.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	items := req.ResolvedItems()

	// Catalog lookups run before the transaction opens: the pool has one
	// connection and the cache may need to read through the store.
	for i, item := range items {
		if _, err := s.catalog.Get(ctx, item.PaletteTypeID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, newValidationErrorf("item %d: unknown palette type %q", i, item.PaletteTypeID)
			}
			return nil, fmt.Errorf("lookup palette type: %w", err)
		}
	}

	createdViaAPI := true
	if req.CreatedViaAPI != nil {
		createdViaAPI = *req.CreatedViaAPI
	}
	slotID := strings.TrimSpace(req.TimeSlotID)
	log := s.logger.FromContext(ctx)

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin admission: %w", err)
	}
	defer rollback(tx)

	if slotID != "" {
		if _, err := tx.GetTimeSlot(ctx, slotID); err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, newValidationErrorf("unknown time slot %q", slotID)
			}
			return nil, fmt.Errorf("lookup time slot: %w", err)
		}
	}

	customer := &types.Customer{
		Name:    strings.TrimSpace(req.CustomerName),
		Phone:   strings.TrimSpace(req.CustomerPhone),
		Email:   strings.TrimSpace(req.CustomerEmail),
		Address: strings.TrimSpace(req.CustomerAddress),
	}
	if err := tx.UpsertCustomerByPhone(ctx, customer); err != nil {
		return nil, s.persistenceError(ctx, "resolve customer", err)
	}

	order := &types.Order{
		CustomerID:      customer.ID,
		PaletteTypeID:   items[0].PaletteTypeID,
		Quantity:        items[0].Quantity,
		DeliveryAddress: strings.TrimSpace(req.DeliveryAddress),
		DeliveryDate:    strings.TrimSpace(req.DeliveryDate),
		Status:          types.StatusProvisional,
		Notes:           req.Notes,
		CreatedViaAPI:   createdViaAPI,
	}
	if slotID != "" {
		order.TimeSlotID = &slotID
	}
	if err := tx.CreateOrder(ctx, order); err != nil {
		return nil, s.persistenceError(ctx, "create order", err)
	}

	lines := make([]*types.OrderItem, len(items))
	for i, item := range items {
		lines[i] = &types.OrderItem{
			OrderID:       order.ID,
			PaletteTypeID: item.PaletteTypeID,
			Quantity:      item.Quantity,
		}
	}
	if err := tx.CreateOrderItems(ctx, lines); err != nil {
		return nil, s.persistenceError(ctx, "create order items", err)
	}

	if slotID != "" {
		_, err := s.ledger.Reserve(ctx, tx, slotID)
		switch {
		case err == nil:
			if err := tx.SetSlotReserved(ctx, order.ID, true); err != nil {
				return nil, fmt.Errorf("record slot reservation: %w", err)
			}
		case s.policy == PolicyReject || ctx.Err() != nil:
			return nil, err
		default:
			log.Warn("slot reservation failed, keeping order",
				"order_id", order.ID,
				"slot_id", slotID,
				"error", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit admission: %w", err)
	}

	log.Info("order admitted",
		"order_id", order.ID,
		"customer_id", customer.ID,
		"items", len(lines),
		"slot_id", slotID)

	return s.Get(ctx, order.ID)
}

// persistenceError classifies a storage write failure. Context errors are
// passed through untouched.
func (s *Service) persistenceError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	return &PersistenceError{Op: op, Err: err}
}
