// Package orders implements order admission and the order lifecycle.
//
// Admission validates a request, resolves the customer by phone, writes the
// order with its items and reserves the requested time slot, all inside one
// storage transaction. Lifecycle events move an order through an explicit
// transition table; cancelling gives the slot's capacity back.
package orders

import (
	"context"
	"fmt"
	"strings"

	"github.com/hfarhat1982/gestion-tournee/internal/ledger"
	"github.com/hfarhat1982/gestion-tournee/internal/logging"
	"github.com/hfarhat1982/gestion-tournee/internal/storage"
	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

// SlotFailurePolicy decides what admission does when the slot reservation fails
type SlotFailurePolicy string

const (
	// PolicyProceed keeps the order and logs the failed reservation
	PolicyProceed SlotFailurePolicy = "proceed"
	// PolicyReject aborts the admission; nothing is persisted
	PolicyReject SlotFailurePolicy = "reject"
)

// ParseSlotFailurePolicy parses a policy name. Empty means PolicyProceed.
func ParseSlotFailurePolicy(s string) (SlotFailurePolicy, error) {
	switch SlotFailurePolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", PolicyProceed:
		return PolicyProceed, nil
	case PolicyReject:
		return PolicyReject, nil
	default:
		return "", fmt.Errorf("unknown slot failure policy %q (want proceed or reject)", s)
	}
}

// CapacityLedger reserves and releases slot capacity within a unit of work
type CapacityLedger interface {
	Reserve(ctx context.Context, store ledger.SlotStore, slotID string) (*types.TimeSlot, error)
	Release(ctx context.Context, store ledger.SlotStore, slotID string) (*types.TimeSlot, error)
}

// Config holds optional collaborators for the service. Zero values are
// replaced with defaults.
type Config struct {
	Policy  SlotFailurePolicy
	Ledger  CapacityLedger
	Catalog *Catalog
	Logger  *logging.Logger
}

// Service admits orders and applies lifecycle events
type Service struct {
	store   storage.Storage
	ledger  CapacityLedger
	catalog *Catalog
	policy  SlotFailurePolicy
	logger  *logging.Logger
}

// NewService creates an order service backed by store
func NewService(store storage.Storage, cfg Config) *Service {
	if cfg.Policy == "" {
		cfg.Policy = PolicyProceed
	}
	if cfg.Ledger == nil {
		cfg.Ledger = ledger.New()
	}
	if cfg.Catalog == nil {
		cfg.Catalog = NewCatalog(store, 0)
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Discard()
	}
	return &Service{
		store:   store,
		ledger:  cfg.Ledger,
		catalog: cfg.Catalog,
		policy:  cfg.Policy,
		logger:  cfg.Logger.WithComponent("orders"),
	}
}

// Policy returns the configured slot failure policy
func (s *Service) Policy() SlotFailurePolicy {
	return s.policy
}

// Get returns the order joined with customer, palette type, slot and items
func (s *Service) Get(ctx context.Context, orderID string) (*types.Order, error) {
	order, err := s.store.GetOrderDetail(ctx, orderID)
	if err != nil {
		return nil, fmt.Errorf("get order %s: %w", orderID, err)
	}
	return order, nil
}

// List returns orders newest first. An unknown status filter is a
// validation error.
func (s *Service) List(ctx context.Context, filter storage.OrderFilter) ([]*types.Order, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, newValidationErrorf("unknown order status %q", filter.Status)
	}
	if filter.DeliveryDate != "" {
		if err := validateDate(filter.DeliveryDate); err != nil {
			return nil, err
		}
	}
	orders, err := s.store.ListOrders(ctx, &filter)
	if err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	return orders, nil
}

// PaletteTypes returns the catalog ordered by name
func (s *Service) PaletteTypes(ctx context.Context) ([]*types.PaletteType, error) {
	return s.catalog.List(ctx)
}

// rollback is deferred by every unit of work; it is a no-op after Commit
func rollback(tx storage.Tx) {
	_ = tx.Rollback()
}
