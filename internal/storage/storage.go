package storage

import (
	"context"

	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

// Storage defines the interface for persisting customers, catalog data, time slots and orders
type Storage interface {
	// Customer operations
	UpsertCustomerByPhone(ctx context.Context, customer *types.Customer) error
	GetCustomer(ctx context.Context, customerID string) (*types.Customer, error)

	// Palette type operations
	UpsertPaletteType(ctx context.Context, paletteType *types.PaletteType) error
	GetPaletteType(ctx context.Context, paletteTypeID string) (*types.PaletteType, error)
	ListPaletteTypes(ctx context.Context) ([]*types.PaletteType, error)

	// Time slot operations
	InsertTimeSlotIfAbsent(ctx context.Context, slot *types.TimeSlot) (created bool, err error)
	GetTimeSlot(ctx context.Context, slotID string) (*types.TimeSlot, error)
	ListAvailableSlots(ctx context.Context, fromDate string) ([]*types.TimeSlot, error)
	ListSlotsByDate(ctx context.Context, date string) ([]*types.TimeSlot, error)
	IncrementSlotUsage(ctx context.Context, slotID string) (*types.TimeSlot, error)
	DecrementSlotUsage(ctx context.Context, slotID string) (*types.TimeSlot, error)

	// Order operations
	CreateOrder(ctx context.Context, order *types.Order) error
	CreateOrderItems(ctx context.Context, items []*types.OrderItem) error
	GetOrder(ctx context.Context, orderID string) (*types.Order, error)
	GetOrderDetail(ctx context.Context, orderID string) (*types.Order, error)
	ListOrders(ctx context.Context, filter *OrderFilter) ([]*types.Order, error)
	ListOrderItems(ctx context.Context, orderID string) ([]types.OrderItem, error)
	UpdateOrderStatus(ctx context.Context, orderID string, from, to types.OrderStatus) (*types.Order, error)
	SetSlotReserved(ctx context.Context, orderID string, reserved bool) error
	DeleteOrder(ctx context.Context, orderID string, status types.OrderStatus) error

	// API key operations
	UpsertAPIKey(ctx context.Context, key *types.APIKey) error
	GetAPIKeyByToken(ctx context.Context, token string) (*types.APIKey, error)

	// Status operations
	GetStatus(ctx context.Context, today string) (*Status, error)

	// Database operations
	Ping(ctx context.Context) error
	Close() error
	BeginTx(ctx context.Context) (Tx, error)
}

// Tx represents a database transaction
type Tx interface {
	Commit() error
	Rollback() error
	Storage // Embed Storage interface for transaction operations
}

// OrderFilter narrows order listings. Zero values mean no filtering.
type OrderFilter struct {
	Status       types.OrderStatus
	DeliveryDate string
	CustomerID   string
	Limit        int
}

// Status contains statistics about the order book
type Status struct {
	SchemaVersion  string
	OrdersByStatus map[types.OrderStatus]int
	TotalOrders    int
	Customers      int
	UpcomingSlots  int
	AvailableSlots int
	DatabaseSizeMB float64
	Health         HealthStatus
}

// HealthStatus represents the health of the database
type HealthStatus struct {
	DatabaseAccessible bool
	ForeignKeysEnabled bool
}
