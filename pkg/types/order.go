package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus represents the lifecycle state of a delivery order
type OrderStatus string

const (
	StatusPending     OrderStatus = "pending"
	StatusProvisional OrderStatus = "provisional"
	StatusConfirmed   OrderStatus = "confirmed"
	StatusDelivered   OrderStatus = "delivered"
	StatusCancelled   OrderStatus = "cancelled"
)

// Valid reports whether s is one of the known order statuses
func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusProvisional, StatusConfirmed, StatusDelivered, StatusCancelled:
		return true
	default:
		return false
	}
}

// Customer is the party an order is delivered to. Phone is the natural key.
type Customer struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     string    `json:"email,omitempty"`
	Address   string    `json:"address,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// PaletteType is a catalog entry
type PaletteType struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Price       decimal.NullDecimal `json:"price"`
	CreatedAt   time.Time           `json:"created_at"`
}

// OrderItem is one (palette type, quantity) line of an order
type OrderItem struct {
	ID            string    `json:"id"`
	OrderID       string    `json:"order_id"`
	PaletteTypeID string    `json:"palette_type_id"`
	Quantity      int       `json:"quantity"`
	CreatedAt     time.Time `json:"created_at"`
}

// Order is a palette delivery order.
//
// PaletteTypeID and Quantity duplicate Items[0] for readers that predate
// multi-item orders. SlotReserved is set while the order holds one unit of
// its slot's capacity; an order can reference a slot without holding a unit
// when the reservation failed at admission.
type Order struct {
	ID              string      `json:"id"`
	CustomerID      string      `json:"customer_id"`
	PaletteTypeID   string      `json:"palette_type_id"`
	Quantity        int         `json:"quantity"`
	DeliveryAddress string      `json:"delivery_address"`
	DeliveryDate    string      `json:"delivery_date"`
	TimeSlotID      *string     `json:"time_slot_id"`
	SlotReserved    bool        `json:"slot_reserved"`
	Status          OrderStatus `json:"status"`
	Notes           string      `json:"notes,omitempty"`
	CreatedViaAPI   bool        `json:"created_via_api"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`

	// Joined relations, populated by detail reads
	Customer    *Customer    `json:"customer,omitempty"`
	PaletteType *PaletteType `json:"palette_type,omitempty"`
	TimeSlot    *TimeSlot    `json:"time_slot,omitempty"`
	Items       []OrderItem  `json:"order_items,omitempty"`
}

// HasSlot reports whether the order references a time slot
func (o *Order) HasSlot() bool {
	return o.TimeSlotID != nil && *o.TimeSlotID != ""
}
