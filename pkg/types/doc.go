// Package types provides the shared domain model of the palette delivery service.
//
// The types in this package are used by storage, the order services, the HTTP
// API and the MCP tools alike. JSON tags follow the wire format of the public
// API (snake_case, joined relations nested under customer, palette_type,
// time_slot and order_items).
//
// # Orders
//
// An Order owns one or more OrderItem lines. For compatibility with older
// readers the first item is mirrored on the order itself:
//
//	order.PaletteTypeID == order.Items[0].PaletteTypeID
//	order.Quantity      == order.Items[0].Quantity
//
// Order status moves through pending, provisional, confirmed, delivered and
// cancelled. The legal moves are enforced by internal/orders.
//
// # Time Slots
//
// A TimeSlot is a one-hour window on a given date. Capacity counts orders, not
// palettes: each order holding the slot consumes exactly one unit.
//
//	slot.Status == types.SlotFull  <=>  slot.UsedCapacity >= slot.Capacity
//
// Validate checks these invariants:
//
//	if err := slot.Validate(); err != nil {
//	    return err
//	}
package types
