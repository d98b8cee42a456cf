// Package storage provides SQLite-based persistence for the delivery order book.
//
// The storage layer manages:
//   - Customers, deduplicated by phone number
//   - The palette type catalog
//   - Delivery time slots and their used capacity
//   - Orders and their item lines
//   - API keys
//
// # Database Schema
//
// Tables:
//   - customers: name, unique phone, email, address
//   - palette_types: catalog entries with an optional decimal price
//   - time_slots: (date, start_time) unique, capacity and used_capacity
//   - orders: delivery orders, optionally holding a time slot
//   - order_items: (palette type, quantity) lines, cascade deleted with the order
//   - api_keys: bearer tokens with a role
//
// # Basic Usage
//
//	db, err := storage.NewSQLiteStorage("~/.palette/palette.db")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer db.Close()
//
//	customer := &types.Customer{Name: "Dupont", Phone: "0600000000"}
//	if err := db.UpsertCustomerByPhone(ctx, customer); err != nil {
//	    return err
//	}
//
// # Transactions
//
// Use transactions for atomic operations:
//
//	tx, err := db.BeginTx(ctx)
//	if err != nil {
//	    return err
//	}
//	defer func() { _ = tx.Rollback() }()
//
//	_ = tx.CreateOrder(ctx, order)
//	_ = tx.CreateOrderItems(ctx, items)
//	_, _ = tx.IncrementSlotUsage(ctx, slotID)
//
//	if err := tx.Commit(); err != nil {
//	    return err
//	}
//
// The pool holds a single connection. While a transaction is open, only the
// Tx may be used; calls on the parent storage block until it finishes.
//
// # Capacity Updates
//
// IncrementSlotUsage and DecrementSlotUsage are single conditional UPDATE
// statements. An increment never takes used_capacity past capacity; it
// returns ErrNotFound instead. A decrement never goes below zero. The slot
// status column is recomputed in the same statement.
//
// # Build Tags
//
// The storage package supports two build configurations:
//
// Pure Go Build (default):
//
//   - Uses modernc.org/sqlite driver
//
//   - No C compiler needed
//
//     CGO_ENABLED=0 go build ./...
//
// CGO Build (cgo_sqlite tag):
//
//   - Uses github.com/mattn/go-sqlite3 driver
//
//   - Requires C compiler
//
//     CGO_ENABLED=1 go build -tags "cgo_sqlite" ./...
package storage
