package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

// ErrNotFound is returned when a requested entity doesn't exist, or when a
// conditional update matched no row
var ErrNotFound = errors.New("not found")

// SQLiteStorage implements the Storage interface using SQLite
type SQLiteStorage struct {
	db *sql.DB
}

// openDatabase opens a SQLite database with appropriate settings
func openDatabase(dbPath string) (*sql.DB, error) {
	db, err := sql.Open(DriverName, dataSourceName(dbPath))
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	// A single connection serializes writers, which is what makes the
	// capacity ledger's conditional updates race free.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	var foreignKeys int
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to check foreign keys: %w", err)
	}
	if foreignKeys != 1 {
		_ = db.Close()
		return nil, fmt.Errorf("foreign keys are disabled for %s", DriverName)
	}

	return db, nil
}

// dataSourceName appends the driver's foreign key parameter to dbPath so
// that every connection the pool opens enforces references.
func dataSourceName(dbPath string) string {
	sep := "?"
	if strings.Contains(dbPath, "?") {
		sep = "&"
	}
	return dbPath + sep + foreignKeysParam
}

// NewSQLiteStorage creates a new SQLite storage instance
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	db, err := openDatabase(dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := ApplyMigrations(context.Background(), db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	return &SQLiteStorage{db: db}, nil
}

// Close closes the database connection
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable
func (s *SQLiteStorage) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// BeginTx starts a new transaction
func (s *SQLiteStorage) BeginTx(ctx context.Context) (Tx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &sqliteTx{tx: tx, storage: s}, nil
}

// querier is an interface that both *sql.DB and *sql.Tx implement
type querier interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// sqliteTx wraps a SQL transaction
type sqliteTx struct {
	tx      *sql.Tx
	storage *SQLiteStorage
}

func (t *sqliteTx) Commit() error {
	return t.tx.Commit()
}

func (t *sqliteTx) Rollback() error {
	return t.tx.Rollback()
}

// querier returns the transaction querier
func (t *sqliteTx) querier() querier {
	return t.tx
}

// querier returns the DB querier
func (s *SQLiteStorage) querier() querier {
	return s.db
}

// now returns the timestamp written to created_at/updated_at columns.
// UTC keeps the stored text sortable.
func now() time.Time {
	return time.Now().UTC()
}

// placeholders builds a parameterized IN clause for the given ids
func placeholders(ids []string) (string, []interface{}) {
	marks := make([]string, len(ids))
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		marks[i] = "?"
		args[i] = id
	}
	return strings.Join(marks, ","), args
}

// Customer operations

// upsertCustomerByPhoneWithQuerier inserts the customer or, when the phone
// is already known, loads the stored row into customer. Stored identity wins.
func (s *SQLiteStorage) upsertCustomerByPhoneWithQuerier(ctx context.Context, q querier, customer *types.Customer) error {
	query := `
		INSERT INTO customers (id, name, phone, email, address, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(phone) DO UPDATE SET phone = excluded.phone
		RETURNING id, name, phone, email, address, created_at
	`
	err := q.QueryRowContext(ctx, query,
		uuid.NewString(), customer.Name, customer.Phone, customer.Email, customer.Address, now(),
	).Scan(
		&customer.ID, &customer.Name, &customer.Phone,
		&customer.Email, &customer.Address, &customer.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert customer: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertCustomerByPhone(ctx context.Context, customer *types.Customer) error {
	return s.upsertCustomerByPhoneWithQuerier(ctx, s.querier(), customer)
}

// getCustomerWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getCustomerWithQuerier(ctx context.Context, q querier, customerID string) (*types.Customer, error) {
	query := `
		SELECT id, name, phone, email, address, created_at
		FROM customers
		WHERE id = ?
	`
	var customer types.Customer
	err := q.QueryRowContext(ctx, query, customerID).Scan(
		&customer.ID, &customer.Name, &customer.Phone,
		&customer.Email, &customer.Address, &customer.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &customer, nil
}

func (s *SQLiteStorage) GetCustomer(ctx context.Context, customerID string) (*types.Customer, error) {
	return s.getCustomerWithQuerier(ctx, s.querier(), customerID)
}

// Palette type operations

// upsertPaletteTypeWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) upsertPaletteTypeWithQuerier(ctx context.Context, q querier, paletteType *types.PaletteType) error {
	if paletteType.ID == "" {
		paletteType.ID = uuid.NewString()
	}
	query := `
		INSERT INTO palette_types (id, name, description, price, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			price = excluded.price
		RETURNING created_at
	`
	err := q.QueryRowContext(ctx, query,
		paletteType.ID, paletteType.Name, paletteType.Description, paletteType.Price, now(),
	).Scan(&paletteType.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert palette type: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertPaletteType(ctx context.Context, paletteType *types.PaletteType) error {
	return s.upsertPaletteTypeWithQuerier(ctx, s.querier(), paletteType)
}

// getPaletteTypeWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getPaletteTypeWithQuerier(ctx context.Context, q querier, paletteTypeID string) (*types.PaletteType, error) {
	query := `
		SELECT id, name, description, price, created_at
		FROM palette_types
		WHERE id = ?
	`
	var pt types.PaletteType
	err := q.QueryRowContext(ctx, query, paletteTypeID).Scan(
		&pt.ID, &pt.Name, &pt.Description, &pt.Price, &pt.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &pt, nil
}

func (s *SQLiteStorage) GetPaletteType(ctx context.Context, paletteTypeID string) (*types.PaletteType, error) {
	return s.getPaletteTypeWithQuerier(ctx, s.querier(), paletteTypeID)
}

// listPaletteTypesWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listPaletteTypesWithQuerier(ctx context.Context, q querier) ([]*types.PaletteType, error) {
	query := `
		SELECT id, name, description, price, created_at
		FROM palette_types
		ORDER BY name
	`
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	paletteTypes := make([]*types.PaletteType, 0)
	for rows.Next() {
		var pt types.PaletteType
		if err := rows.Scan(&pt.ID, &pt.Name, &pt.Description, &pt.Price, &pt.CreatedAt); err != nil {
			return nil, err
		}
		paletteTypes = append(paletteTypes, &pt)
	}
	return paletteTypes, rows.Err()
}

func (s *SQLiteStorage) ListPaletteTypes(ctx context.Context) ([]*types.PaletteType, error) {
	return s.listPaletteTypesWithQuerier(ctx, s.querier())
}

// Time slot operations

const slotColumns = `id, date, start_time, end_time, capacity, used_capacity, status, created_at`

func scanTimeSlot(row rowScanner) (*types.TimeSlot, error) {
	var slot types.TimeSlot
	var status string
	err := row.Scan(
		&slot.ID, &slot.Date, &slot.StartTime, &slot.EndTime,
		&slot.Capacity, &slot.UsedCapacity, &status, &slot.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	slot.Status = types.SlotStatus(status)
	return &slot, nil
}

// insertTimeSlotIfAbsentWithQuerier inserts the slot unless one already
// exists for the same (date, start_time). It reports whether a row was written.
func (s *SQLiteStorage) insertTimeSlotIfAbsentWithQuerier(ctx context.Context, q querier, slot *types.TimeSlot) (bool, error) {
	if slot.ID == "" {
		slot.ID = uuid.NewString()
	}
	if slot.UsedCapacity >= slot.Capacity {
		slot.Status = types.SlotFull
	} else {
		slot.Status = types.SlotAvailable
	}
	if err := slot.Validate(); err != nil {
		return false, fmt.Errorf("invalid time slot %s %s: %w", slot.Date, slot.StartTime, err)
	}
	slot.CreatedAt = now()

	query := `
		INSERT INTO time_slots (` + slotColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(date, start_time) DO NOTHING
	`
	result, err := q.ExecContext(ctx, query,
		slot.ID, slot.Date, slot.StartTime, slot.EndTime,
		slot.Capacity, slot.UsedCapacity, string(slot.Status), slot.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("failed to insert time slot: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return rowsAffected > 0, nil
}

func (s *SQLiteStorage) InsertTimeSlotIfAbsent(ctx context.Context, slot *types.TimeSlot) (bool, error) {
	return s.insertTimeSlotIfAbsentWithQuerier(ctx, s.querier(), slot)
}

// getTimeSlotWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getTimeSlotWithQuerier(ctx context.Context, q querier, slotID string) (*types.TimeSlot, error) {
	query := `SELECT ` + slotColumns + ` FROM time_slots WHERE id = ?`
	slot, err := scanTimeSlot(q.QueryRowContext(ctx, query, slotID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return slot, nil
}

func (s *SQLiteStorage) GetTimeSlot(ctx context.Context, slotID string) (*types.TimeSlot, error) {
	return s.getTimeSlotWithQuerier(ctx, s.querier(), slotID)
}

// listTimeSlotsWithQuerier runs a slot query and collects the rows
func (s *SQLiteStorage) listTimeSlotsWithQuerier(ctx context.Context, q querier, query string, args ...interface{}) ([]*types.TimeSlot, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	slots := make([]*types.TimeSlot, 0)
	for rows.Next() {
		slot, err := scanTimeSlot(rows)
		if err != nil {
			return nil, err
		}
		slots = append(slots, slot)
	}
	return slots, rows.Err()
}

func (s *SQLiteStorage) listAvailableSlotsWithQuerier(ctx context.Context, q querier, fromDate string) ([]*types.TimeSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM time_slots
		WHERE status = 'available' AND date >= ?
		ORDER BY date, start_time
	`
	return s.listTimeSlotsWithQuerier(ctx, q, query, fromDate)
}

// ListAvailableSlots returns slots with spare capacity dated on or after fromDate
func (s *SQLiteStorage) ListAvailableSlots(ctx context.Context, fromDate string) ([]*types.TimeSlot, error) {
	return s.listAvailableSlotsWithQuerier(ctx, s.querier(), fromDate)
}

func (s *SQLiteStorage) listSlotsByDateWithQuerier(ctx context.Context, q querier, date string) ([]*types.TimeSlot, error) {
	query := `
		SELECT ` + slotColumns + `
		FROM time_slots
		WHERE date = ?
		ORDER BY start_time
	`
	return s.listTimeSlotsWithQuerier(ctx, q, query, date)
}

func (s *SQLiteStorage) ListSlotsByDate(ctx context.Context, date string) ([]*types.TimeSlot, error) {
	return s.listSlotsByDateWithQuerier(ctx, s.querier(), date)
}

// incrementSlotUsageWithQuerier takes one unit of capacity in a single
// conditional statement. ErrNotFound means no row matched: either the slot
// does not exist or it has no capacity left.
func (s *SQLiteStorage) incrementSlotUsageWithQuerier(ctx context.Context, q querier, slotID string) (*types.TimeSlot, error) {
	query := `
		UPDATE time_slots
		SET used_capacity = used_capacity + 1,
		    status = CASE WHEN used_capacity + 1 >= capacity THEN 'full' ELSE 'available' END
		WHERE id = ? AND used_capacity < capacity
		RETURNING ` + slotColumns
	slot, err := scanTimeSlot(q.QueryRowContext(ctx, query, slotID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to increment slot usage: %w", err)
	}
	return slot, nil
}

func (s *SQLiteStorage) IncrementSlotUsage(ctx context.Context, slotID string) (*types.TimeSlot, error) {
	return s.incrementSlotUsageWithQuerier(ctx, s.querier(), slotID)
}

// decrementSlotUsageWithQuerier gives back one unit of capacity, floored at zero
func (s *SQLiteStorage) decrementSlotUsageWithQuerier(ctx context.Context, q querier, slotID string) (*types.TimeSlot, error) {
	query := `
		UPDATE time_slots
		SET used_capacity = MAX(used_capacity - 1, 0),
		    status = CASE WHEN MAX(used_capacity - 1, 0) < capacity THEN 'available' ELSE 'full' END
		WHERE id = ?
		RETURNING ` + slotColumns
	slot, err := scanTimeSlot(q.QueryRowContext(ctx, query, slotID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decrement slot usage: %w", err)
	}
	return slot, nil
}

func (s *SQLiteStorage) DecrementSlotUsage(ctx context.Context, slotID string) (*types.TimeSlot, error) {
	return s.decrementSlotUsageWithQuerier(ctx, s.querier(), slotID)
}

// Order operations

// createOrderWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) createOrderWithQuerier(ctx context.Context, q querier, order *types.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	query := `
		INSERT INTO orders (id, customer_id, palette_type_id, quantity, delivery_address,
		                    delivery_date, time_slot_id, slot_reserved, status, notes,
		                    created_via_api, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	ts := now()
	var slotID sql.NullString
	if order.HasSlot() {
		slotID = sql.NullString{String: *order.TimeSlotID, Valid: true}
	}
	_, err := q.ExecContext(ctx, query,
		order.ID, order.CustomerID, order.PaletteTypeID, order.Quantity, order.DeliveryAddress,
		order.DeliveryDate, slotID, order.SlotReserved, string(order.Status), order.Notes,
		order.CreatedViaAPI, ts, ts)
	if err != nil {
		return fmt.Errorf("failed to create order: %w", err)
	}
	order.CreatedAt = ts
	order.UpdatedAt = ts
	return nil
}

func (s *SQLiteStorage) CreateOrder(ctx context.Context, order *types.Order) error {
	return s.createOrderWithQuerier(ctx, s.querier(), order)
}

// createOrderItemsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) createOrderItemsWithQuerier(ctx context.Context, q querier, items []*types.OrderItem) error {
	query := `
		INSERT INTO order_items (id, order_id, palette_type_id, quantity, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	ts := now()
	for _, item := range items {
		if item.ID == "" {
			item.ID = uuid.NewString()
		}
		if _, err := q.ExecContext(ctx, query, item.ID, item.OrderID, item.PaletteTypeID, item.Quantity, ts); err != nil {
			return fmt.Errorf("failed to create order item: %w", err)
		}
		item.CreatedAt = ts
	}
	return nil
}

func (s *SQLiteStorage) CreateOrderItems(ctx context.Context, items []*types.OrderItem) error {
	return s.createOrderItemsWithQuerier(ctx, s.querier(), items)
}

const orderColumns = `o.id, o.customer_id, o.palette_type_id, o.quantity, o.delivery_address,
	o.delivery_date, o.time_slot_id, o.slot_reserved, o.status, o.notes, o.created_via_api,
	o.created_at, o.updated_at`

// orderReturning lists the same columns unqualified, for RETURNING clauses
const orderReturning = `id, customer_id, palette_type_id, quantity, delivery_address,
	delivery_date, time_slot_id, slot_reserved, status, notes, created_via_api,
	created_at, updated_at`

func scanOrder(row rowScanner) (*types.Order, error) {
	var order types.Order
	var slotID sql.NullString
	var status string
	err := row.Scan(
		&order.ID, &order.CustomerID, &order.PaletteTypeID, &order.Quantity, &order.DeliveryAddress,
		&order.DeliveryDate, &slotID, &order.SlotReserved, &status, &order.Notes, &order.CreatedViaAPI,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.Status = types.OrderStatus(status)
	if slotID.Valid {
		order.TimeSlotID = &slotID.String
	}
	return &order, nil
}

// getOrderWithQuerier reads the bare order row without relations
func (s *SQLiteStorage) getOrderWithQuerier(ctx context.Context, q querier, orderID string) (*types.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders o WHERE o.id = ?`
	order, err := scanOrder(q.QueryRowContext(ctx, query, orderID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return order, nil
}

func (s *SQLiteStorage) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	return s.getOrderWithQuerier(ctx, s.querier(), orderID)
}

const orderDetailQuery = `
	SELECT ` + orderColumns + `,
	       c.id, c.name, c.phone, c.email, c.address, c.created_at,
	       p.id, p.name, p.description, p.price, p.created_at,
	       s.id, s.date, s.start_time, s.end_time, s.capacity, s.used_capacity, s.status, s.created_at
	FROM orders o
	JOIN customers c ON c.id = o.customer_id
	JOIN palette_types p ON p.id = o.palette_type_id
	LEFT JOIN time_slots s ON s.id = o.time_slot_id
`

// scanOrderDetail scans an order joined with its customer, palette type
// and (optional) time slot
func scanOrderDetail(row rowScanner) (*types.Order, error) {
	var order types.Order
	var customer types.Customer
	var paletteType types.PaletteType
	var orderSlotID sql.NullString
	var status string
	var (
		slotID, slotDate, slotStart, slotEnd, slotStatus sql.NullString
		slotCapacity, slotUsed                           sql.NullInt64
		slotCreatedAt                                    sql.NullTime
	)
	err := row.Scan(
		&order.ID, &order.CustomerID, &order.PaletteTypeID, &order.Quantity, &order.DeliveryAddress,
		&order.DeliveryDate, &orderSlotID, &order.SlotReserved, &status, &order.Notes, &order.CreatedViaAPI,
		&order.CreatedAt, &order.UpdatedAt,
		&customer.ID, &customer.Name, &customer.Phone, &customer.Email, &customer.Address, &customer.CreatedAt,
		&paletteType.ID, &paletteType.Name, &paletteType.Description, &paletteType.Price, &paletteType.CreatedAt,
		&slotID, &slotDate, &slotStart, &slotEnd, &slotCapacity, &slotUsed, &slotStatus, &slotCreatedAt,
	)
	if err != nil {
		return nil, err
	}
	order.Status = types.OrderStatus(status)
	if orderSlotID.Valid {
		order.TimeSlotID = &orderSlotID.String
	}
	order.Customer = &customer
	order.PaletteType = &paletteType
	if slotID.Valid {
		order.TimeSlot = &types.TimeSlot{
			ID:           slotID.String,
			Date:         slotDate.String,
			StartTime:    slotStart.String,
			EndTime:      slotEnd.String,
			Capacity:     int(slotCapacity.Int64),
			UsedCapacity: int(slotUsed.Int64),
			Status:       types.SlotStatus(slotStatus.String),
			CreatedAt:    slotCreatedAt.Time,
		}
	}
	return &order, nil
}

// getOrderDetailWithQuerier reads an order with its relations and items
func (s *SQLiteStorage) getOrderDetailWithQuerier(ctx context.Context, q querier, orderID string) (*types.Order, error) {
	order, err := scanOrderDetail(q.QueryRowContext(ctx, orderDetailQuery+` WHERE o.id = ?`, orderID))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	items, err := s.listOrderItemsWithQuerier(ctx, q, orderID)
	if err != nil {
		return nil, err
	}
	order.Items = items
	return order, nil
}

func (s *SQLiteStorage) GetOrderDetail(ctx context.Context, orderID string) (*types.Order, error) {
	return s.getOrderDetailWithQuerier(ctx, s.querier(), orderID)
}

// listOrdersWithQuerier lists orders newest first, with relations and items
func (s *SQLiteStorage) listOrdersWithQuerier(ctx context.Context, q querier, filter *OrderFilter) ([]*types.Order, error) {
	if filter == nil {
		filter = &OrderFilter{}
	}

	var conditions []string
	var args []interface{}
	if filter.Status != "" {
		conditions = append(conditions, "o.status = ?")
		args = append(args, string(filter.Status))
	}
	if filter.DeliveryDate != "" {
		conditions = append(conditions, "o.delivery_date = ?")
		args = append(args, filter.DeliveryDate)
	}
	if filter.CustomerID != "" {
		conditions = append(conditions, "o.customer_id = ?")
		args = append(args, filter.CustomerID)
	}

	query := orderDetailQuery
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY o.created_at DESC, o.rowid DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	orders := make([]*types.Order, 0)
	byID := make(map[string]*types.Order)
	ids := make([]string, 0)
	for rows.Next() {
		order, err := scanOrderDetail(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, order)
		byID[order.ID] = order
		ids = append(ids, order.ID)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	_ = rows.Close()

	if len(ids) == 0 {
		return orders, nil
	}

	in, itemArgs := placeholders(ids)
	itemRows, err := q.QueryContext(ctx, `
		SELECT id, order_id, palette_type_id, quantity, created_at
		FROM order_items
		WHERE order_id IN (`+in+`)
		ORDER BY rowid
	`, itemArgs...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = itemRows.Close() }()

	for itemRows.Next() {
		var item types.OrderItem
		if err := itemRows.Scan(&item.ID, &item.OrderID, &item.PaletteTypeID, &item.Quantity, &item.CreatedAt); err != nil {
			return nil, err
		}
		if order, ok := byID[item.OrderID]; ok {
			order.Items = append(order.Items, item)
		}
	}
	return orders, itemRows.Err()
}

func (s *SQLiteStorage) ListOrders(ctx context.Context, filter *OrderFilter) ([]*types.Order, error) {
	return s.listOrdersWithQuerier(ctx, s.querier(), filter)
}

// listOrderItemsWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) listOrderItemsWithQuerier(ctx context.Context, q querier, orderID string) ([]types.OrderItem, error) {
	query := `
		SELECT id, order_id, palette_type_id, quantity, created_at
		FROM order_items
		WHERE order_id = ?
		ORDER BY rowid
	`
	rows, err := q.QueryContext(ctx, query, orderID)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	items := make([]types.OrderItem, 0)
	for rows.Next() {
		var item types.OrderItem
		if err := rows.Scan(&item.ID, &item.OrderID, &item.PaletteTypeID, &item.Quantity, &item.CreatedAt); err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (s *SQLiteStorage) ListOrderItems(ctx context.Context, orderID string) ([]types.OrderItem, error) {
	return s.listOrderItemsWithQuerier(ctx, s.querier(), orderID)
}

// updateOrderStatusWithQuerier moves an order from one status to another.
// The update only applies while the order is still in from; otherwise
// ErrNotFound is returned and nothing changes.
func (s *SQLiteStorage) updateOrderStatusWithQuerier(ctx context.Context, q querier, orderID string, from, to types.OrderStatus) (*types.Order, error) {
	query := `
		UPDATE orders
		SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?
		RETURNING ` + orderReturning
	order, err := scanOrder(q.QueryRowContext(ctx, query, string(to), now(), orderID, string(from)))
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update order status: %w", err)
	}
	return order, nil
}

func (s *SQLiteStorage) UpdateOrderStatus(ctx context.Context, orderID string, from, to types.OrderStatus) (*types.Order, error) {
	return s.updateOrderStatusWithQuerier(ctx, s.querier(), orderID, from, to)
}

// setSlotReservedWithQuerier records whether the order holds a unit of its
// slot's capacity
func (s *SQLiteStorage) setSlotReservedWithQuerier(ctx context.Context, q querier, orderID string, reserved bool) error {
	result, err := q.ExecContext(ctx,
		`UPDATE orders SET slot_reserved = ?, updated_at = ? WHERE id = ?`,
		reserved, now(), orderID)
	if err != nil {
		return fmt.Errorf("failed to update slot reservation: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) SetSlotReserved(ctx context.Context, orderID string, reserved bool) error {
	return s.setSlotReservedWithQuerier(ctx, s.querier(), orderID, reserved)
}

// deleteOrderWithQuerier removes an order that is in the given status.
// Items go with it through ON DELETE CASCADE.
func (s *SQLiteStorage) deleteOrderWithQuerier(ctx context.Context, q querier, orderID string, status types.OrderStatus) error {
	result, err := q.ExecContext(ctx, `DELETE FROM orders WHERE id = ? AND status = ?`, orderID, string(status))
	if err != nil {
		return fmt.Errorf("failed to delete order: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *SQLiteStorage) DeleteOrder(ctx context.Context, orderID string, status types.OrderStatus) error {
	return s.deleteOrderWithQuerier(ctx, s.querier(), orderID, status)
}

// API key operations

// upsertAPIKeyWithQuerier stores a key, updating name, role and active flag
// when the token is already registered
func (s *SQLiteStorage) upsertAPIKeyWithQuerier(ctx context.Context, q querier, key *types.APIKey) error {
	query := `
		INSERT INTO api_keys (id, name, key, role, active, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			active = excluded.active
		RETURNING id, created_at
	`
	err := q.QueryRowContext(ctx, query,
		uuid.NewString(), key.Name, key.Key, string(key.Role), key.Active, now(),
	).Scan(&key.ID, &key.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert api key: %w", err)
	}
	return nil
}

func (s *SQLiteStorage) UpsertAPIKey(ctx context.Context, key *types.APIKey) error {
	return s.upsertAPIKeyWithQuerier(ctx, s.querier(), key)
}

// getAPIKeyByTokenWithQuerier is the internal implementation that uses a querier
func (s *SQLiteStorage) getAPIKeyByTokenWithQuerier(ctx context.Context, q querier, token string) (*types.APIKey, error) {
	query := `
		SELECT id, name, key, role, active, created_at
		FROM api_keys
		WHERE key = ?
	`
	var key types.APIKey
	var role string
	err := q.QueryRowContext(ctx, query, token).Scan(
		&key.ID, &key.Name, &key.Key, &role, &key.Active, &key.CreatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	key.Role = types.Role(role)
	return &key, nil
}

func (s *SQLiteStorage) GetAPIKeyByToken(ctx context.Context, token string) (*types.APIKey, error) {
	return s.getAPIKeyByTokenWithQuerier(ctx, s.querier(), token)
}

// Status operations

// getStatusWithQuerier gathers order book statistics. today bounds the
// upcoming slot counts.
func (s *SQLiteStorage) getStatusWithQuerier(ctx context.Context, q querier, today string) (*Status, error) {
	status := &Status{
		OrdersByStatus: make(map[types.OrderStatus]int),
	}

	version, err := currentSchemaVersion(ctx, q)
	if err != nil {
		return nil, err
	}
	status.SchemaVersion = version.String()

	rows, err := q.QueryContext(ctx, "SELECT status, COUNT(*) FROM orders GROUP BY status")
	if err != nil {
		return nil, err
	}
	for rows.Next() {
		var orderStatus string
		var count int
		if err := rows.Scan(&orderStatus, &count); err != nil {
			_ = rows.Close()
			return nil, err
		}
		status.OrdersByStatus[types.OrderStatus(orderStatus)] = count
		status.TotalOrders += count
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, err
	}
	_ = rows.Close()

	if err := q.QueryRowContext(ctx, "SELECT COUNT(*) FROM customers").Scan(&status.Customers); err != nil {
		return nil, err
	}

	err = q.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(CASE WHEN status = 'available' THEN 1 ELSE 0 END), 0)
		FROM time_slots
		WHERE date >= ?
	`, today).Scan(&status.UpcomingSlots, &status.AvailableSlots)
	if err != nil {
		return nil, err
	}

	var pageCount, pageSize int
	if err := q.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		_ = q.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize)
		status.DatabaseSizeMB = float64(pageCount*pageSize) / (1024 * 1024)
	}

	var foreignKeys int
	_ = q.QueryRowContext(ctx, "PRAGMA foreign_keys").Scan(&foreignKeys)
	status.Health = HealthStatus{
		DatabaseAccessible: true,
		ForeignKeysEnabled: foreignKeys == 1,
	}

	return status, nil
}

func (s *SQLiteStorage) GetStatus(ctx context.Context, today string) (*Status, error) {
	return s.getStatusWithQuerier(ctx, s.querier(), today)
}

// Transaction implementations. Every method runs on the transaction's
// querier; going through the *sql.DB would wait forever on the single
// pooled connection the transaction holds.

func (t *sqliteTx) UpsertCustomerByPhone(ctx context.Context, customer *types.Customer) error {
	return t.storage.upsertCustomerByPhoneWithQuerier(ctx, t.querier(), customer)
}

func (t *sqliteTx) GetCustomer(ctx context.Context, customerID string) (*types.Customer, error) {
	return t.storage.getCustomerWithQuerier(ctx, t.querier(), customerID)
}

func (t *sqliteTx) UpsertPaletteType(ctx context.Context, paletteType *types.PaletteType) error {
	return t.storage.upsertPaletteTypeWithQuerier(ctx, t.querier(), paletteType)
}

func (t *sqliteTx) GetPaletteType(ctx context.Context, paletteTypeID string) (*types.PaletteType, error) {
	return t.storage.getPaletteTypeWithQuerier(ctx, t.querier(), paletteTypeID)
}

func (t *sqliteTx) ListPaletteTypes(ctx context.Context) ([]*types.PaletteType, error) {
	return t.storage.listPaletteTypesWithQuerier(ctx, t.querier())
}

func (t *sqliteTx) InsertTimeSlotIfAbsent(ctx context.Context, slot *types.TimeSlot) (bool, error) {
	return t.storage.insertTimeSlotIfAbsentWithQuerier(ctx, t.querier(), slot)
}

func (t *sqliteTx) GetTimeSlot(ctx context.Context, slotID string) (*types.TimeSlot, error) {
	return t.storage.getTimeSlotWithQuerier(ctx, t.querier(), slotID)
}

func (t *sqliteTx) ListAvailableSlots(ctx context.Context, fromDate string) ([]*types.TimeSlot, error) {
	return t.storage.listAvailableSlotsWithQuerier(ctx, t.querier(), fromDate)
}

func (t *sqliteTx) ListSlotsByDate(ctx context.Context, date string) ([]*types.TimeSlot, error) {
	return t.storage.listSlotsByDateWithQuerier(ctx, t.querier(), date)
}

func (t *sqliteTx) IncrementSlotUsage(ctx context.Context, slotID string) (*types.TimeSlot, error) {
	return t.storage.incrementSlotUsageWithQuerier(ctx, t.querier(), slotID)
}

func (t *sqliteTx) DecrementSlotUsage(ctx context.Context, slotID string) (*types.TimeSlot, error) {
	return t.storage.decrementSlotUsageWithQuerier(ctx, t.querier(), slotID)
}

func (t *sqliteTx) CreateOrder(ctx context.Context, order *types.Order) error {
	return t.storage.createOrderWithQuerier(ctx, t.querier(), order)
}

func (t *sqliteTx) CreateOrderItems(ctx context.Context, items []*types.OrderItem) error {
	return t.storage.createOrderItemsWithQuerier(ctx, t.querier(), items)
}

func (t *sqliteTx) GetOrder(ctx context.Context, orderID string) (*types.Order, error) {
	return t.storage.getOrderWithQuerier(ctx, t.querier(), orderID)
}

func (t *sqliteTx) GetOrderDetail(ctx context.Context, orderID string) (*types.Order, error) {
	return t.storage.getOrderDetailWithQuerier(ctx, t.querier(), orderID)
}

func (t *sqliteTx) ListOrders(ctx context.Context, filter *OrderFilter) ([]*types.Order, error) {
	return t.storage.listOrdersWithQuerier(ctx, t.querier(), filter)
}

func (t *sqliteTx) ListOrderItems(ctx context.Context, orderID string) ([]types.OrderItem, error) {
	return t.storage.listOrderItemsWithQuerier(ctx, t.querier(), orderID)
}

func (t *sqliteTx) UpdateOrderStatus(ctx context.Context, orderID string, from, to types.OrderStatus) (*types.Order, error) {
	return t.storage.updateOrderStatusWithQuerier(ctx, t.querier(), orderID, from, to)
}

func (t *sqliteTx) SetSlotReserved(ctx context.Context, orderID string, reserved bool) error {
	return t.storage.setSlotReservedWithQuerier(ctx, t.querier(), orderID, reserved)
}

func (t *sqliteTx) DeleteOrder(ctx context.Context, orderID string, status types.OrderStatus) error {
	return t.storage.deleteOrderWithQuerier(ctx, t.querier(), orderID, status)
}

func (t *sqliteTx) UpsertAPIKey(ctx context.Context, key *types.APIKey) error {
	return t.storage.upsertAPIKeyWithQuerier(ctx, t.querier(), key)
}

func (t *sqliteTx) GetAPIKeyByToken(ctx context.Context, token string) (*types.APIKey, error) {
	return t.storage.getAPIKeyByTokenWithQuerier(ctx, t.querier(), token)
}

func (t *sqliteTx) GetStatus(ctx context.Context, today string) (*Status, error) {
	return t.storage.getStatusWithQuerier(ctx, t.querier(), today)
}

func (t *sqliteTx) Ping(ctx context.Context) error {
	// The open transaction already proves the connection is alive
	return nil
}

func (t *sqliteTx) Close() error {
	// Transactions don't close the underlying connection
	return nil
}

func (t *sqliteTx) BeginTx(ctx context.Context) (Tx, error) {
	// SQLite does not support true nested transactions
	return nil, errors.New("nested transactions not supported")
}
