package mcp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hfarhat1982/gestion-tournee/internal/orders"
	"github.com/hfarhat1982/gestion-tournee/internal/slots"
	"github.com/hfarhat1982/gestion-tournee/internal/storage"
	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

type testEnv struct {
	server  *Server
	palette *types.PaletteType
}

func setupServer(t *testing.T, policy orders.SlotFailurePolicy) *testEnv {
	store, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	palette := &types.PaletteType{Name: "Europe", Price: decimal.NewNullDecimal(decimal.NewFromInt(15))}
	require.NoError(t, store.UpsertPaletteType(context.Background(), palette))

	clock := func() time.Time { return time.Date(2030, 5, 1, 7, 30, 0, 0, time.UTC) }
	generator := slots.NewGenerator(store, slots.WithCapacity(1), slots.WithClock(clock))
	service := orders.NewService(store, orders.Config{Policy: policy})

	return &testEnv{
		server:  NewServer(store, service, generator, nil),
		palette: palette,
	}
}

func callRequest(name string, args map[string]interface{}) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func resultJSON(t *testing.T, result *mcp.CallToolResult, target interface{}) {
	t.Helper()
	require.NotNil(t, result)
	require.NotEmpty(t, result.Content)
	text, ok := result.Content[0].(mcp.TextContent)
	require.True(t, ok, "expected text content")
	require.NoError(t, json.Unmarshal([]byte(text.Text), target))
}

func requireCode(t *testing.T, err error, code int) {
	t.Helper()
	require.Error(t, err)
	var mcpErr *MCPError
	require.ErrorAs(t, err, &mcpErr)
	assert.Equal(t, code, mcpErr.Code, mcpErr.Message)
}

func (e *testEnv) submitArgs(slotID string) map[string]interface{} {
	args := map[string]interface{}{
		"customer_name":    "Martin",
		"customer_phone":   "0600000001",
		"delivery_address": "3 quai des Chartrons",
		"delivery_date":    "2030-05-02",
		"items": []interface{}{
			map[string]interface{}{"palette_type_id": e.palette.ID, "quantity": float64(2)},
		},
	}
	if slotID != "" {
		args["time_slot_id"] = slotID
	}
	return args
}

func (e *testEnv) generate(t *testing.T) []*types.TimeSlot {
	ctx := context.Background()
	result, err := e.server.handleGenerateSlots(ctx, callRequest("generate_slots", map[string]interface{}{
		"start_date": "2030-05-01",
		"days_ahead": float64(1),
	}))
	require.NoError(t, err)
	var generated struct {
		Created   int    `json:"created"`
		StartDate string `json:"start_date"`
	}
	resultJSON(t, result, &generated)
	require.Equal(t, slots.LastHour-slots.FirstHour, generated.Created)

	result, err = e.server.handleListAvailableSlots(ctx, callRequest("list_available_slots", nil))
	require.NoError(t, err)
	var agenda struct {
		From  string            `json:"from"`
		Count int               `json:"count"`
		Slots []*types.TimeSlot `json:"slots"`
	}
	resultJSON(t, result, &agenda)
	assert.Equal(t, "2030-05-01", agenda.From)
	return agenda.Slots
}

func TestNewServer(t *testing.T) {
	env := setupServer(t, orders.PolicyProceed)
	assert.NotNil(t, env.server.mcp)
	assert.NotNil(t, env.server.orders)
	assert.NotNil(t, env.server.slots)
}

func TestSubmitAndLifecycle(t *testing.T) {
	env := setupServer(t, orders.PolicyProceed)
	ctx := context.Background()
	agenda := env.generate(t)
	require.NotEmpty(t, agenda)

	result, err := env.server.handleSubmitOrder(ctx, callRequest("submit_order", env.submitArgs(agenda[0].ID)))
	require.NoError(t, err)
	var order types.Order
	resultJSON(t, result, &order)
	assert.Equal(t, types.StatusProvisional, order.Status)
	assert.True(t, order.CreatedViaAPI)
	require.NotNil(t, order.TimeSlot)
	assert.Equal(t, types.SlotFull, order.TimeSlot.Status)

	result, err = env.server.handleConfirmOrder(ctx, callRequest("confirm_order", map[string]interface{}{"order_id": order.ID}))
	require.NoError(t, err)
	var confirmed types.Order
	resultJSON(t, result, &confirmed)
	assert.Equal(t, types.StatusConfirmed, confirmed.Status)

	result, err = env.server.handleDeliverOrder(ctx, callRequest("deliver_order", map[string]interface{}{"order_id": order.ID}))
	require.NoError(t, err)
	var delivered types.Order
	resultJSON(t, result, &delivered)
	assert.Equal(t, types.StatusDelivered, delivered.Status)

	_, err = env.server.handleConfirmOrder(ctx, callRequest("confirm_order", map[string]interface{}{"order_id": order.ID}))
	requireCode(t, err, ErrorCodeInvalidTransition)

	result, err = env.server.handleCancelOrder(ctx, callRequest("cancel_order", map[string]interface{}{"order_id": order.ID}))
	require.NoError(t, err)
	var cancelled types.Order
	resultJSON(t, result, &cancelled)
	assert.Equal(t, types.StatusCancelled, cancelled.Status)

	_, err = env.server.handleCancelOrder(ctx, callRequest("cancel_order", map[string]interface{}{"order_id": order.ID}))
	requireCode(t, err, ErrorCodeInvalidTransition)
}

func TestCancelReleasesSlot(t *testing.T) {
	env := setupServer(t, orders.PolicyProceed)
	ctx := context.Background()
	agenda := env.generate(t)

	result, err := env.server.handleSubmitOrder(ctx, callRequest("submit_order", env.submitArgs(agenda[0].ID)))
	require.NoError(t, err)
	var order types.Order
	resultJSON(t, result, &order)

	result, err = env.server.handleCancelOrder(ctx, callRequest("cancel_order", map[string]interface{}{"order_id": order.ID}))
	require.NoError(t, err)
	var cancelled types.Order
	resultJSON(t, result, &cancelled)
	assert.Equal(t, types.StatusCancelled, cancelled.Status)
	require.NotNil(t, cancelled.TimeSlot)
	assert.Equal(t, 0, cancelled.TimeSlot.UsedCapacity)
}

func TestSubmitOrderSlotFullUnderReject(t *testing.T) {
	env := setupServer(t, orders.PolicyReject)
	ctx := context.Background()
	agenda := env.generate(t)

	_, err := env.server.handleSubmitOrder(ctx, callRequest("submit_order", env.submitArgs(agenda[0].ID)))
	require.NoError(t, err)

	_, err = env.server.handleSubmitOrder(ctx, callRequest("submit_order", env.submitArgs(agenda[0].ID)))
	requireCode(t, err, ErrorCodeSlotFull)
}

func TestSubmitOrderValidation(t *testing.T) {
	env := setupServer(t, orders.PolicyProceed)
	ctx := context.Background()

	args := env.submitArgs("")
	delete(args, "delivery_address")
	_, err := env.server.handleSubmitOrder(ctx, callRequest("submit_order", args))
	requireCode(t, err, ErrorCodeInvalidParams)

	args = env.submitArgs("")
	args["items"] = "not a list"
	_, err = env.server.handleSubmitOrder(ctx, callRequest("submit_order", args))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = env.server.handleSubmitOrder(ctx, mcp.CallToolRequest{})
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestGetOrder(t *testing.T) {
	env := setupServer(t, orders.PolicyProceed)
	ctx := context.Background()

	_, err := env.server.handleGetOrder(ctx, callRequest("get_order", map[string]interface{}{}))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = env.server.handleGetOrder(ctx, callRequest("get_order", map[string]interface{}{"order_id": "missing"}))
	requireCode(t, err, ErrorCodeNotFound)

	result, err := env.server.handleSubmitOrder(ctx, callRequest("submit_order", env.submitArgs("")))
	require.NoError(t, err)
	var created types.Order
	resultJSON(t, result, &created)

	result, err = env.server.handleGetOrder(ctx, callRequest("get_order", map[string]interface{}{"order_id": created.ID}))
	require.NoError(t, err)
	var fetched types.Order
	resultJSON(t, result, &fetched)
	assert.Equal(t, created.ID, fetched.ID)
	require.Len(t, fetched.Items, 1)
	assert.Equal(t, env.palette.ID, fetched.Items[0].PaletteTypeID)
}

func TestListOrders(t *testing.T) {
	env := setupServer(t, orders.PolicyProceed)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := env.server.handleSubmitOrder(ctx, callRequest("submit_order", env.submitArgs("")))
		require.NoError(t, err)
	}

	result, err := env.server.handleListOrders(ctx, callRequest("list_orders", map[string]interface{}{
		"status": "provisional",
		"limit":  float64(2),
	}))
	require.NoError(t, err)
	var listed struct {
		Count  int            `json:"count"`
		Orders []*types.Order `json:"orders"`
	}
	resultJSON(t, result, &listed)
	assert.Equal(t, 2, listed.Count)

	_, err = env.server.handleListOrders(ctx, callRequest("list_orders", map[string]interface{}{"limit": float64(0)}))
	requireCode(t, err, ErrorCodeInvalidParams)

	_, err = env.server.handleListOrders(ctx, callRequest("list_orders", map[string]interface{}{"status": "lost"}))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestGenerateSlotsInvalidWindow(t *testing.T) {
	env := setupServer(t, orders.PolicyProceed)
	_, err := env.server.handleGenerateSlots(context.Background(), callRequest("generate_slots", map[string]interface{}{
		"start_date": "tomorrow",
	}))
	requireCode(t, err, ErrorCodeInvalidParams)
}

func TestListPaletteTypes(t *testing.T) {
	env := setupServer(t, orders.PolicyProceed)
	result, err := env.server.handleListPaletteTypes(context.Background(), callRequest("list_palette_types", nil))
	require.NoError(t, err)
	var list []*types.PaletteType
	resultJSON(t, result, &list)
	require.Len(t, list, 1)
	assert.Equal(t, "Europe", list[0].Name)
}

func TestGetStatus(t *testing.T) {
	env := setupServer(t, orders.PolicyProceed)
	ctx := context.Background()
	agenda := env.generate(t)

	_, err := env.server.handleSubmitOrder(ctx, callRequest("submit_order", env.submitArgs(agenda[0].ID)))
	require.NoError(t, err)

	result, err := env.server.handleGetStatus(ctx, callRequest("get_status", nil))
	require.NoError(t, err)
	var status struct {
		SchemaVersion string `json:"schema_version"`
		Policy        string `json:"policy"`
		Statistics    struct {
			TotalOrders    int            `json:"total_orders"`
			OrdersByStatus map[string]int `json:"orders_by_status"`
			Customers      int            `json:"customers"`
			UpcomingSlots  int            `json:"upcoming_slots"`
			AvailableSlots int            `json:"available_slots"`
		} `json:"statistics"`
		Health struct {
			DatabaseAccessible bool `json:"database_accessible"`
			ForeignKeysEnabled bool `json:"foreign_keys_enabled"`
		} `json:"health"`
	}
	resultJSON(t, result, &status)

	assert.Equal(t, storage.CurrentSchemaVersion, status.SchemaVersion)
	assert.Equal(t, "proceed", status.Policy)
	assert.Equal(t, 1, status.Statistics.TotalOrders)
	assert.Equal(t, 1, status.Statistics.OrdersByStatus["provisional"])
	assert.Equal(t, 1, status.Statistics.Customers)
	assert.Equal(t, slots.LastHour-slots.FirstHour, status.Statistics.UpcomingSlots)
	assert.Equal(t, slots.LastHour-slots.FirstHour-1, status.Statistics.AvailableSlots)
	assert.True(t, status.Health.DatabaseAccessible)
	assert.True(t, status.Health.ForeignKeysEnabled)
}
