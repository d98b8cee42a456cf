package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/hfarhat1982/gestion-tournee/internal/ledger"
	"github.com/hfarhat1982/gestion-tournee/internal/orders"
	"github.com/hfarhat1982/gestion-tournee/internal/slots"
	"github.com/hfarhat1982/gestion-tournee/internal/storage"
	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

// MCP error codes
const (
	ErrorCodeInvalidParams     = -32602 // Invalid method parameters
	ErrorCodeInternalError     = -32603 // Internal JSON-RPC error
	ErrorCodeNotFound          = -32010 // Order or slot does not exist
	ErrorCodeInvalidTransition = -32011 // Event not allowed in the order's status
	ErrorCodeSlotFull          = -32012 // Slot has no capacity left
	ErrorCodeBusy              = -32013 // Slot generation already running
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

// handleSubmitOrder handles the submit_order tool invocation
func (s *Server) handleSubmitOrder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	var req orders.SubmitRequest
	if err := decodeArgs(args, &req); err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, "invalid arguments", map[string]interface{}{
			"reason": err.Error(),
		})
	}
	if req.CreatedViaAPI == nil {
		viaAPI := true
		req.CreatedViaAPI = &viaAPI
	}

	order, err := s.orders.Submit(ctx, req)
	if err != nil {
		return nil, s.toolError(ctx, "submit order", err)
	}
	return mcp.NewToolResultText(formatJSON(order)), nil
}

// handleGetOrder handles the get_order tool invocation
func (s *Server) handleGetOrder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	orderID, err := requiredOrderID(request)
	if err != nil {
		return nil, err
	}

	order, err := s.orders.Get(ctx, orderID)
	if err != nil {
		return nil, s.toolError(ctx, "get order", err)
	}
	return mcp.NewToolResultText(formatJSON(order)), nil
}

// handleListOrders handles the list_orders tool invocation
func (s *Server) handleListOrders(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	limit := getIntDefault(args, "limit", defaultListLimit)
	if limit < 1 || limit > maxListLimit {
		return nil, newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("limit must be between 1 and %d", maxListLimit), map[string]interface{}{
			"param": "limit",
			"value": limit,
		})
	}

	filter := storage.OrderFilter{
		Status:       types.OrderStatus(getStringDefault(args, "status", "")),
		DeliveryDate: getStringDefault(args, "delivery_date", ""),
		Limit:        limit,
	}
	list, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, s.toolError(ctx, "list orders", err)
	}

	response := map[string]interface{}{
		"count":  len(list),
		"orders": list,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleConfirmOrder handles the confirm_order tool invocation
func (s *Server) handleConfirmOrder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.transition(ctx, request, "confirm order", s.orders.Confirm)
}

// handleDeliverOrder handles the deliver_order tool invocation
func (s *Server) handleDeliverOrder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.transition(ctx, request, "deliver order", s.orders.Deliver)
}

// handleCancelOrder handles the cancel_order tool invocation
func (s *Server) handleCancelOrder(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return s.transition(ctx, request, "cancel order", s.orders.Cancel)
}

func (s *Server) transition(ctx context.Context, request mcp.CallToolRequest, op string, apply func(context.Context, string) (*types.Order, error)) (*mcp.CallToolResult, error) {
	orderID, err := requiredOrderID(request)
	if err != nil {
		return nil, err
	}

	order, err := apply(ctx, orderID)
	if err != nil {
		return nil, s.toolError(ctx, op, err)
	}
	return mcp.NewToolResultText(formatJSON(order)), nil
}

// handleListAvailableSlots handles the list_available_slots tool invocation
func (s *Server) handleListAvailableSlots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	available, err := s.slots.Available(ctx)
	if err != nil {
		return nil, s.toolError(ctx, "list available slots", err)
	}

	response := map[string]interface{}{
		"from":  s.slots.Today(),
		"count": len(available),
		"slots": available,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleGenerateSlots handles the generate_slots tool invocation
func (s *Server) handleGenerateSlots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		args = map[string]interface{}{}
	}

	window, err := s.slots.Resolve(getStringDefault(args, "start_date", ""), getIntDefault(args, "days_ahead", 0))
	if err != nil {
		return nil, newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	}

	created, err := s.slots.Generate(ctx, window.StartDate, window.DaysAhead)
	if err != nil {
		return nil, s.toolError(ctx, "generate slots", err)
	}

	response := map[string]interface{}{
		"created":    created,
		"start_date": window.StartDate,
		"days_ahead": window.DaysAhead,
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// handleListPaletteTypes handles the list_palette_types tool invocation
func (s *Server) handleListPaletteTypes(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	list, err := s.orders.PaletteTypes(ctx)
	if err != nil {
		return nil, s.toolError(ctx, "list palette types", err)
	}
	return mcp.NewToolResultText(formatJSON(list)), nil
}

// handleGetStatus handles the get_status tool invocation
func (s *Server) handleGetStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	status, err := s.storage.GetStatus(ctx, s.slots.Today())
	if err != nil {
		return nil, s.toolError(ctx, "get status", err)
	}

	byStatus := make(map[string]int, len(status.OrdersByStatus))
	for st, n := range status.OrdersByStatus {
		byStatus[string(st)] = n
	}

	response := map[string]interface{}{
		"schema_version": status.SchemaVersion,
		"policy":         string(s.orders.Policy()),
		"statistics": map[string]interface{}{
			"total_orders":     status.TotalOrders,
			"orders_by_status": byStatus,
			"customers":        status.Customers,
			"upcoming_slots":   status.UpcomingSlots,
			"available_slots":  status.AvailableSlots,
			"database_size_mb": fmt.Sprintf("%.2f", status.DatabaseSizeMB),
		},
		"health": map[string]interface{}{
			"database_accessible":  status.Health.DatabaseAccessible,
			"foreign_keys_enabled": status.Health.ForeignKeysEnabled,
		},
	}
	return mcp.NewToolResultText(formatJSON(response)), nil
}

// Helper functions

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// toolError classifies a service error into an MCPError. Internal errors
// are logged and their details kept out of the message.
func (s *Server) toolError(ctx context.Context, op string, err error) error {
	switch {
	case orders.IsValidation(err), orders.IsPersistence(err), errors.Is(err, slots.ErrInvalidWindow):
		return newMCPError(ErrorCodeInvalidParams, err.Error(), nil)
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, ledger.ErrSlotNotFound):
		return newMCPError(ErrorCodeNotFound, "not found", map[string]interface{}{
			"error": err.Error(),
		})
	case errors.Is(err, orders.ErrInvalidTransition):
		return newMCPError(ErrorCodeInvalidTransition, err.Error(), nil)
	case errors.Is(err, ledger.ErrSlotFull):
		return newMCPError(ErrorCodeSlotFull, err.Error(), nil)
	case errors.Is(err, slots.ErrGenerationInProgress):
		return newMCPError(ErrorCodeBusy, err.Error(), nil)
	}

	s.logger.FromContext(ctx).Error(op+" failed", "error", err)
	return newMCPError(ErrorCodeInternalError, op+" failed", nil)
}

// requiredOrderID extracts the order_id argument
func requiredOrderID(request mcp.CallToolRequest) (string, error) {
	args, ok := request.Params.Arguments.(map[string]interface{})
	if !ok {
		return "", newMCPError(ErrorCodeInvalidParams, "invalid arguments", nil)
	}

	orderID := strings.TrimSpace(getStringDefault(args, "order_id", ""))
	if orderID == "" {
		return "", newMCPError(ErrorCodeInvalidParams, "order_id parameter is required", map[string]interface{}{
			"param":  "order_id",
			"reason": "missing or empty",
		})
	}
	return orderID, nil
}

// decodeArgs maps tool arguments onto a request struct through its json tags
func decodeArgs(args map[string]interface{}, target interface{}) error {
	data, err := json.Marshal(args)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, target)
}

// formatJSON formats data as indented JSON
func formatJSON(data interface{}) string {
	bytes, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", data)
	}
	return string(bytes)
}

// getIntDefault extracts an integer parameter with a default value
func getIntDefault(args map[string]interface{}, key string, defaultValue int) int {
	if val, ok := args[key].(float64); ok {
		return int(val)
	}
	if val, ok := args[key].(int); ok {
		return val
	}
	return defaultValue
}

// getStringDefault extracts a string parameter with a default value
func getStringDefault(args map[string]interface{}, key string, defaultValue string) string {
	if val, ok := args[key].(string); ok {
		return val
	}
	return defaultValue
}
