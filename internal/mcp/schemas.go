package mcp

import (
	"github.com/mark3labs/mcp-go/mcp"
)

var orderIDProperty = map[string]interface{}{
	"type":        "string",
	"description": "Order identifier",
}

// submitOrderTool returns the tool definition for submit_order
func submitOrderTool() mcp.Tool {
	return mcp.Tool{
		Name:        "submit_order",
		Description: "Admit a palette delivery order as provisional, optionally reserving a delivery slot",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"customer_name": map[string]interface{}{
					"type":        "string",
					"description": "Customer display name",
				},
				"customer_phone": map[string]interface{}{
					"type":        "string",
					"description": "Customer phone; identifies the customer across orders",
				},
				"customer_email": map[string]interface{}{
					"type": "string",
				},
				"customer_address": map[string]interface{}{
					"type": "string",
				},
				"delivery_address": map[string]interface{}{
					"type":        "string",
					"description": "Where the palettes are delivered",
				},
				"delivery_date": map[string]interface{}{
					"type":        "string",
					"description": "Delivery date (YYYY-MM-DD)",
				},
				"time_slot_id": map[string]interface{}{
					"type":        "string",
					"description": "Delivery slot to reserve (see list_available_slots)",
				},
				"notes": map[string]interface{}{
					"type": "string",
				},
				"items": map[string]interface{}{
					"type":        "array",
					"description": "Order lines",
					"minItems":    1,
					"items": map[string]interface{}{
						"type": "object",
						"properties": map[string]interface{}{
							"palette_type_id": map[string]interface{}{"type": "string"},
							"quantity": map[string]interface{}{
								"type":    "integer",
								"minimum": 1,
							},
						},
						"required": []string{"palette_type_id", "quantity"},
					},
				},
			},
			Required: []string{"customer_name", "customer_phone", "delivery_address", "delivery_date", "items"},
		},
	}
}

// getOrderTool returns the tool definition for get_order
func getOrderTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_order",
		Description: "Fetch an order with its customer, palette type, slot and items",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"order_id": orderIDProperty,
			},
			Required: []string{"order_id"},
		},
	}
}

// listOrdersTool returns the tool definition for list_orders
func listOrdersTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_orders",
		Description: "List orders newest first",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"status": map[string]interface{}{
					"type": "string",
					"enum": []string{"pending", "provisional", "confirmed", "delivered", "cancelled"},
				},
				"delivery_date": map[string]interface{}{
					"type":        "string",
					"description": "Only orders delivered on this date (YYYY-MM-DD)",
				},
				"limit": map[string]interface{}{
					"type":    "integer",
					"minimum": 1,
					"maximum": maxListLimit,
					"default": defaultListLimit,
				},
			},
		},
	}
}

// transitionTool returns the definition of a lifecycle tool taking only an order id
func transitionTool(name, description string) mcp.Tool {
	return mcp.Tool{
		Name:        name,
		Description: description,
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"order_id": orderIDProperty,
			},
			Required: []string{"order_id"},
		},
	}
}

// listAvailableSlotsTool returns the tool definition for list_available_slots
func listAvailableSlotsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_available_slots",
		Description: "List delivery slots from today onwards that still have capacity",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// generateSlotsTool returns the tool definition for generate_slots
func generateSlotsTool() mcp.Tool {
	return mcp.Tool{
		Name:        "generate_slots",
		Description: "Create hourly delivery slots (08:00-18:00) for a range of days; existing slots are kept",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]interface{}{
				"start_date": map[string]interface{}{
					"type":        "string",
					"description": "First day (YYYY-MM-DD), defaults to today",
				},
				"days_ahead": map[string]interface{}{
					"type":    "integer",
					"minimum": 1,
					"maximum": 366,
					"default": 30,
				},
			},
		},
	}
}

// listPaletteTypesTool returns the tool definition for list_palette_types
func listPaletteTypesTool() mcp.Tool {
	return mcp.Tool{
		Name:        "list_palette_types",
		Description: "List the palette catalog",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}

// getStatusTool returns the tool definition for get_status
func getStatusTool() mcp.Tool {
	return mcp.Tool{
		Name:        "get_status",
		Description: "Report order counts, slot availability and database health",
		InputSchema: mcp.ToolInputSchema{
			Type:       "object",
			Properties: map[string]interface{}{},
		},
	}
}
