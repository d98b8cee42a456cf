// Package mcp exposes the palette order service as Model Context Protocol
// tools, so that an assistant can take orders and manage the delivery agenda.
//
// Tools:
//   - submit_order: admit a provisional order, optionally reserving a slot
//   - get_order, list_orders: read orders with their customer and items
//   - confirm_order, deliver_order, cancel_order: lifecycle events
//   - list_available_slots: the delivery agenda from today onwards
//   - generate_slots: create hourly slots for a range of days
//   - list_palette_types: the palette catalog
//   - get_status: order counts, slot availability and database health
//
// # Protocol Overview
//
// MCP is JSON-RPC 2.0 over stdio:
//
//	Client → Server: {"method": "tools/call", "params": {...}}
//	Server → Client: {"result": {...}}
//
// The server is started with:
//
//	palette mcp
//
// Because stdout carries the protocol, logs are written to stderr.
//
// # Tool: submit_order
//
//	Request:
//	{
//	  "name": "submit_order",
//	  "arguments": {
//	    "customer_name": "Martin",
//	    "customer_phone": "0600000001",
//	    "delivery_address": "3 quai des Chartrons, Bordeaux",
//	    "delivery_date": "2030-05-02",
//	    "time_slot_id": "7b0c...",
//	    "items": [{"palette_type_id": "e1f2...", "quantity": 2}]
//	  }
//	}
//
// The response is the stored order, as returned by get_order.
//
// # MCP Client Configuration
//
//	{
//	  "mcpServers": {
//	    "palette": {
//	      "command": "/usr/local/bin/palette",
//	      "args": ["mcp"],
//	      "env": {
//	        "PALETTE_DB_PATH": "/var/lib/palette/palette.db"
//	      }
//	    }
//	  }
//	}
//
// # Error Handling
//
// Failed tool calls return an *MCPError:
//   - -32602: invalid params (missing fields, bad dates, unknown palette type)
//   - -32603: internal error; details are only logged
//   - -32010: order not found
//   - -32011: event not allowed in the order's current status
//   - -32012: slot full (only with the reject slot policy)
//   - -32013: slot generation already running
package mcp
