package mcp

import (
	"context"

	"github.com/mark3labs/mcp-go/server"

	"github.com/hfarhat1982/gestion-tournee/internal/logging"
	"github.com/hfarhat1982/gestion-tournee/internal/orders"
	"github.com/hfarhat1982/gestion-tournee/internal/slots"
	"github.com/hfarhat1982/gestion-tournee/internal/storage"
)

const (
	// ServerName is the MCP server name
	ServerName = "palette-orders"
	// ServerVersion is the current server version
	ServerVersion = "1.0.0"
)

// Server wraps the MCP server with application dependencies
type Server struct {
	mcp     *server.MCPServer
	storage storage.Storage
	orders  *orders.Service
	slots   *slots.Generator
	logger  *logging.Logger
}

// NewServer creates an MCP server over already opened collaborators. The
// caller keeps ownership of store.
func NewServer(store storage.Storage, orderService *orders.Service, generator *slots.Generator, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}

	s := &Server{
		mcp: server.NewMCPServer(
			ServerName,
			ServerVersion,
			server.WithToolCapabilities(false),
		),
		storage: store,
		orders:  orderService,
		slots:   generator,
		logger:  logger.WithComponent("mcp"),
	}
	s.registerTools()
	return s
}

// Serve runs the MCP server on stdio and blocks until the client disconnects
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio", "name", ServerName, "version", ServerVersion)
	return server.ServeStdio(s.mcp)
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcp.AddTool(submitOrderTool(), s.handleSubmitOrder)
	s.mcp.AddTool(getOrderTool(), s.handleGetOrder)
	s.mcp.AddTool(listOrdersTool(), s.handleListOrders)
	s.mcp.AddTool(transitionTool("confirm_order", "Confirm a provisional order"), s.handleConfirmOrder)
	s.mcp.AddTool(transitionTool("deliver_order", "Mark a provisional or confirmed order as delivered"), s.handleDeliverOrder)
	s.mcp.AddTool(transitionTool("cancel_order", "Cancel an open order and release its delivery slot"), s.handleCancelOrder)
	s.mcp.AddTool(listAvailableSlotsTool(), s.handleListAvailableSlots)
	s.mcp.AddTool(generateSlotsTool(), s.handleGenerateSlots)
	s.mcp.AddTool(listPaletteTypesTool(), s.handleListPaletteTypes)
	s.mcp.AddTool(getStatusTool(), s.handleGetStatus)
}
