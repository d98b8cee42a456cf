package httpapi

import (
	"context"
	"net/http"
	"strings"

	"github.com/hfarhat1982/gestion-tournee/internal/auth"
	"github.com/hfarhat1982/gestion-tournee/internal/orders"
	"github.com/hfarhat1982/gestion-tournee/internal/storage"
	"github.com/hfarhat1982/gestion-tournee/pkg/types"
)

// generateRequest is the body of POST /commandes/generate-slots
type generateRequest struct {
	StartDate string `json:"start_date"`
	DaysAhead int    `json:"days_ahead"`
}

// generateResponse reports a generation run
type generateResponse struct {
	Created   int    `json:"created"`
	StartDate string `json:"start_date"`
	DaysAhead int    `json:"days_ahead"`
}

// healthResponse is the body of GET /healthz
type healthResponse struct {
	Status    string `json:"status"`
	BuildMode string `json:"build_mode"`
	Driver    string `json:"driver"`
}

// createOrder handles POST /commandes
func (s *Server) createOrder(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req orders.SubmitRequest
	if err := decodeBody(r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	order, err := s.orders.Submit(ctx, req)
	if err != nil {
		s.writeServiceError(w, r, "create order", err)
		return
	}
	writeJSON(w, http.StatusCreated, order)
}

// listOrders handles GET /commandes
func (s *Server) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	q := r.URL.Query()
	filter := storage.OrderFilter{
		Status:       types.OrderStatus(strings.TrimSpace(q.Get("status"))),
		DeliveryDate: strings.TrimSpace(q.Get("delivery_date")),
	}
	list, err := s.orders.List(ctx, filter)
	if err != nil {
		s.writeServiceError(w, r, "list orders", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// getOrder handles GET /commandes/{id}
func (s *Server) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	order, err := s.orders.Get(ctx, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, "get order", err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// transition runs a lifecycle event for the order named in the path
func (s *Server) transition(w http.ResponseWriter, r *http.Request, op string, apply func(context.Context, string) (*types.Order, error)) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	order, err := apply(ctx, r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}

// confirmOrder handles PUT /commandes/{id}/valider
func (s *Server) confirmOrder(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "confirm order", s.orders.Confirm)
}

// deliverOrder handles PUT /commandes/{id}/livrer
func (s *Server) deliverOrder(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "deliver order", s.orders.Deliver)
}

// cancelOrder handles DELETE /commandes/{id}
func (s *Server) cancelOrder(w http.ResponseWriter, r *http.Request) {
	s.transition(w, r, "cancel order", s.orders.Cancel)
}

// purgeOrder handles DELETE /commandes/{id}/purge
func (s *Server) purgeOrder(w http.ResponseWriter, r *http.Request) {
	key := auth.KeyFromContext(r.Context())
	if err := auth.RequireRole(key, types.RoleAdmin); err != nil {
		s.writeServiceError(w, r, "purge order", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.orders.Delete(ctx, r.PathValue("id"), key.Role); err != nil {
		s.writeServiceError(w, r, "purge order", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// generateSlots handles POST /commandes/generate-slots
func (s *Server) generateSlots(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	var req generateRequest
	if err := decodeBody(r, &req, true); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	window, err := s.slots.Resolve(req.StartDate, req.DaysAhead)
	if err != nil {
		s.writeServiceError(w, r, "generate slots", err)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), generateTimeout)
	defer cancel()

	created, err := s.slots.Generate(ctx, window.StartDate, window.DaysAhead)
	if err != nil {
		s.writeServiceError(w, r, "generate slots", err)
		return
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Created:   created,
		StartDate: window.StartDate,
		DaysAhead: window.DaysAhead,
	})
}

// agenda handles GET /agenda
func (s *Server) agenda(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	available, err := s.slots.Available(ctx)
	if err != nil {
		s.writeServiceError(w, r, "agenda", err)
		return
	}
	writeJSON(w, http.StatusOK, available)
}

// paletteTypes handles GET /palette-types
func (s *Server) paletteTypes(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	list, err := s.orders.PaletteTypes(ctx)
	if err != nil {
		s.writeServiceError(w, r, "list palette types", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// healthz handles GET /healthz
func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), requestTimeout)
	defer cancel()

	if err := s.store.Ping(ctx); err != nil {
		s.logger.FromContext(r.Context()).Error("health check failed", "error", err)
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "ok",
		BuildMode: storage.BuildMode,
		Driver:    storage.DriverName,
	})
}

// notFound answers every unrouted request
func (s *Server) notFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "Not found")
}
