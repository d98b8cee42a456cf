// Package httpapi exposes order admission, the order lifecycle and the
// delivery agenda over HTTP.
//
// Every route except /healthz requires an "Authorization: Bearer <token>"
// header. Errors are always JSON objects of the form {"error": "..."}.
package httpapi

import (
	"net/http"
	"time"

	"github.com/hfarhat1982/gestion-tournee/internal/auth"
	"github.com/hfarhat1982/gestion-tournee/internal/logging"
	"github.com/hfarhat1982/gestion-tournee/internal/orders"
	"github.com/hfarhat1982/gestion-tournee/internal/slots"
	"github.com/hfarhat1982/gestion-tournee/internal/storage"
)

const (
	// requestTimeout bounds a single order operation
	requestTimeout = 5 * time.Second
	// generateTimeout bounds a slot generation run
	generateTimeout = 30 * time.Second
	// maxBodyBytes caps request bodies
	maxBodyBytes = 1 << 20
)

// Server wires HTTP endpoints to the order and slot services
type Server struct {
	orders   *orders.Service
	slots    *slots.Generator
	verifier *auth.Verifier
	store    storage.Storage
	logger   *logging.Logger
}

// New creates the HTTP API
func New(store storage.Storage, orderService *orders.Service, generator *slots.Generator, verifier *auth.Verifier, logger *logging.Logger) *Server {
	if logger == nil {
		logger = logging.Discard()
	}
	return &Server{
		orders:   orderService,
		slots:    generator,
		verifier: verifier,
		store:    store,
		logger:   logger.WithComponent("http"),
	}
}

// Handler returns the routed API wrapped in its middleware chain
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /commandes", s.createOrder)
	mux.HandleFunc("GET /commandes", s.listOrders)
	mux.HandleFunc("GET /commandes/{id}", s.getOrder)
	mux.HandleFunc("PUT /commandes/{id}/valider", s.confirmOrder)
	mux.HandleFunc("PUT /commandes/{id}/livrer", s.deliverOrder)
	mux.HandleFunc("DELETE /commandes/{id}", s.cancelOrder)
	mux.HandleFunc("DELETE /commandes/{id}/purge", s.purgeOrder)
	mux.HandleFunc("POST /commandes/generate-slots", s.generateSlots)
	mux.HandleFunc("GET /agenda", s.agenda)
	mux.HandleFunc("GET /palette-types", s.paletteTypes)
	mux.HandleFunc("GET /healthz", s.healthz)
	mux.HandleFunc("/", s.notFound)

	var h http.Handler = mux
	h = s.authenticate(h)
	h = cors(h)
	h = s.recoverPanics(h)
	h = s.logger.HTTPMiddleware(h)
	return h
}

// NewHTTPServer returns an http.Server for the API with sane timeouts
func (s *Server) NewHTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      45 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
}
