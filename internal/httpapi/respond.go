package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/hfarhat1982/gestion-tournee/internal/auth"
	"github.com/hfarhat1982/gestion-tournee/internal/ledger"
	"github.com/hfarhat1982/gestion-tournee/internal/orders"
	"github.com/hfarhat1982/gestion-tournee/internal/slots"
	"github.com/hfarhat1982/gestion-tournee/internal/storage"
)

// errorResponse is the body of every error reply
type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, errorResponse{Error: message})
}

// decodeBody reads a JSON body into target. An empty body is accepted when
// allowEmpty is set and leaves target untouched.
func decodeBody(r *http.Request, target any, allowEmpty bool) error {
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(target); err != nil {
		if allowEmpty && errors.Is(err, io.EOF) {
			return nil
		}
		return err
	}
	return nil
}

// statusFor maps a service error to an HTTP status and client message.
// Unclassified errors become a generic 500.
func statusFor(err error) (int, string) {
	switch {
	case orders.IsValidation(err), orders.IsPersistence(err):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, slots.ErrInvalidWindow):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, ledger.ErrSlotNotFound):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound, "Not found"
	case errors.Is(err, orders.ErrForbidden), errors.Is(err, auth.ErrForbidden):
		return http.StatusForbidden, "Forbidden"
	case errors.Is(err, orders.ErrInvalidTransition),
		errors.Is(err, ledger.ErrSlotFull),
		errors.Is(err, slots.ErrGenerationInProgress):
		return http.StatusConflict, err.Error()
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "Request timed out"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// writeServiceError logs and writes err. Server faults are logged at error
// level; client faults at debug.
func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status, message := statusFor(err)
	log := s.logger.FromContext(r.Context())
	if status >= http.StatusInternalServerError {
		log.Error(op+" failed", "error", err)
	} else {
		log.Debug(op+" rejected", "status", status, "error", err)
	}
	writeError(w, status, message)
}
