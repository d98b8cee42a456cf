package httpapi

import (
	"errors"
	"net/http"

	"github.com/hfarhat1982/gestion-tournee/internal/auth"
)

const (
	corsAllowOrigin  = "*"
	corsAllowHeaders = "authorization, x-client-info, apikey, content-type"
	corsAllowMethods = "GET, POST, PUT, DELETE, OPTIONS"
)

// cors adds permissive CORS headers and answers preflight requests
func cors(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", corsAllowOrigin)
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Allow-Methods", corsAllowMethods)

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// authenticate rejects requests without a valid bearer token and stores the
// verified key in the request context. /healthz is open.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/healthz" {
			next.ServeHTTP(w, r)
			return
		}

		key, err := s.verifier.Verify(r.Context(), r.Header.Get("Authorization"))
		switch {
		case errors.Is(err, auth.ErrMissingToken):
			writeError(w, http.StatusUnauthorized, "Unauthorized")
			return
		case errors.Is(err, auth.ErrInvalidToken):
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		case err != nil:
			s.logger.FromContext(r.Context()).Error("token verification failed", "error", err)
			writeError(w, http.StatusInternalServerError, "Internal server error")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithKey(r.Context(), key)))
	})
}

// recoverPanics turns a handler panic into a 500 response
func (s *Server) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				if rec == http.ErrAbortHandler {
					panic(rec)
				}
				s.logger.FromContext(r.Context()).Error("handler panic",
					"panic", rec,
					"method", r.Method,
					"path", r.URL.Path)
				writeError(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}
