package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"runtime/debug"
)

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Message   string `json:"message"`
	Type      string `json:"type"`
	RequestID string `json:"request_id,omitempty"`
}

// RecoveryMiddleware recovers from handler panics, logs them with a stack
// trace and returns a JSON 500 response. http.ErrAbortHandler is re-raised
// so net/http can abort the connection.
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			err := recover()
			if err == nil {
				return
			}
			if err == http.ErrAbortHandler {
				panic(err)
			}

			slog.ErrorContext(r.Context(), "panic in handler",
				"error", err,
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)

			WriteError(w, r, http.StatusInternalServerError, "An internal error occurred.", "server_error")
		}()

		next.ServeHTTP(w, r)
	})
}

// WriteError writes a JSON error body carrying the request ID of r.
func WriteError(w http.ResponseWriter, r *http.Request, status int, message, errType string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: errorDetail{
		Message:   message,
		Type:      errType,
		RequestID: GetRequestID(r.Context()),
	}})
}
