package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/tap/pkg/proxy/middleware"
)

const (
	maxEchoBodyBytes     = 1 << 20
	defaultStreamEvents  = 3
	maxStreamEvents      = 100
	defaultStreamSpacing = 100 * time.Millisecond
)

// registerDemoRoutes adds the routes served when no upstream is configured.
func registerDemoRoutes(r chi.Router) {
	r.Get("/hello", handleHello)
	r.Post("/echo", handleEcho)
	r.Get("/users/{id}", handleUser)
	r.Get("/stream", handleStream)
	r.Get("/panic", handlePanic)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func handleHello(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = "world"
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "hello, " + name})
}

func handleEcho(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxEchoBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			middleware.WriteError(w, r, http.StatusRequestEntityTooLarge, "Request body too large.", "invalid_request")
			return
		}
		middleware.WriteError(w, r, http.StatusBadRequest, "Failed to read request body.", "invalid_request")
		return
	}

	contentType := r.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}

// handleUser returns a record with credential fields so masking can be seen
// on captured responses.
func handleUser(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	writeJSON(w, http.StatusOK, map[string]any{
		"id":       id,
		"name":     "Demo User " + id,
		"email":    "user" + id + "@example.com",
		"password": "hunter2",
		"api_key":  "sk-demo-" + id,
	})
}

// handleStream writes server-sent events, flushing after each one. The
// number of events is taken from ?count (default 3, at most 100).
func handleStream(w http.ResponseWriter, r *http.Request) {
	count := defaultStreamEvents
	if raw := r.URL.Query().Get("count"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > maxStreamEvents {
			middleware.WriteError(w, r, http.StatusBadRequest,
				fmt.Sprintf("count must be between 1 and %d.", maxStreamEvents), "invalid_request")
			return
		}
		count = n
	}

	rc := http.NewResponseController(w)
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)

	ticker := time.NewTicker(defaultStreamSpacing)
	defer ticker.Stop()

	for i := 1; i <= count; i++ {
		if _, err := fmt.Fprintf(w, "id: %d\ndata: {\"event\":%d}\n\n", i, i); err != nil {
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
		if i == count {
			break
		}
		select {
		case <-ticker.C:
		case <-r.Context().Done():
			return
		}
	}
}

func handlePanic(http.ResponseWriter, *http.Request) {
	panic("demo handler panic")
}
