package handler

import "net/http"

// HealthHandler implements GET /health for upstream liveness probes.
type HealthHandler struct{}

// NewHealthHandler builds a HealthHandler.
func NewHealthHandler() *HealthHandler {
	return &HealthHandler{}
}

// ServeHTTP always reports ok; the process being able to answer HTTP at
// all is the liveness signal the peer's watchdog polls for.
func (h *HealthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, map[string]any{"ok": true})
}
