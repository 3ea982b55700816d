package handler

import "net/http"

// HealthHandler serves the liveness probe endpoint.
type HealthHandler struct {
	online func() bool
}

// NewHealthHandler takes an optional reachability probe; nil reports the
// remote store as unknown.
func NewHealthHandler(online func() bool) *HealthHandler {
	return &HealthHandler{online: online}
}

// Health handles GET /health
//
// The process is alive whether or not the remote store is reachable, so
// the status code is always 200.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	remote := "unknown"
	if h.online != nil {
		remote = "offline"
		if h.online() {
			remote = "online"
		}
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "remote": remote})
}
