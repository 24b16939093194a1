package handlers

import (
	"net/http"
	"time"
)

func (a *API) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "ok",
		"timestamp":   time.Now().UTC().Format(time.RFC3339),
		"uptime":      time.Since(a.started).Seconds(),
		"connections": a.Relay.ConnCount(),
	})
}
