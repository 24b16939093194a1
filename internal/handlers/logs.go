package handlers

import (
	"net/http"
	"strconv"

	"github.com/termfleet/termfleet/internal/logging"
)

// ServerLogs returns the tail of the server log.
func (a *API) ServerLogs(w http.ResponseWriter, r *http.Request) {
	lines, _ := strconv.Atoi(r.URL.Query().Get("lines"))
	if lines <= 0 {
		lines = 500
	}

	tail, err := logging.ReadTail(lines)
	if err != nil {
		a.internalError(w, "LOG_READ_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, map[string]string{"logs": tail})
}

// ClearLogs truncates the server log file.
func (a *API) ClearLogs(w http.ResponseWriter, r *http.Request) {
	if err := logging.Clear(); err != nil {
		a.internalError(w, "LOG_CLEAR_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, nil)
}
