package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
)

// ListCommands returns a session's commands, newest first.
func (a *API) ListCommands(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "session_id is required")
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	cmds, err := a.Executor.ListBySession(sessionID, limit)
	if err != nil {
		a.internalError(w, "COMMAND_LIST_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, cmds)
}

func (a *API) GetCommand(w http.ResponseWriter, r *http.Request) {
	cmd, err := a.Executor.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.internalError(w, "COMMAND_GET_ERROR", err)
		return
	}
	if cmd == nil {
		writeError(w, http.StatusNotFound, "COMMAND_NOT_FOUND", "Command not found")
		return
	}
	writeData(w, http.StatusOK, cmd)
}

// ExecuteCommand submits a command to a session's shell. The returned
// record reflects submission status, not shell completion.
func (a *API) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Command   string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.SessionID == "" || req.Command == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "session_id and command are required")
		return
	}

	cmd, err := a.Executor.Execute(req.SessionID, req.Command)
	if err != nil {
		a.internalError(w, "COMMAND_EXECUTE_ERROR", err)
		return
	}
	writeData(w, http.StatusCreated, cmd)
}

func (a *API) CommandStats(w http.ResponseWriter, r *http.Request) {
	stats, err := a.Executor.SessionStats(chi.URLParam(r, "sessionId"))
	if err != nil {
		a.internalError(w, "COMMAND_STATS_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, stats)
}
