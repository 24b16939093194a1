package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/termfleet/termfleet/internal/database"
)

// Transcript messages are plain CRUD rows over the store; they carry no
// lifecycle beyond the session cascade.

func (a *API) ListMessages(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "session_id is required")
		return
	}

	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 {
		limit = 100
	}
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))

	var messages []database.Message
	err := a.DB.Where("session_id = ?", sessionID).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&messages).Error
	if err != nil {
		a.internalError(w, "MESSAGE_LIST_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, messages)
}

func (a *API) CreateMessage(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SessionID string `json:"session_id"`
		Type      string `json:"type"`
		Content   string `json:"content"`
		Metadata  string `json:"metadata"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil ||
		req.SessionID == "" || req.Type == "" || req.Content == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "session_id, type, and content are required")
		return
	}

	msg := &database.Message{
		ID:        uuid.New().String(),
		SessionID: req.SessionID,
		Type:      req.Type,
		Content:   req.Content,
		Metadata:  req.Metadata,
	}
	if err := a.DB.Create(msg).Error; err != nil {
		a.internalError(w, "MESSAGE_CREATE_ERROR", err)
		return
	}
	writeData(w, http.StatusCreated, msg)
}

func (a *API) DeleteMessage(w http.ResponseWriter, r *http.Request) {
	res := a.DB.Delete(&database.Message{}, "id = ?", chi.URLParam(r, "id"))
	if res.Error != nil {
		a.internalError(w, "MESSAGE_DELETE_ERROR", res.Error)
		return
	}
	if res.RowsAffected == 0 {
		writeError(w, http.StatusNotFound, "MESSAGE_NOT_FOUND", "Message not found")
		return
	}
	writeData(w, http.StatusOK, nil)
}
