package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// defaultOwner is used when no owner is given. Authentication is handled by
// an external front door; this server only scopes data by owner id.
const defaultOwner = "default-user"

func ownerFromRequest(r *http.Request) string {
	if owner := r.URL.Query().Get("owner_id"); owner != "" {
		return owner
	}
	return defaultOwner
}

// ListSessions returns the owner's sessions ordered by recent activity.
func (a *API) ListSessions(w http.ResponseWriter, r *http.Request) {
	sessions, err := a.Registry.ListByOwner(ownerFromRequest(r))
	if err != nil {
		a.internalError(w, "SESSION_LIST_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, sessions)
}

func (a *API) GetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := a.Registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		a.internalError(w, "SESSION_GET_ERROR", err)
		return
	}
	if sess == nil {
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found")
		return
	}
	writeData(w, http.StatusOK, sess)
}

func (a *API) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OwnerID string `json:"owner_id"`
		Name    string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Session name is required")
		return
	}
	if req.OwnerID == "" {
		req.OwnerID = defaultOwner
	}

	sess, err := a.Registry.Create(req.OwnerID, req.Name)
	if err != nil {
		a.internalError(w, "SESSION_CREATE_ERROR", err)
		return
	}
	writeData(w, http.StatusCreated, sess)
}

func (a *API) RenameSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		writeError(w, http.StatusBadRequest, "VALIDATION_ERROR", "Session name is required")
		return
	}

	id := chi.URLParam(r, "id")
	ok, err := a.Registry.Rename(id, req.Name)
	if err != nil {
		a.internalError(w, "SESSION_UPDATE_ERROR", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found")
		return
	}

	sess, err := a.Registry.Get(id)
	if err != nil {
		a.internalError(w, "SESSION_UPDATE_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, sess)
}

func (a *API) DeleteSession(w http.ResponseWriter, r *http.Request) {
	ok, err := a.Registry.Delete(chi.URLParam(r, "id"))
	if err != nil {
		a.internalError(w, "SESSION_DELETE_ERROR", err)
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "SESSION_NOT_FOUND", "Session not found")
		return
	}
	writeData(w, http.StatusOK, nil)
}

func (a *API) ActivateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := a.Registry.Activate(id)
	if err != nil {
		a.internalError(w, "SESSION_ACTIVATE_ERROR", err)
		return
	}
	if !ok {
		writeError(w, http.StatusInternalServerError, "SESSION_ACTIVATE_ERROR", "Failed to activate session")
		return
	}

	sess, err := a.Registry.Get(id)
	if err != nil {
		a.internalError(w, "SESSION_ACTIVATE_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, sess)
}

func (a *API) DeactivateSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ok, err := a.Registry.Deactivate(id)
	if err != nil {
		a.internalError(w, "SESSION_DEACTIVATE_ERROR", err)
		return
	}
	if !ok {
		writeError(w, http.StatusInternalServerError, "SESSION_DEACTIVATE_ERROR", "Failed to deactivate session")
		return
	}

	sess, err := a.Registry.Get(id)
	if err != nil {
		a.internalError(w, "SESSION_DEACTIVATE_ERROR", err)
		return
	}
	writeData(w, http.StatusOK, sess)
}
