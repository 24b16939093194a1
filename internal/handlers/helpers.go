package handlers

import (
	"encoding/json"
	"net/http"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeData wraps data in the success envelope.
func writeData(w http.ResponseWriter, status int, data interface{}) {
	writeJSON(w, status, map[string]interface{}{
		"success": true,
		"data":    data,
	})
}

// writeError wraps a coded error in the failure envelope.
func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]interface{}{
		"success": false,
		"error": map[string]string{
			"code":    code,
			"message": message,
		},
	})
}

// internalError reports a store or process fault. In production the detail
// is withheld from the client and only logged.
func (a *API) internalError(w http.ResponseWriter, code string, err error) {
	msg := err.Error()
	if a.Production {
		msg = "Internal server error"
	}
	writeError(w, http.StatusInternalServerError, code, msg)
}
