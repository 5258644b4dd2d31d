package transport

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// WriteJSON replies with body encoded as JSON.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		slog.Default().Debug("Response not fully written", "error", err)
	}
}

// WriteError replies with the ErrorBody of err.
func WriteError(w http.ResponseWriter, err error) {
	body := NewErrorBody(err)
	WriteJSON(w, body.Status, body)
}
