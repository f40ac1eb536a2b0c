package api

import (
	"encoding/json"
	"net/http"
	"time"
)

// SnapshotHeader carries the fetch time of the snapshot a response was served from.
const SnapshotHeader = "X-Snapshot-Fetched-At"

// ErrorResponse is the body of every non-2xx API response.
type ErrorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		http.Error(w, "Failed to encode response", http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

func setSnapshotHeader(w http.ResponseWriter, fetchedAt time.Time) {
	w.Header().Set(SnapshotHeader, fetchedAt.UTC().Format(time.RFC3339))
}
