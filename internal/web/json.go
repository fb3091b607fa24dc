package web

import (
	"encoding/json"
	"net/http"

	"github.com/sweeney/bed-scheduler/internal/status"
)

// RunResponse is the body returned by POST /run.
type RunResponse struct {
	Success bool                 `json:"success"`
	RunID   string               `json:"run_id"`
	DryRun  bool                 `json:"dry_run"`
	Results []status.ProfileJSON `json:"results"`
	Error   string               `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func writeError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
