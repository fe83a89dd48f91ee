// Package handlers agrupa os handlers HTTP da API do solver.
package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

const (
	msgNoProblem    = "No problem provided"
	msgDailyLimit   = "Daily limit reached"
	msgSolveFailure = "Failed to solve problem"
)

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("[HTTP] Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
