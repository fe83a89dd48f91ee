package handlers

import (
	"log/slog"
	"net/http"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/ports"
)

// StatsHandler expõe os contadores agregados de desfecho.
func StatsHandler(stats ports.StatsStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap, err := stats.Snapshot(r.Context())
		if err != nil {
			slog.Error("[HTTP] Stats snapshot failed", "error", err)
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
