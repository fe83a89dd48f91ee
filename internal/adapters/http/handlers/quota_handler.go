package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/andychen89766-lgtm/a-mathsolver/internal/adapters/http/middleware"
	"github.com/andychen89766-lgtm/a-mathsolver/internal/core/ports"
)

type quotaResponse struct {
	Limit     int        `json:"limit"`
	Used      int64      `json:"used"`
	Remaining int64      `json:"remaining"`
	ResetAt   *time.Time `json:"resetAt,omitempty"`
}

// QuotaHandler mostra o consumo do chamador sem reservar cota.
func QuotaHandler(gate ports.AdmissionGate) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		identity := middleware.IdentityFromContext(r.Context())

		usage, err := gate.Usage(r.Context(), identity)
		if err != nil {
			slog.Error("[GATE] Usage lookup failed", "identity", identity, "error", err)
			writeError(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError))
			return
		}

		resp := quotaResponse{Limit: usage.Limit, Used: usage.Count, Remaining: usage.Remaining()}
		if !usage.ResetAt.IsZero() {
			resetAt := usage.ResetAt.UTC()
			resp.ResetAt = &resetAt
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
