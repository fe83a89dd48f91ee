package handlers

import "net/http"

// HealthHandler responde 200 enquanto o processo estiver de pé.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
