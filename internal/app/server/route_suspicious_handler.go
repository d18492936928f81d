package server

import (
	"net/http"

	"kestrel/internal/database"

	"github.com/charmbracelet/log"
)

func listSuspicious(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"

	entries, err := database.ListSuspiciousIPs(r.Context(), activeOnly)
	if err != nil {
		log.Error("Failed to list suspicious addresses", "error", err)
		writeError(w, "Failed to list suspicious addresses", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func deactivateSuspicious(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")

	if err := database.DeactivateSuspiciousIP(r.Context(), ip); err != nil {
		log.Error("Failed to deactivate suspicious address", "ip", ip, "error", err)
		writeError(w, "Failed to deactivate suspicious address", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
