package server

import (
	"encoding/json"
	"errors"
	"net/http"

	"kestrel/internal/api/dto"
	"kestrel/internal/blocklist"
	"kestrel/internal/database"

	"github.com/charmbracelet/log"
)

func listBlocks(w http.ResponseWriter, r *http.Request) {
	entries, err := database.ListBlockedEntries(r.Context())
	if err != nil {
		log.Error("Failed to list blocked addresses", "error", err)
		writeError(w, "Failed to list blocked addresses", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

func addBlock(w http.ResponseWriter, r *http.Request) {
	var request dto.BlockRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
		writeError(w, "Invalid request", http.StatusBadRequest)
		return
	}

	created, err := blocklist.Add(r.Context(), request.IP, request.Reason)
	if err != nil {
		if errors.Is(err, blocklist.ErrInvalidAddress) {
			writeError(w, "Invalid IP address", http.StatusBadRequest)
			return
		}
		log.Error("Failed to block address", "ip", request.IP, "error", err)
		writeError(w, "Failed to block address", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto.BlockResult{IP: blocklist.Normalize(request.IP), Created: created})
}

func removeBlock(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")

	if err := blocklist.Remove(r.Context(), ip); err != nil {
		if errors.Is(err, blocklist.ErrInvalidAddress) {
			writeError(w, "Invalid IP address", http.StatusBadRequest)
			return
		}
		log.Error("Failed to unblock address", "ip", ip, "error", err)
		writeError(w, "Failed to unblock address", http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func blockSuspicious(w http.ResponseWriter, r *http.Request) {
	ip := r.PathValue("ip")

	created, err := blocklist.Promote(r.Context(), ip)
	if err != nil {
		if errors.Is(err, blocklist.ErrInvalidAddress) {
			writeError(w, "Invalid IP address", http.StatusBadRequest)
			return
		}
		if errors.Is(err, database.ErrSuspiciousNotFound) {
			writeError(w, "Address is not in the suspicious list", http.StatusNotFound)
			return
		}
		log.Error("Failed to promote suspicious address", "ip", ip, "error", err)
		writeError(w, "Failed to promote suspicious address", http.StatusInternalServerError)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	writeJSON(w, status, dto.BlockResult{IP: blocklist.Normalize(ip), Created: created})
}
