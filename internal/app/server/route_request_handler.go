package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"kestrel/internal/config"
	"kestrel/internal/database"
	jobruntime "kestrel/internal/jobs/runtime"

	"github.com/charmbracelet/log"
)

func getRequestLogs(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	page, _ := strconv.Atoi(query.Get("page"))
	pageSize, _ := strconv.Atoi(query.Get("page_size"))

	logs, total, err := database.GetRequestLogPage(r.Context(), query.Get("ip"), page, pageSize)
	if err != nil {
		log.Error("Failed to list request logs", "error", err)
		writeError(w, "Failed to list request logs", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"total":    total,
		"requests": logs,
	})
}

func getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := database.GetTrafficStats(r.Context(), time.Now())
	if err != nil {
		log.Error("Failed to collect traffic stats", "error", err)
		writeError(w, "Failed to collect traffic stats", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// runDetector triggers an analysis of the trailing window immediately instead
// of waiting for the next scheduled run.
func runDetector(w http.ResponseWriter, r *http.Request) {
	report, err := jobruntime.RunDetection(r.Context(), time.Now())
	if err != nil {
		log.Error("Manual detector run failed", "error", err)
		writeError(w, "Detector run failed", http.StatusInternalServerError)
		return
	}

	failed := make([]string, 0, len(report.Failures))
	for _, failure := range report.Failures {
		failed = append(failed, failure.Heuristic)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"window_start":     report.WindowStart,
		"window_end":       report.WindowEnd,
		"flagged":          report.Flagged,
		"promoted":         report.Promoted,
		"completed":        report.Completed,
		"failed":           failed,
		"scanning_skipped": report.ScanningSkipped,
	})
}

func getGlobalSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, config.GetConfig())
}

func saveGlobalSettings(w http.ResponseWriter, r *http.Request) {
	var newConfig config.Config
	if err := json.NewDecoder(r.Body).Decode(&newConfig); err != nil {
		log.Error("Error decoding request body:", err)
		writeError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	config.SetConfig(newConfig)
	writeJSON(w, http.StatusOK, config.GetConfig())
}
