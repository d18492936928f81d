package server

import (
	"encoding/json"
	"fmt"
	"net"
	"net/http"

	"github.com/charmbracelet/log"
	"golang.org/x/net/netutil"

	"kestrel/internal/auth"
	"kestrel/internal/config"
	"kestrel/internal/support"
	"kestrel/internal/tracking"
)

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, msg string, status int) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS, PUT, DELETE")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// OpenRoutes starts the API server. The gate runs before anything else so
// blocked traffic costs one map lookup; everything that passes is recorded by
// the ingestor with the status the handler produced.
func OpenRoutes(port int, ingestor *tracking.Ingestor) error {
	router := http.NewServeMux()

	router.HandleFunc("POST /register", registerUser)
	router.HandleFunc("POST /login", loginUser)
	router.Handle("GET /checkLogin", auth.RequireAuth(http.HandlerFunc(checkLogin)))

	router.Handle("GET /blocks", auth.RequireAuth(http.HandlerFunc(listBlocks)))
	router.Handle("POST /blocks", auth.IsAdmin(http.HandlerFunc(addBlock)))
	router.Handle("DELETE /blocks/{ip}", auth.IsAdmin(http.HandlerFunc(removeBlock)))

	router.Handle("GET /suspicious", auth.RequireAuth(http.HandlerFunc(listSuspicious)))
	router.Handle("POST /suspicious/{ip}/deactivate", auth.IsAdmin(http.HandlerFunc(deactivateSuspicious)))
	router.Handle("POST /suspicious/{ip}/block", auth.IsAdmin(http.HandlerFunc(blockSuspicious)))

	router.Handle("GET /requests", auth.RequireAuth(http.HandlerFunc(getRequestLogs)))
	router.Handle("GET /stats", auth.RequireAuth(http.HandlerFunc(getStats)))
	router.Handle("POST /detector/run", auth.IsAdmin(http.HandlerFunc(runDetector)))

	router.Handle("GET /global/settings", auth.IsAdmin(http.HandlerFunc(getGlobalSettings)))
	router.Handle("POST /global/settings", auth.IsAdmin(http.HandlerFunc(saveGlobalSettings)))

	inner := http.Handler(router)
	cfg := config.GetConfig()
	if cfg.RateLimit.Enabled {
		limiter := tracking.NewLimiter(tracking.LimiterSettings{
			MaxRequests: int(cfg.RateLimit.MaxRequests),
			Window:      config.GetRateLimitWindow(),
		})
		// Inside the ingest wrapper so rejected requests are still recorded,
		// with the 429 feeding the detector's status data.
		inner = limiter.Middleware(inner)
	}

	handler := enableCORS(tracking.Gate(ingestor.Middleware(inner)))

	addr := fmt.Sprintf(":%d", port)
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("api server listen: %w", err)
	}

	maxConns := support.GetEnvInt("MAX_CONNS", 512)
	if maxConns > 0 {
		listener = netutil.LimitListener(listener, maxConns)
	}

	server := http.Server{
		Addr:    addr,
		Handler: handler,
	}

	log.Infof("Starting kestrel backend on port %s", addr)
	if err := server.Serve(listener); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("api server failed: %w", err)
	}
	return nil
}
