package tracking

import (
	"context"
	"fmt"
	"net/http"

	"kestrel/internal/blocklist"
)

// Gate rejects blocked addresses before any other request processing. A
// rejection is a designed outcome, not an application error, so nothing is
// logged at error level here.
func Gate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := ClientIP(r)
		if blocklist.Contains(ip) {
			http.Error(w, fmt.Sprintf("Forbidden: address %s is blocked", ip), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Middleware records every request that passed the gate, after the handler
// ran, with the response status it produced. The store runs on a detached
// context so a closed client connection cannot abort the write.
func (i *Ingestor) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		i.Ingest(context.Background(), ClientIP(r), r.URL.Path, recorder.status())
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code  int
	wrote bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wrote {
		s.code = code
		s.wrote = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if !s.wrote {
		s.code = http.StatusOK
		s.wrote = true
	}
	return s.ResponseWriter.Write(b)
}

func (s *statusRecorder) status() int {
	if !s.wrote {
		return 0
	}
	return s.code
}

// Flush keeps streaming handlers working through the wrapper.
func (s *statusRecorder) Flush() {
	if flusher, ok := s.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
