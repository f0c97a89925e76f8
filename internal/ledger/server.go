package ledger

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// NewServer routes the metered API. Method checks live in the handlers so
// that a wrong method still gets a JSON body.
func NewServer(h *Handlers, bind string, port int) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/humanize", h.HandleHumanize)
	mux.HandleFunc("/api/rewrite", h.HandleRewrite)
	mux.HandleFunc("/api/status", h.HandleStatus)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return &http.Server{
		Addr:              fmt.Sprintf("%s:%d", bind, port),
		Handler:           accessLog(h.logger, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func accessLog(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		logger.Debug("ledger.request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
