package worker

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// ReadyCheck returns a reason the worker is not ready, or "" when it is.
type ReadyCheck func() string

// DispatcherReady fails while the dispatcher connection is down.
func DispatcherReady(d *Dispatcher) ReadyCheck {
	return func() string {
		if d != nil && !d.Connected() {
			return "dispatcher disconnected"
		}
		return ""
	}
}

type opsServer struct {
	worker    *Worker
	checks    []ReadyCheck
	startedAt time.Time
}

// NewOpsHandler serves /healthz, /readyz, /sessions and /metrics.
func NewOpsHandler(w *Worker, m *Metrics, checks ...ReadyCheck) http.Handler {
	srv := &opsServer{worker: w, checks: checks, startedAt: time.Now()}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)

	r.Get("/healthz", srv.handleHealth)
	r.Get("/readyz", srv.handleReady)
	r.Get("/sessions", srv.handleSessions)
	if m != nil {
		r.Method(http.MethodGet, "/metrics", m.Handler())
	}
	return r
}

// NewOpsServer wraps h in an http.Server listening on addr.
func NewOpsServer(addr string, h http.Handler) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

func (s *opsServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":          "ok",
		"service":         "vai-interviewer",
		"worker_id":       s.worker.ID(),
		"active_sessions": s.worker.Active(),
		"capacity":        s.worker.Capacity(),
		"uptime_seconds":  int64(time.Since(s.startedAt).Seconds()),
	})
}

func (s *opsServer) handleReady(w http.ResponseWriter, r *http.Request) {
	reason := ""
	switch {
	case s.worker.Draining():
		reason = "draining"
	case s.worker.Active() >= s.worker.Capacity():
		reason = "at capacity"
	default:
		for _, check := range s.checks {
			if reason = check(); reason != "" {
				break
			}
		}
	}

	if reason != "" {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not_ready", "reason": reason})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *opsServer) handleSessions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.worker.Sessions())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
