package http

import (
	"encoding/json"
	"net/http"
	"sync"
)

// Status is the latest session state as seen by the polling loop. The HTTP
// handlers read it so they never touch the session from another goroutine.
type Status struct {
	mu      sync.RWMutex
	running bool
	text    string
	ok      bool
}

func (s *Status) SetRunning(running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.running = running
	if !running {
		s.text, s.ok = "", false
	}
}

func (s *Status) SetTranscript(text string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.text, s.ok = text, ok
}

func (s *Status) snapshot() (bool, string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running, s.text, s.ok
}

// Routes are the optional handlers mounted next to the status endpoints.
type Routes struct {
	WebSocket http.HandlerFunc
	Metrics   http.Handler
}

func NewRouter(status *Status, routes Routes) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		running, _, _ := status.snapshot()
		state := "stopped"
		if running {
			state = "running"
		}
		writeJSON(w, map[string]any{"ok": true, "state": state})
	})
	mux.HandleFunc("/transcript", func(w http.ResponseWriter, r *http.Request) {
		_, text, ok := status.snapshot()
		writeJSON(w, map[string]any{"text": text, "ok": ok})
	})
	if routes.WebSocket != nil {
		mux.HandleFunc("/ws/transcribe", routes.WebSocket)
	}
	if routes.Metrics != nil {
		mux.Handle("/metrics", routes.Metrics)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
