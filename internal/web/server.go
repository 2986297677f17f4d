// Package web serves the node's peer table and health over HTTP.
package web

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/sweeney/sat-heartbeat/internal/status"
)

// Server is a read-only view of a status.Tracker.
type Server struct {
	httpServer *http.Server
	tracker    *status.Tracker
}

// New creates a Server on addr. Nothing listens until ListenAndServe or Serve.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker}

	routes := map[string]http.HandlerFunc{
		"/":           s.handleIndex,
		"/index.html": s.handleIndex,
		"/index.json": s.handleJSON,
		"/healthz":    s.handleHealth,
	}
	mux := http.NewServeMux()
	for path, h := range routes {
		mux.Handle(path, readOnly(h))
	}

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the routed handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// readOnly rejects everything but GET and HEAD.
func readOnly(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		h(w, r)
	})
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	// "/" is a catch-all in ServeMux.
	if r.URL.Path != "/" && r.URL.Path != "/index.html" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, s.tracker.Snapshot())
}

func (s *Server) handleJSON(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write(status.FormatJSON(s.tracker.Snapshot()))
}

type healthJSON struct {
	Ready         bool   `json:"ready"`
	Self          string `json:"self"`
	UptimeCounter uint32 `json:"uptime_counter"`
	MQTTConnected bool   `json:"mqtt_connected"`
}

// handleHealth answers 503 until the main loop has completed a pass.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.tracker.Snapshot()
	body, _ := json.Marshal(healthJSON{
		Ready:         snap.Ready,
		Self:          snap.Config.Self,
		UptimeCounter: snap.UptimeS,
		MQTTConnected: snap.MQTTConnected,
	})

	w.Header().Set("Content-Type", "application/json")
	if !snap.Ready {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	w.Write(append(body, '\n'))
}
