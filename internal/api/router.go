package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/skyformat99/libmqtt-3/internal/binding"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeNotFound(w, "no such endpoint")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, "method not allowed")
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware(false))
			r.Get("/stats", s.handleStats)
			r.Get("/stats/{event}", s.handleEventStats)
		})
		r.With(s.authMiddleware(true)).Get(s.wsCfg.Path, s.handleWebSocket)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}

// eventCount is one row of the stats response.
type eventCount struct {
	Event      string `json:"event"`
	Dispatched uint64 `json:"dispatched"`
	Dropped    uint64 `json:"dropped"`
}

func (s *Server) count(kind binding.EventKind) eventCount {
	return eventCount{
		Event:      kind.String(),
		Dispatched: s.stats.Dispatched(kind),
		Dropped:    s.stats.Dropped(kind),
	}
}

// handleStats returns the live client count and per-kind event totals.
func (s *Server) handleStats(w http.ResponseWriter, _ *http.Request) {
	events := make([]eventCount, 0, int(binding.EventMessage)+1)
	for kind := binding.EventConnect; kind <= binding.EventMessage; kind++ {
		events = append(events, s.count(kind))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"clients":           s.clients(),
		"websocket_clients": s.hub.ClientCount(),
		"events":            events,
	})
}

// handleEventStats returns the totals for one event kind, by name.
func (s *Server) handleEventStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "event")
	for kind := binding.EventConnect; kind <= binding.EventMessage; kind++ {
		if kind.String() == name {
			writeJSON(w, http.StatusOK, s.count(kind))
			return
		}
	}
	writeNotFound(w, "unknown event: "+name)
}
