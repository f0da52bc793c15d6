// Package server exposes the room engine over HTTP and WebSocket.
package server

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"example.com/undercover/internal/auth"
	"example.com/undercover/internal/room"
)

type Server struct {
	log   *slog.Logger
	rooms *room.Directory
	auth  *auth.Service

	// BatchMessages > 0 groups outbound frames into batch envelopes of at
	// most that many messages, flushed after BatchDelay at the latest.
	BatchMessages int
	BatchDelay    time.Duration
}

func NewServer(rooms *room.Directory, authSvc *auth.Service, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{log: log, rooms: rooms, auth: authSvc}
}

func (s *Server) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/api/rooms", s.handleRooms)
	mux.HandleFunc("/ws", s.handleWS)
}

func (s *Server) handleRooms(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		rm := s.rooms.Create(r.Context())
		writeJSON(w, http.StatusOK, map[string]string{"roomId": rm.ID})
	case http.MethodGet:
		writeJSON(w, http.StatusOK, map[string]any{"rooms": s.rooms.List()})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
