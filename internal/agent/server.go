package agent

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog/log"
)

type Server struct {
	manager *Manager
}

func NewServer(m *Manager) *Server {
	return &Server{manager: m}
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/session/start", s.handleStart)
	mux.HandleFunc("/session/stop", s.handleStop)
	mux.HandleFunc("/session/status", s.handleStatus)
	// Routes used by older admin servers.
	mux.HandleFunc("/start_session", s.handleStart)
	mux.HandleFunc("/stop_session", s.handleStop)
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return mux
}

func allowStartStop(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if !allowStartStop(w, r) {
		return
	}
	err := s.manager.Start(r.Context())
	switch {
	case err == nil:
		log.Info().Str("remote", r.RemoteAddr).Msg("session started")
		writeStatus(w, http.StatusOK, "ok")
	case errors.Is(err, ErrAlreadyStarted):
		writeStatus(w, http.StatusForbidden, "already_started")
	default:
		log.Error().Err(err).Msg("session start failed")
		writeStatus(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if !allowStartStop(w, r) {
		return
	}
	err := s.manager.Stop(r.Context())
	switch {
	case err == nil:
		log.Info().Str("remote", r.RemoteAddr).Msg("session stopped")
		writeStatus(w, http.StatusOK, "stopped")
	case errors.Is(err, ErrAlreadyStopped):
		writeStatus(w, http.StatusForbidden, "already_stopped")
	default:
		log.Error().Err(err).Msg("session stop failed")
		writeStatus(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.manager.Status())
}

func writeStatus(w http.ResponseWriter, code int, status string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"status": status})
}
