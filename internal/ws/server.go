package ws

import (
	"bufio"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/KasunDA/fc-admin/internal/changes"
	"github.com/KasunDA/fc-admin/internal/metrics"
	"github.com/KasunDA/fc-admin/internal/profile"
	"github.com/KasunDA/fc-admin/internal/session"
)

const maxBodySize = 1 << 20

// Server is the admin HTTP API: session control, change ingestion,
// selection, profile storage and the live event feed.
type Server struct {
	lifecycle   *session.Lifecycle
	assembler   *profile.Assembler
	broadcaster *Broadcaster
	metrics     *metrics.Metrics
	metricsPath string

	mu               sync.RWMutex
	primaryNamespace string

	frontendDir     string
	embeddedHandler http.Handler
	allowedOrigins  map[string]bool
	allowedHosts    map[string]bool
	logger          zerolog.Logger
}

func NewServer(lc *session.Lifecycle, asm *profile.Assembler, b *Broadcaster, primaryNamespace string, allowedOrigins []string) *Server {
	s := &Server{
		lifecycle:        lc,
		assembler:        asm,
		broadcaster:      b,
		primaryNamespace: primaryNamespace,
		allowedOrigins:   make(map[string]bool),
		allowedHosts:     make(map[string]bool),
		logger:           log.With().Str("component", "api").Logger(),
	}
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		s.allowedOrigins[trimmed] = true
		if parsed, err := url.Parse(trimmed); err == nil && parsed.Host != "" {
			s.allowedHosts[parsed.Host] = true
		}
	}
	return s
}

// SetMetrics exposes m at path and counts storage failures. Must be called
// before SetupRoutes.
func (s *Server) SetMetrics(m *metrics.Metrics, path string) {
	s.metrics = m
	s.metricsPath = path
}

// SetFrontend serves static files from dir, or from embedded when dir is
// empty. Must be called before SetupRoutes.
func (s *Server) SetFrontend(dir string, embedded http.Handler) {
	s.frontendDir = dir
	s.embeddedHandler = embedded
}

// SetPrimaryNamespace changes the namespace used by routes that do not name
// one, such as the legacy {"sel": [...]} selection.
func (s *Server) SetPrimaryNamespace(ns string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.primaryNamespace = ns
}

func (s *Server) primary() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.primaryNamespace
}

func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /session/start", s.handleStart)
	mux.HandleFunc("POST /session/stop", s.handleStop)
	mux.HandleFunc("GET /session", s.handleSession)
	mux.HandleFunc("GET /session/changes", s.handleChanges)
	mux.HandleFunc("GET /session/changes/{namespace}", s.handleChanges)
	mux.HandleFunc("GET /changes", s.handleChanges)
	mux.HandleFunc("POST /session/select", s.handleSelect)

	mux.HandleFunc("POST /changes/submit/{namespace}", s.handleSubmit)
	mux.HandleFunc("POST /submit_change/{namespace}", s.handleSubmit)

	mux.HandleFunc("GET /deploys", s.handleDeploys)
	mux.HandleFunc("GET /profiles/discard/{id}", s.handleDiscard)
	mux.HandleFunc("POST /profiles/discard/{id}", s.handleDiscard)
	mux.HandleFunc("POST /profiles/save/{id}", s.handleSave)
	mux.HandleFunc("POST /profile/save/{id}", s.handleSave)

	mux.HandleFunc("GET /profiles/{$}", s.handleProfileIndex)
	mux.HandleFunc("GET /profiles", s.handleProfileIndex)
	mux.HandleFunc("GET /profiles/{id}", s.handleProfileGet)
	mux.HandleFunc("DELETE /profiles/{id}", s.handleProfileDelete)
	mux.HandleFunc("GET /profiles/delete/{id}", s.handleProfileDelete)

	mux.HandleFunc("/ws", s.handleWS)
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, "ok")
	})
	if s.metrics != nil && s.metricsPath != "" {
		mux.Handle("GET "+s.metricsPath, s.metrics.Handler())
	}

	if s.frontendDir != "" {
		s.logger.Info().Str("dir", s.frontendDir).Msg("Serving frontend from filesystem")
		mux.Handle("/", http.FileServer(http.Dir(s.frontendDir)))
	} else if s.embeddedHandler != nil {
		s.logger.Info().Msg("Serving embedded frontend")
		mux.Handle("/", s.embeddedHandler)
	}
}

// Handler returns the routed API wrapped in security headers and request
// logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.SetupRoutes(mux)
	return securityHeaders(s.logRequests(mux))
}

func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		// The desktop viewer connects to the tunnel on another port.
		h.Set("Content-Security-Policy", "default-src 'self'; connect-src 'self' ws: wss:")
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// Hijack lets the WebSocket upgrade through the logging wrapper.
func (r *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := r.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	return h.Hijack()
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.code).
			Dur("took", time.Since(start)).
			Msg("request")
	})
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{CheckOrigin: s.checkOrigin}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn().Err(err).Msg("ws upgrade error")
		return
	}

	c, err := s.broadcaster.AddClient(conn)
	if err != nil {
		s.logger.Warn().Err(err).Str("remote", r.RemoteAddr).Msg("ws client rejected")
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, err.Error()))
		conn.Close()
		return
	}
	s.logger.Info().Str("remote", r.RemoteAddr).Msg("WebSocket client connected")

	go func() {
		defer func() {
			s.broadcaster.RemoveClient(c)
			s.logger.Info().Str("remote", r.RemoteAddr).Msg("WebSocket client disconnected")
		}()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	form, err := readForm(r)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "bad_form_data")
		return
	}
	host := form.first("host")
	if host == "" {
		writeStatus(w, http.StatusForbidden, "no host was specified in POST request")
		return
	}
	if err := s.lifecycle.Start(r.Context(), host); err != nil {
		s.writeError(w, err)
		return
	}
	writeStatus(w, http.StatusOK, "ok")
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	err := s.lifecycle.Stop(r.Context())
	switch {
	case err == nil:
		writeStatus(w, http.StatusOK, "stopped")
	case errors.Is(err, session.ErrNotActive):
		writeStatus(w, http.StatusForbidden, "already_stopped")
	default:
		// The session is closed; only the remote teardown failed.
		s.writeError(w, err)
	}
}

func (s *Server) handleSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.lifecycle.Snapshot())
}

func (s *Server) handleChanges(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("namespace")
	if ns == "" {
		ns = s.primary()
	}
	entries, err := s.lifecycle.Dump(ns)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if entries == nil {
		entries = []changes.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	ns := r.PathValue("namespace")
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "bad_form_data")
		return
	}
	ev, err := changes.ParsePayload(ns, body)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.lifecycle.RouteChange(ev); err != nil {
		if errors.Is(err, changes.ErrUnknownNamespace) || errors.Is(err, session.ErrNotActive) {
			writeStatus(w, http.StatusForbidden, "namespace "+ns+" not supported or session not started")
			return
		}
		s.writeError(w, err)
		return
	}
	writeStatus(w, http.StatusOK, "ok")
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodySize))
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "bad_form_data")
		return
	}
	selection, err := parseSelection(body, s.primary())
	if err != nil {
		s.logger.Debug().Err(err).Msg("bad selection")
		writeStatus(w, http.StatusForbidden, "bad_form_data")
		return
	}
	id, err := s.lifecycle.CommitSelection(selection)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "uuid": id})
}

func (s *Server) handleDeploys(w http.ResponseWriter, r *http.Request) {
	deploys := s.lifecycle.Deploys().List()
	out := make([]DeploySummary, 0, len(deploys))
	for _, d := range deploys {
		out = append(out, summarize(d))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleDiscard(w http.ResponseWriter, r *http.Request) {
	s.assembler.Discard(r.PathValue("id"))
	writeStatus(w, http.StatusOK, "ok")
}

func (s *Server) handleSave(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	form, err := readForm(r)
	if err != nil {
		writeStatus(w, http.StatusBadRequest, "bad_form_data")
		return
	}
	md, err := form.metadata()
	if err != nil {
		s.writeError(w, err)
		return
	}
	p, err := s.assembler.Build(r.Context(), id, md)
	if err != nil {
		if errors.Is(err, profile.ErrStorageWrite) && s.metrics != nil {
			s.metrics.StorageError("save")
		}
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "uid": p.UID})
}

func (s *Server) handleProfileIndex(w http.ResponseWriter, r *http.Request) {
	index, err := s.assembler.List(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if index == nil {
		index = []profile.IndexEntry{}
	}
	writeJSON(w, http.StatusOK, index)
}

func (s *Server) handleProfileGet(w http.ResponseWriter, r *http.Request) {
	id := strings.TrimSuffix(r.PathValue("id"), ".json")
	p, err := s.assembler.Get(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleProfileDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.assembler.Delete(r.Context(), r.PathValue("id")); err != nil {
		if s.metrics != nil {
			s.metrics.StorageError("delete")
		}
		s.writeError(w, err)
		return
	}
	writeStatus(w, http.StatusOK, "ok")
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	code, status := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeStatus(w, code, status)
}

func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	parsed, err := url.Parse(origin)
	if err != nil || parsed.Host == "" {
		return false
	}
	if len(s.allowedOrigins) > 0 {
		return s.allowedOrigins[origin] || s.allowedHosts[parsed.Host]
	}
	if parsed.Host == r.Host {
		return true
	}
	switch parsed.Hostname() {
	case "localhost", "127.0.0.1", "::1":
		return true
	}
	return false
}
