package workeragent

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/GAIR-NLP/agentcore/internal/logging"
	"github.com/GAIR-NLP/agentcore/internal/ptysession"
)

// Config controls how the worker agent spawns sessions and serves HTTP.
type Config struct {
	Port          int
	WorkspacePath string
	Shell         string
	// UsePTY selects the real pseudo-terminal backend; when false, sessions
	// run on the embedded mvdan.cc/sh interpreter fallback (local/dev mode
	// or hosts where no pty device is available).
	UsePTY bool
}

// DefaultConfig mirrors the values spec.md assumes when a flag is absent.
func DefaultConfig() Config {
	return Config{Port: 8088, WorkspacePath: "/workspace", Shell: "/bin/bash", UsePTY: true}
}

// Server is the worker-side HTTP Session Protocol implementation (spec.md
// section 6).
type Server struct {
	cfg     Config
	router  *chi.Mux
	httpSrv *http.Server
	metrics *metrics

	mu       sync.Mutex
	sessions map[string]backend
	started  time.Time
}

// New constructs a Server; call Start to begin serving.
func New(cfg Config) *Server {
	s := &Server{
		cfg:      cfg,
		router:   chi.NewRouter(),
		metrics:  newMetrics(),
		sessions: make(map[string]backend),
		started:  time.Now(),
	}
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	r := s.router
	r.Get("/health", s.handleHealth)
	r.Get("/timestamp", s.handleTimestamp)
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.registry, promhttp.HandlerOpts{}))

	r.Route("/api/sessions", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Route("/{sid}", func(r chi.Router) {
			r.Delete("/", s.handleDeleteSession)
			r.Post("/command", s.handleRunCommand)
			r.Post("/input", s.handleInput)
			r.Get("/output", s.handleGetOutput)
			r.Delete("/output", s.handleClearOutput)
			r.Get("/status", s.handleStatus)
			r.Get("/shell_children", s.handleShellChildren)
			r.Get("/check_input", s.handleCheckInput)
			r.Post("/kill_processes", s.handleKillProcesses)
		})
	})
}

// Start begins serving on cfg.Port; blocks until the server stops.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.cfg.Port),
		Handler: s.router,
	}
	logging.Info().Int("port", s.cfg.Port).Msg("worker agent listening")
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully stops the HTTP server and closes every session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	for sid, b := range s.sessions {
		_ = b.Close()
		delete(s.sessions, sid)
	}
	s.mu.Unlock()
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the chi router for testing.
func (s *Server) Router() *chi.Mux { return s.router }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleTimestamp(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]float64{"timestamp": float64(time.Now().UnixNano()) / 1e9})
}

type createSessionRequest struct {
	SessionID string `json:"session_id"`
	Shell     string `json:"shell"`
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	_ = decodeJSON(r, &req)

	if req.SessionID == "" {
		req.SessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}
	shell := req.Shell
	if shell == "" {
		shell = s.cfg.Shell
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.sessions[req.SessionID]; exists {
		writeSuccess(w, map[string]any{"session_id": req.SessionID})
		return
	}

	var b backend
	if s.cfg.UsePTY {
		sess, err := ptysession.New(req.SessionID, shell, s.cfg.WorkspacePath)
		if err != nil {
			writeFailure(w, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		b = ptyBackend{sess}
	} else {
		sh, err := newShBackend(s.cfg.WorkspacePath)
		if err != nil {
			writeFailure(w, http.StatusInternalServerError, err.Error(), nil)
			return
		}
		b = sh
	}

	s.sessions[req.SessionID] = b
	s.metrics.activeSessions.Set(float64(len(s.sessions)))
	writeSuccess(w, map[string]any{"session_id": req.SessionID})
}

func (s *Server) session(sid string) (backend, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, ok := s.sessions[sid]
	return b, ok
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	s.mu.Lock()
	b, ok := s.sessions[sid]
	if ok {
		delete(s.sessions, sid)
	}
	s.metrics.activeSessions.Set(float64(len(s.sessions)))
	s.mu.Unlock()

	if !ok {
		writeFailure(w, http.StatusNotFound, "session not found", nil)
		return
	}
	_ = b.Close()
	writeSuccess(w, nil)
}

type commandRequest struct {
	Command string `json:"command"`
}

func (s *Server) handleRunCommand(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	b, ok := s.session(sid)
	if !ok {
		writeFailure(w, http.StatusNotFound, "session not found", nil)
		return
	}

	var req commandRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := b.RunCommand(r.Context(), req.Command); err != nil {
		s.metrics.commandsRun.WithLabelValues("error").Inc()
		writeFailure(w, http.StatusOK, err.Error(), nil)
		return
	}
	s.metrics.commandsRun.WithLabelValues("ok").Inc()
	writeSuccess(w, nil)
}

type inputRequest struct {
	Input string `json:"input"`
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	b, ok := s.session(sid)
	if !ok {
		writeFailure(w, http.StatusNotFound, "session not found", nil)
		return
	}

	var req inputRequest
	if err := decodeJSON(r, &req); err != nil {
		writeFailure(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := b.InputText(req.Input); err != nil {
		writeFailure(w, http.StatusOK, "", map[string]any{"input_check": err.Error()})
		return
	}
	writeSuccess(w, map[string]any{"input_length": len(req.Input)})
}

func (s *Server) handleGetOutput(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	b, ok := s.session(sid)
	if !ok {
		writeFailure(w, http.StatusNotFound, "session not found", nil)
		return
	}

	q := r.URL.Query()
	startLines, _ := strconv.Atoi(q.Get("start_lines"))
	endLines, _ := strconv.Atoi(q.Get("end_lines"))
	var since *time.Time
	if raw := q.Get("since_timestamp"); raw != "" {
		if f, err := strconv.ParseFloat(raw, 64); err == nil {
			t := time.Unix(0, int64(f*1e9))
			since = &t
		}
	}

	out := b.Output(startLines, endLines, since)
	writeSuccess(w, map[string]any{"output": linesFromString(out)})
}

func (s *Server) handleClearOutput(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	b, ok := s.session(sid)
	if !ok {
		writeFailure(w, http.StatusNotFound, "session not found", nil)
		return
	}
	b.ClearBuffer()
	writeSuccess(w, nil)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	b, ok := s.session(sid)
	if !ok {
		writeFailure(w, http.StatusNotFound, "session not found", nil)
		return
	}
	writeSuccess(w, map[string]any{
		"is_alive":      b.Alive(),
		"last_activity": float64(b.LastActivity().UnixNano()) / 1e9,
		"created_at":    float64(b.CreatedAt().UnixNano()) / 1e9,
	})
}

func (s *Server) handleShellChildren(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	b, ok := s.session(sid)
	if !ok {
		writeFailure(w, http.StatusNotFound, "session not found", nil)
		return
	}
	status, err := b.ShellChildrenStatus()
	if err != nil {
		writeFailure(w, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	writeSuccess(w, map[string]any{"children_status": map[string]any{
		"completed":      status.Completed,
		"reason":         status.Reason,
		"children_count": status.ChildrenCount,
		"children_info":  status.ChildrenInfo,
	}})
}

func (s *Server) handleCheckInput(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	b, ok := s.session(sid)
	if !ok {
		writeFailure(w, http.StatusNotFound, "session not found", nil)
		return
	}
	noOutputSeconds, err := strconv.Atoi(r.URL.Query().Get("no_output_seconds"))
	if err != nil || noOutputSeconds <= 0 {
		noOutputSeconds = 20
	}
	waiting, reason, canInput, seconds := b.CheckInput(noOutputSeconds)
	status := map[string]any{
		"waiting_for_input": waiting,
		"reason":            reason,
		"can_input":         canInput,
	}
	if seconds != nil {
		status["seconds_since_output"] = *seconds
	}
	writeSuccess(w, map[string]any{"input_status": status})
}

type killRequest struct {
	Force bool `json:"force"`
}

func (s *Server) handleKillProcesses(w http.ResponseWriter, r *http.Request) {
	sid := chi.URLParam(r, "sid")
	b, ok := s.session(sid)
	if !ok {
		writeFailure(w, http.StatusNotFound, "session not found", nil)
		return
	}
	var req killRequest
	_ = decodeJSON(r, &req)

	killed, failed, signal := b.KillProcesses(req.Force)
	s.metrics.killsIssued.WithLabelValues(strconv.FormatBool(req.Force)).Inc()
	writeSuccess(w, map[string]any{
		"killed_processes": killed,
		"failed_kills":     failed,
		"signal_used":      signal,
	})
}
