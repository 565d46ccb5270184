// Package server provides the HTTP server for the warden daemon.
// It listens on a unix socket and exposes the run registry, an SSE update
// stream, session operations and a websocket attach endpoint.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	wardenerrors "github.com/wardentools/warden/errors"
	"github.com/wardentools/warden/internal/daemon/engine"
	"github.com/wardentools/warden/internal/daemon/store"
	"github.com/wardentools/warden/pkg/runs"
)

// RunningConfig holds the active configuration the daemon was started with.
// Exposed via /api/config so clients can verify what is in effect.
type RunningConfig struct {
	RunsRoot   string        `json:"runs_root"`
	Executable string        `json:"executable"`
	Debounce   time.Duration `json:"debounce"`
	StartedAt  time.Time     `json:"started_at"`
}

// Server manages the daemon's HTTP server over a Unix socket.
type Server struct {
	logger        *logrus.Entry
	server        *http.Server
	engine        *engine.Engine
	runningConfig *RunningConfig
	upgrader      websocket.Upgrader
}

// New creates a new Server instance.
func New(logger *logrus.Entry) *Server {
	return &Server{
		logger: logger,
		upgrader: websocket.Upgrader{
			// The unix socket is the trust boundary; no origin check.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// SetEngine sets the run engine for the server.
func (s *Server) SetEngine(eng *engine.Engine) {
	s.engine = eng
}

// SetRunningConfig sets the running configuration for the server.
func (s *Server) SetRunningConfig(cfg *RunningConfig) {
	s.runningConfig = cfg
}

// ListenAndServe starts the daemon on the given unix socket path.
// It blocks until the server stops or fails.
func (s *Server) ListenAndServe(socketPath string) error {
	// Cleanup stale socket
	if _, err := os.Stat(socketPath); err == nil {
		if err := os.Remove(socketPath); err != nil {
			return fmt.Errorf("failed to remove stale socket: %w", err)
		}
	}

	// Ensure directory exists
	if err := os.MkdirAll(filepath.Dir(socketPath), 0755); err != nil {
		return fmt.Errorf("failed to create socket directory: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("failed to listen on socket: %w", err)
	}

	// Set restrictive permissions on socket
	if err := os.Chmod(socketPath, 0600); err != nil {
		_ = listener.Close()
		return fmt.Errorf("failed to set socket permissions: %w", err)
	}

	s.server = &http.Server{
		Handler: h2c.NewHandler(s.Handler(), &http2.Server{}),
	}

	s.logger.WithField("socket", socketPath).Info("Daemon listening")
	return s.server.Serve(listener)
}

// Handler builds the route table. Split out so tests can drive it with
// httptest without a socket.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	mux.HandleFunc("GET /api/runs", s.handleGetRuns)
	mux.HandleFunc("GET /api/runs/{id}", s.handleGetRun)
	mux.HandleFunc("GET /api/stream", s.handleStream)
	mux.HandleFunc("GET /api/config", s.handleGetConfig)
	mux.HandleFunc("POST /api/dispatch", s.handleDispatch)
	mux.HandleFunc("POST /api/runs/{id}/resume", s.handleResume)
	mux.HandleFunc("POST /api/runs/{id}/control", s.handleControl)
	mux.HandleFunc("POST /api/rescan", s.handleRescan)
	mux.HandleFunc("/api/runs/{id}/attach", s.handleAttach)

	return mux
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// writeError maps a WardenError to an HTTP status plus its JSON form.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch wardenerrors.GetCode(err) {
	case wardenerrors.ErrCodeRunNotFound:
		status = http.StatusNotFound
	case wardenerrors.ErrCodeNoLiveSession, wardenerrors.ErrCodeSessionBusy:
		status = http.StatusConflict
	case wardenerrors.ErrCodeInvalidInput:
		status = http.StatusBadRequest
	case wardenerrors.ErrCodeExecutableMissing, wardenerrors.ErrCodeSpawnFailed:
		status = http.StatusFailedDependency
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if werr, ok := err.(*wardenerrors.WardenError); ok {
		w.Write([]byte(werr.ToJSON()))
		return
	}
	json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}

func (s *Server) handleGetRuns(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.engine.Store().GetRuns())
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}

	id := r.PathValue("id")
	run := s.engine.Store().GetRun(id)
	if run == nil {
		s.writeError(w, wardenerrors.RunNotFound(id))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(run)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	if s.runningConfig == nil {
		http.Error(w, "config not initialized", http.StatusServiceUnavailable)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.runningConfig)
}

func (s *Server) handleDispatch(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id, err := s.engine.Dispatch(req.Prompt)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"run_id": id})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Prompt string `json:"prompt"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	if err := s.engine.Resume(id, req.Prompt); err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"run_id": id})
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Control string `json:"control"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	id := r.PathValue("id")
	if err := s.engine.Control(id, req.Control); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"run_id": id, "control": req.Control})
}

func (s *Server) handleRescan(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}

	s.engine.Rescan()
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("ok"))
}

// handleStream provides Server-Sent Events (SSE) for real-time run updates.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := s.engine.Store().Subscribe()
	defer s.engine.Store().Unsubscribe(ch)

	// Send initial ping to confirm connection
	fmt.Fprintf(w, ": connected\n\n")
	flusher.Flush()

	s.logger.Debug("SSE client connected")

	// Send the current run set immediately so the client has data right
	// away.
	initial := &apiStateUpdate{
		Runs:       s.engine.Store().GetRuns(),
		UpdateType: "initial",
	}
	if data, err := json.Marshal(initial); err == nil {
		fmt.Fprintf(w, "data: %s\n\n", data)
		flusher.Flush()
	}

	for {
		select {
		case <-r.Context().Done():
			s.logger.Debug("SSE client disconnected")
			return
		case update := <-ch:
			apiUpdate := convertToAPIUpdate(update)
			if apiUpdate == nil {
				continue
			}

			data, err := json.Marshal(apiUpdate)
			if err != nil {
				s.logger.WithError(err).Error("Failed to marshal update")
				continue
			}
			// SSE format: "data: {json}\n\n"
			fmt.Fprintf(w, "data: %s\n\n", data)
			flusher.Flush()
		}
	}
}

// apiStateUpdate matches the daemon.StateUpdate type for SSE streaming.
type apiStateUpdate struct {
	Runs       []*runs.Run `json:"runs,omitempty"`
	Run        *runs.Run   `json:"run,omitempty"`
	RemovedID  string      `json:"removed_id,omitempty"`
	UpdateType string      `json:"update_type"`
	Source     string      `json:"source,omitempty"`
	ConfigFile string      `json:"config_file,omitempty"`
}

// convertToAPIUpdate converts internal store.Update to the public API format.
func convertToAPIUpdate(u store.Update) *apiStateUpdate {
	switch u.Type {
	case store.UpdateRunSet:
		if set, ok := u.Payload.(map[string]*runs.Run); ok {
			all := make([]*runs.Run, 0, len(set))
			for _, r := range set {
				all = append(all, r)
			}
			return &apiStateUpdate{
				Runs:       all,
				UpdateType: "run_set",
				Source:     u.Source,
			}
		}
	case store.UpdateRun:
		if r, ok := u.Payload.(*runs.Run); ok {
			return &apiStateUpdate{
				Run:        r,
				UpdateType: "run",
				Source:     u.Source,
			}
		}
	case store.UpdateRunRemoved:
		if id, ok := u.Payload.(string); ok {
			return &apiStateUpdate{
				RemovedID:  id,
				UpdateType: "run_removed",
				Source:     u.Source,
			}
		}
	case store.UpdateConfigReload:
		configFile := ""
		if file, ok := u.Payload.(string); ok {
			configFile = file
		}
		return &apiStateUpdate{
			UpdateType: "config_reload",
			Source:     u.Source,
			ConfigFile: configFile,
		}
	}
	return nil
}

// handleAttach upgrades to a websocket and bridges the client to the run's
// pty: binary frames from the session's merged output stream flow out,
// client frames are written to the pty input.
func (s *Server) handleAttach(w http.ResponseWriter, r *http.Request) {
	if s.engine == nil {
		http.Error(w, "engine not initialized", http.StatusServiceUnavailable)
		return
	}

	id := r.PathValue("id")
	output, cancel, err := s.engine.Sessions().Subscribe(id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	defer cancel()

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.WithError(err).Warn("Websocket upgrade failed")
		return
	}
	defer conn.Close()

	s.logger.WithField("run_id", id).Debug("Attach client connected")

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if err := s.engine.Sessions().Write(id, data); err != nil {
				// Session gone; the output side will close too.
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case chunk, ok := <-output:
			if !ok {
				// Session exited; tell the client before closing.
				deadline := time.Now().Add(time.Second)
				_ = conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session exited"),
					deadline)
				return
			}
			if err := conn.WriteMessage(websocket.BinaryMessage, chunk); err != nil {
				return
			}
		}
	}
}
