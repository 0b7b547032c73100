package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-analyzer/internal/bundle"
	"github.com/woxQAQ/wasm-analyzer/internal/transport"
	"github.com/woxQAQ/wasm-analyzer/internal/worker"
)

type healthResponse struct {
	Status  string `json:"status"`
	Engines int    `json:"engines"`
}

// EngineInfo describes an installed engine bundle.
type EngineInfo struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Description string    `json:"description,omitempty"`
	Operations  []string  `json:"operations"`
	Threads     int       `json:"threads,omitempty"`
	SizeBytes   int64     `json:"size_bytes"`
	LoadedAt    time.Time `json:"loaded_at"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Engines: len(s.bundles.List())})
}

func (s *Server) handleListEngines(w http.ResponseWriter, _ *http.Request) {
	list := s.bundles.List()
	engines := make([]EngineInfo, 0, len(list))
	for _, b := range list {
		ops := append([]string{}, b.Manifest.Operations...)
		engines = append(engines, EngineInfo{
			Name:        b.Name(),
			Version:     b.Version(),
			Description: b.Manifest.Description,
			Operations:  ops,
			Threads:     b.Threads(),
			SizeBytes:   b.Compiled.SizeBytes,
			LoadedAt:    b.LoadedAt,
		})
	}
	s.writeJSON(w, http.StatusOK, engines)
}

// handleWorker upgrades to a WebSocket and runs a worker for the requested
// engine over it. The session ends when either side closes the connection.
func (s *Server) handleWorker(w http.ResponseWriter, r *http.Request) {
	if s.isClosed() {
		s.writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: ErrServerClosed.Error()})
		return
	}

	binding, b, err := s.bundles.Binding(r.URL.Query().Get("engine"))
	if err != nil {
		var notFound *bundle.BundleNotFoundError
		if errors.As(err, &notFound) {
			s.writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		}
		s.writeJSON(w, http.StatusInternalServerError, errorResponse{Error: err.Error()})
		return
	}

	port, err := transport.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: s.cfg.CORS.AllowedOrigins,
	}, s.base)
	if err != nil {
		// Accept has already written the failure response.
		s.logger.Warn("WebSocket upgrade failed", zap.Error(err))
		return
	}

	threads := s.cfg.Worker.PoolThreads
	if threads == 0 {
		threads = b.Threads()
	}
	wk := worker.New(binding, port, worker.Config{Threads: threads},
		s.base.With(zap.String("engine", b.Name())),
		worker.WithMetrics(s.metrics),
	)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		port.Close()
		return
	}
	s.sessions.Go(func() {
		if err := wk.Run(s.sessionCtx); err != nil {
			s.logger.Debug("Worker session ended",
				zap.String("worker", wk.ID()),
				zap.Error(err),
			)
		}
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("Failed to encode response", zap.Error(err))
	}
}
