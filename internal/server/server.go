// Package server is the HTTP host: it serves the analysis UI with the
// headers browsers need for threaded Wasm, lists installed engines and runs
// one engine worker per WebSocket connection.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/sourcegraph/conc"
	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-analyzer/internal/bundle"
	"github.com/woxQAQ/wasm-analyzer/internal/config"
	"github.com/woxQAQ/wasm-analyzer/internal/metrics"
	"github.com/woxQAQ/wasm-analyzer/internal/wasm"
	"github.com/woxQAQ/wasm-analyzer/internal/worker"
)

const (
	shutdownTimeout   = 10 * time.Second
	readHeaderTimeout = 10 * time.Second
)

// ErrServerClosed is returned by Serve after Close.
var ErrServerClosed = errors.New("server closed")

// Server hosts engine workers over WebSocket alongside the static app.
type Server struct {
	cfg     *config.ServerConfig
	base    *zap.Logger
	logger  *zap.Logger
	runtime *wasm.Runtime
	host    *wasm.HostFunctionsImpl
	bundles *bundle.Manager
	metrics *metrics.Metrics
	router  *chi.Mux

	// Worker sessions outlive their upgrade handler, so they are tracked
	// here rather than by http.Server.
	sessions      conc.WaitGroup
	sessionCtx    context.Context
	cancelSession context.CancelFunc

	mu     sync.Mutex
	closed bool
}

// NewServer creates the Wasm runtime, loads the engine bundles and builds the
// router.
func NewServer(ctx context.Context, cfg *config.ServerConfig, logger *zap.Logger) (*Server, error) {
	// Initialize Wasm runtime.
	wasmConfig := cfg.Wasm.RuntimeConfig()
	wasmRuntime, err := wasm.NewRuntime(ctx, logger, wasmConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Wasm runtime: %w", err)
	}

	hostFuncs := wasm.NewHostFunctions(logger, worker.Config{Threads: cfg.Worker.PoolThreads}.PoolThreads())
	bundles := bundle.NewManager(wasmRuntime, hostFuncs, logger)
	if err := bundles.LoadAll(ctx, cfg.EnginePaths); err != nil {
		wasmRuntime.Close(ctx)
		return nil, fmt.Errorf("failed to load engine bundles: %w", err)
	}
	bundles.SetDefault(cfg.DefaultEngine)

	var m *metrics.Metrics
	if cfg.MetricsEnabled {
		reg := prometheus.NewRegistry()
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		m = metrics.New(reg)
	}

	sessionCtx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:           cfg,
		base:          logger,
		logger:        logger.With(zap.String("component", "server")),
		runtime:       wasmRuntime,
		host:          hostFuncs,
		bundles:       bundles,
		metrics:       m,
		router:        chi.NewRouter(),
		sessionCtx:    sessionCtx,
		cancelSession: cancel,
	}

	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Recoverer)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(m.Middleware)
	if len(cfg.CORS.AllowedOrigins) > 0 {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: []string{"GET", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			ExposedHeaders: []string{"X-Request-Id"},
			MaxAge:         300,
		}))
	}
	s.router.Use(Isolation(cfg.Isolation))

	s.routes()

	s.logger.Info("Server initialized",
		zap.Uint32("wasm_memory_pages", wasmConfig.MemoryPages),
		zap.String("wasm_cache_dir", wasmConfig.CacheDir),
		zap.Int("engines", len(bundles.List())),
	)

	return s, nil
}

// routes registers all HTTP routes on the router.
func (s *Server) routes() {
	s.router.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		s.router.Handle("/metrics", s.metrics.Handler())
	}

	s.router.Get("/v1/engines", s.handleListEngines)
	s.router.Get("/v1/worker", s.handleWorker)

	if s.cfg.StaticDir != "" {
		s.router.Handle("/*", http.FileServer(http.Dir(s.cfg.StaticDir)))
	}
}

// Router returns the chi router.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// Bundles returns the engine bundle manager.
func (s *Server) Bundles() *bundle.Manager {
	return s.bundles
}

// Serve listens on addr until ctx is done or the server is closed.
func (s *Server) Serve(ctx context.Context, addr string) error {
	httpServer := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Server listening", zap.String("addr", addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	case <-ctx.Done():
	case <-s.sessionCtx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}

	s.logger.Info("Server stopped listening")
	return nil
}

// Close ends every worker session, waits for them and shuts the runtime down.
func (s *Server) Close(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.logger.Info("Shutting down server")
	s.cancelSession()

	done := make(chan struct{})
	go func() {
		s.sessions.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.logger.Warn("Worker sessions did not stop in time", zap.Error(ctx.Err()))
	}

	if err := s.bundles.Shutdown(ctx); err != nil {
		return err
	}

	s.logger.Info("Server shutdown complete")
	return nil
}

func (s *Server) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// loggingMiddleware logs each request using the structured logger.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		s.logger.Debug("Request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
