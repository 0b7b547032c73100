package main

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-analyzer/internal/bridge"
	"github.com/woxQAQ/wasm-analyzer/internal/bundle"
	"github.com/woxQAQ/wasm-analyzer/internal/transport"
	"github.com/woxQAQ/wasm-analyzer/internal/wasm"
	"github.com/woxQAQ/wasm-analyzer/internal/worker"
)

type targetOptions struct {
	url          string
	engine       string
	bundle       string
	threads      int
	readyTimeout time.Duration
}

// session is a connected bridge client and whatever runs behind it.
type session struct {
	client  *bridge.Client
	cleanup func()
}

func (s *session) Close() {
	s.client.Close()
	if s.cleanup != nil {
		s.cleanup()
	}
}

// connect returns a client that is not necessarily ready yet.
func connect(ctx context.Context, t targetOptions, logger *zap.Logger) (*session, error) {
	if t.bundle != "" {
		return connectLocal(ctx, t, logger)
	}
	return connectRemote(ctx, t, logger)
}

func connectRemote(ctx context.Context, t targetOptions, logger *zap.Logger) (*session, error) {
	u, err := url.Parse(t.url)
	if err != nil {
		return nil, fmt.Errorf("invalid url %q: %w", t.url, err)
	}
	if t.engine != "" {
		q := u.Query()
		q.Set("engine", t.engine)
		u.RawQuery = q.Encode()
	}

	port, err := transport.Dial(ctx, u.String(), logger)
	if err != nil {
		return nil, fmt.Errorf("connect to %s: %w", u, err)
	}
	client := bridge.NewClient(port, logger, bridge.WithReadyTimeout(t.readyTimeout))
	return &session{client: client}, nil
}

// connectLocal runs a worker in this process, joined to the client by a pipe.
func connectLocal(ctx context.Context, t targetOptions, logger *zap.Logger) (*session, error) {
	rt, err := wasm.NewRuntime(ctx, logger, wasm.DefaultRuntimeConfig())
	if err != nil {
		return nil, err
	}

	manager := bundle.NewManager(rt, wasm.NewHostFunctions(logger, worker.Config{Threads: t.threads}.PoolThreads()), logger)
	if err := manager.LoadAll(ctx, []string{t.bundle}); err != nil {
		rt.Close(ctx)
		return nil, err
	}
	binding, b, err := manager.Binding(t.engine)
	if err != nil {
		rt.Close(ctx)
		return nil, err
	}

	threads := t.threads
	if threads == 0 {
		threads = b.Threads()
	}

	clientPort, workerPort := transport.Pipe()
	w := worker.New(binding, workerPort, worker.Config{Threads: threads}, logger)
	go w.Run(context.Background())

	client := bridge.NewClient(clientPort, logger, bridge.WithReadyTimeout(t.readyTimeout))
	return &session{
		client: client,
		cleanup: func() {
			w.Terminate()
			<-w.Done()
			manager.Shutdown(context.Background())
		},
	}, nil
}
