// Package worker hosts one engine instance behind a message port.
//
// A worker loads the engine, starts its thread pool, constructs a single
// instance and announces readiness. It then handles requests strictly one
// at a time in arrival order until the port closes. Requests that arrive
// before readiness wait in the port; they are never dropped.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-analyzer/internal/engine"
	"github.com/woxQAQ/wasm-analyzer/internal/metrics"
	"github.com/woxQAQ/wasm-analyzer/internal/transport"
	"github.com/woxQAQ/wasm-analyzer/pkg/protocol"
)

// DefaultThreads is the pool size used when the host cannot report its
// concurrency.
const DefaultThreads = 4

// shutdownTimeout bounds the sends and closes done after ctx has ended.
const shutdownTimeout = 5 * time.Second

// ErrAlreadyStarted is returned by a second call to Run.
var ErrAlreadyStarted = errors.New("worker already started")

// Config holds worker settings.
type Config struct {
	// Threads is the pool size passed to the engine. Zero means the number
	// of CPUs.
	Threads int
}

// PoolThreads resolves the thread hint.
func (c Config) PoolThreads() int {
	if c.Threads > 0 {
		return c.Threads
	}
	if n := runtime.NumCPU(); n >= 1 {
		return n
	}
	return DefaultThreads
}

// Option configures a Runtime.
type Option func(*Runtime)

// WithMetrics records worker metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(w *Runtime) { w.metrics = m }
}

// Runtime is a worker. It owns its engine instance and its end of the port.
type Runtime struct {
	id      string
	binding engine.Binding
	port    transport.Port
	cfg     Config
	logger  *zap.Logger
	metrics *metrics.Metrics

	state   atomic.Int32
	started atomic.Bool

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}

	mu       sync.Mutex
	instance engine.Instance
	err      error
}

// New creates a worker. Nothing happens until Run.
func New(binding engine.Binding, port transport.Port, cfg Config, logger *zap.Logger, opts ...Option) *Runtime {
	id := uuid.NewString()
	w := &Runtime{
		id:      id,
		binding: binding,
		port:    port,
		cfg:     cfg,
		logger:  logger.With(zap.String("component", "worker"), zap.String("worker_id", id)),
		stop:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.state.Store(int32(Loading))
	return w
}

// ID returns the worker's unique id.
func (w *Runtime) ID() string {
	return w.id
}

// State returns the current lifecycle state.
func (w *Runtime) State() State {
	return State(w.state.Load())
}

func (w *Runtime) setState(s State) {
	old := State(w.state.Swap(int32(s)))
	if old != s {
		w.logger.Debug("Worker state changed",
			zap.Stringer("from", old),
			zap.Stringer("to", s),
		)
	}
}

// Done is closed when Run has returned.
func (w *Runtime) Done() <-chan struct{} {
	return w.done
}

// Err returns the error Run returned, if it has.
func (w *Runtime) Err() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.err
}

// Terminate stops the worker from outside. Run returns once the current
// request, if any, has finished.
func (w *Runtime) Terminate() {
	w.stopOnce.Do(func() {
		close(w.stop)
		w.port.Close()
	})
}

// Run drives the worker until the port closes, ctx is done, Terminate is
// called or the engine instance dies. It may be called once.
func (w *Runtime) Run(ctx context.Context) (err error) {
	if !w.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-w.stop:
			cancel()
		case <-ctx.Done():
		}
	}()

	w.metrics.WorkerStarted()
	defer func() {
		w.shutdown()
		w.metrics.WorkerStopped()
		w.mu.Lock()
		w.err = err
		w.mu.Unlock()
		close(w.done)
	}()

	start := time.Now()
	inst, err := w.start(ctx)
	if err != nil {
		w.metrics.WorkerStartup(false, time.Since(start))
		w.logger.Error("Engine failed to start", zap.Error(err))
		w.signal(&protocol.Response{
			ID:    protocol.FailedID,
			Error: &protocol.ErrorPayload{Code: protocol.CodeLoadFailed, Message: err.Error()},
		})
		return err
	}

	w.setState(Ready)
	w.metrics.WorkerStartup(true, time.Since(start))
	w.logger.Info("Worker ready",
		zap.Duration("startup", time.Since(start)),
		zap.Int("operations", len(inst.Capabilities())),
	)
	if err := w.send(ctx, &protocol.Response{ID: protocol.ReadyID}); err != nil {
		return fmt.Errorf("announce readiness: %w", err)
	}

	return w.serve(ctx, inst)
}

// start walks Loading and WarmingUp and constructs the instance.
func (w *Runtime) start(ctx context.Context) (engine.Instance, error) {
	w.setState(Loading)
	if err := w.binding.Load(ctx); err != nil {
		return nil, fmt.Errorf("load engine: %w", err)
	}

	w.setState(WarmingUp)
	if pool, ok := w.binding.(engine.PoolInitializer); ok {
		threads := w.cfg.PoolThreads()
		if err := pool.InitPool(ctx, threads); err != nil {
			return nil, fmt.Errorf("initialize pool: %w", err)
		}
	}

	inst, err := w.binding.NewInstance(ctx)
	if err != nil {
		return nil, fmt.Errorf("construct engine: %w", err)
	}

	w.mu.Lock()
	w.instance = inst
	w.mu.Unlock()
	return inst, nil
}

func (w *Runtime) serve(ctx context.Context, inst engine.Instance) error {
	for {
		frame, err := w.port.Receive(ctx)
		if err != nil {
			if errors.Is(err, transport.ErrClosed) || ctx.Err() != nil {
				w.logger.Info("Worker stopping", zap.NamedError("reason", err))
				return nil
			}
			return fmt.Errorf("receive: %w", err)
		}

		if err := w.handle(ctx, inst, frame); err != nil {
			w.logger.Error("Engine instance lost, terminating worker", zap.Error(err))
			return err
		}
	}
}

// handle answers one frame. It returns an error only when the engine
// instance can no longer be used.
func (w *Runtime) handle(ctx context.Context, inst engine.Instance, frame []byte) error {
	req, err := protocol.DecodeRequest(frame)
	if err != nil {
		id := protocol.PeekID(frame)
		if id == "" || id.IsReserved() {
			w.logger.Warn("Dropping malformed frame", zap.Error(err), zap.Int("bytes", len(frame)))
			return nil
		}
		w.reply(ctx, protocol.NewError(id, protocol.CodeInvalidRequest, err.Error()))
		return nil
	}

	switch {
	case req.ID == "":
		w.logger.Warn("Dropping request without id", zap.String("which", req.Which))
		return nil
	case req.ID.IsReserved():
		w.logger.Warn("Dropping request with reserved id", zap.String("id", string(req.ID)))
		return nil
	case req.Which == "":
		w.reply(ctx, protocol.NewError(req.ID, protocol.CodeInvalidRequest, "missing operation name"))
		return nil
	}

	op, err := engine.ParseOperation(req.Which)
	if err != nil {
		w.metrics.WorkerInvocation("unknown", string(protocol.CodeUnknownOperation), 0)
		w.reply(ctx, protocol.NewError(req.ID, protocol.CodeUnknownOperation, err.Error()))
		return nil
	}

	start := time.Now()
	result, err := w.invoke(ctx, inst, op, req.Args)
	elapsed := time.Since(start)

	if err != nil {
		code, message := classify(err)
		w.metrics.WorkerInvocation(string(op), string(code), elapsed)
		w.logger.Debug("Operation failed",
			zap.String("id", string(req.ID)),
			zap.Stringer("op", op),
			zap.String("code", string(code)),
			zap.Error(err),
		)
		w.reply(ctx, protocol.NewError(req.ID, code, message))

		if errors.Is(err, engine.ErrInstanceClosed) {
			return err
		}
		return nil
	}

	w.metrics.WorkerInvocation(string(op), "", elapsed)
	if result == nil {
		result = json.RawMessage("null")
	}
	w.reply(ctx, &protocol.Response{ID: req.ID, Result: result})
	return nil
}

// invoke calls the engine, turning a panic into an error.
func (w *Runtime) invoke(ctx context.Context, inst engine.Instance, op engine.Operation, args []json.RawMessage) (result json.RawMessage, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("Engine panicked",
				zap.Stringer("op", op),
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			result = nil
			err = &engine.InvocationError{Op: op, Err: fmt.Errorf("panic: %v", r)}
		}
	}()
	return inst.Invoke(ctx, op, args)
}

// classify maps an invocation error onto the wire error code.
func classify(err error) (protocol.ErrorCode, string) {
	var unsupported *engine.UnsupportedOperationError
	if errors.As(err, &unsupported) {
		return protocol.CodeUnsupportedOperation, err.Error()
	}
	if errors.Is(err, engine.ErrTimeout) {
		return protocol.CodeTimeout, err.Error()
	}
	var invErr *engine.InvocationError
	if errors.As(err, &invErr) && invErr.Message != "" {
		return protocol.CodeEngineError, invErr.Message
	}
	return protocol.CodeEngineError, err.Error()
}

// reply sends a correlated response. A failed send is logged; the next
// Receive reports a dead port.
func (w *Runtime) reply(ctx context.Context, resp *protocol.Response) {
	if err := w.send(ctx, resp); err != nil {
		w.logger.Warn("Failed to send response",
			zap.String("id", string(resp.ID)),
			zap.Error(err),
		)
	}
}

func (w *Runtime) send(ctx context.Context, resp *protocol.Response) error {
	data, err := protocol.EncodeResponse(resp)
	if err != nil {
		return err
	}
	return w.port.Send(ctx, data)
}

// signal sends an unsolicited response even when ctx has already ended.
func (w *Runtime) signal(resp *protocol.Response) {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := w.send(ctx, resp); err != nil {
		w.logger.Debug("Failed to send signal", zap.String("id", string(resp.ID)), zap.Error(err))
	}
}

// shutdown moves to Terminated and releases the instance and the port.
func (w *Runtime) shutdown() {
	w.setState(Terminated)

	w.mu.Lock()
	inst := w.instance
	w.instance = nil
	w.mu.Unlock()

	if inst != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := inst.Close(ctx); err != nil {
			w.logger.Warn("Failed to close engine instance", zap.Error(err))
		}
	}

	if err := w.port.Close(); err != nil {
		w.logger.Debug("Failed to close port", zap.Error(err))
	}
	w.logger.Info("Worker terminated")
}
