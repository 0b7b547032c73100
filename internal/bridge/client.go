// Package bridge is the caller side of a worker: it sends named operations
// over a port and matches responses back to their requests by id.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-analyzer/internal/metrics"
	"github.com/woxQAQ/wasm-analyzer/internal/transport"
	"github.com/woxQAQ/wasm-analyzer/pkg/protocol"
)

// Option configures a Client.
type Option func(*Client)

// WithReadyTimeout tears the client down if the worker has not announced
// readiness within d. Zero disables the timeout.
func WithReadyTimeout(d time.Duration) Option {
	return func(c *Client) { c.readyTimeout = d }
}

// WithMetrics records bridge metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Client) { c.metrics = m }
}

// Client is a goroutine-safe proxy to one worker.
type Client struct {
	port         transport.Port
	logger       *zap.Logger
	metrics      *metrics.Metrics
	readyTimeout time.Duration

	mu      sync.Mutex
	pending map[protocol.RequestID]*Future
	closed  bool
	err     error

	ready     chan struct{}
	readyOnce sync.Once
	dead      chan struct{}
	done      chan struct{}
}

// NewClient starts receiving on port. Calls may be issued immediately; the
// worker holds them until it is ready.
func NewClient(port transport.Port, logger *zap.Logger, opts ...Option) *Client {
	c := &Client{
		port:    port,
		logger:  logger.With(zap.String("component", "bridge")),
		pending: make(map[protocol.RequestID]*Future),
		ready:   make(chan struct{}),
		dead:    make(chan struct{}),
		done:    make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}

	go c.receiveLoop()
	if c.readyTimeout > 0 {
		go c.watchReady(c.readyTimeout)
	}
	return c
}

// Ready is closed once the worker has announced readiness.
func (c *Client) Ready() <-chan struct{} {
	return c.ready
}

// WaitReady blocks until the worker is ready, the client is torn down or
// ctx is done.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	default:
	}

	select {
	case <-c.ready:
		return nil
	case <-c.dead:
		return c.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Pending returns the number of unsettled requests.
func (c *Client) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Err returns the teardown cause, nil while the client is live.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// Done is closed once the receive loop has exited.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// Go sends a request and returns its future. ctx bounds the send and, until
// settlement, the request itself.
func (c *Client) Go(ctx context.Context, which string, args ...any) *Future {
	id := protocol.RequestID(ulid.Make().String())
	f := newFuture(c, id, which)

	raw, err := encodeArgs(args)
	if err != nil {
		f.complete(nil, fmt.Errorf("bridge: encode %s arguments: %w", which, err))
		return f
	}
	frame, err := protocol.EncodeRequest(&protocol.Request{ID: id, Which: which, Args: raw})
	if err != nil {
		f.complete(nil, fmt.Errorf("bridge: encode %s request: %w", which, err))
		return f
	}
	if err := ctx.Err(); err != nil {
		f.complete(nil, err)
		return f
	}

	// The entry must exist before the frame leaves, or a fast response
	// would find nothing to settle.
	c.mu.Lock()
	if c.closed {
		err := c.err
		c.mu.Unlock()
		f.complete(nil, err)
		return f
	}
	c.pending[id] = f
	c.mu.Unlock()
	c.metrics.BridgePending(1)

	stop := context.AfterFunc(ctx, func() { c.abandon(f, ctx.Err()) })
	f.stop.Store(&stop)
	select {
	case <-f.done:
		stop()
	default:
	}

	if err := c.port.Send(ctx, frame); err != nil {
		if c.take(f) {
			if ctxErr := ctx.Err(); ctxErr != nil {
				c.finish(f, nil, ctxErr, metrics.OutcomeCanceled)
			} else {
				c.finish(f, nil, &TerminatedError{Err: fmt.Errorf("send %s: %w", which, err)}, metrics.OutcomeTerminated)
			}
		}
	}
	return f
}

// Call sends a request and waits for its result.
func (c *Client) Call(ctx context.Context, which string, args ...any) (json.RawMessage, error) {
	return c.Go(ctx, which, args...).Wait(ctx)
}

// Close rejects all pending requests and closes the port.
func (c *Client) Close() error {
	c.teardown(&TerminatedError{Err: ErrClosed})
	err := c.port.Close()
	<-c.done
	return err
}

func (c *Client) receiveLoop() {
	defer close(c.done)

	for {
		frame, err := c.port.Receive(context.Background())
		if err != nil {
			c.teardown(&TerminatedError{Err: err})
			return
		}

		resp, err := protocol.DecodeResponse(frame)
		if err != nil {
			c.logger.Warn("Discarding malformed response", zap.Error(err), zap.Int("bytes", len(frame)))
			continue
		}

		switch resp.ID {
		case protocol.ReadyID:
			c.readyOnce.Do(func() {
				c.logger.Info("Worker ready")
				close(c.ready)
			})
		case protocol.FailedID:
			loadErr := &LoadError{Code: protocol.CodeLoadFailed, Message: "unknown failure"}
			if resp.Error != nil {
				loadErr.Code, loadErr.Message = resp.Error.Code, resp.Error.Message
			}
			c.logger.Error("Worker failed to load engine", zap.String("error", loadErr.Message))
			c.teardown(loadErr)
			c.port.Close()
		default:
			c.deliver(resp)
		}
	}
}

func (c *Client) deliver(resp *protocol.Response) {
	c.mu.Lock()
	f, ok := c.pending[resp.ID]
	if ok {
		delete(c.pending, resp.ID)
	}
	c.mu.Unlock()

	if !ok {
		c.logger.Debug("Discarding response with no pending request", zap.String("id", string(resp.ID)))
		c.metrics.BridgeStale()
		return
	}
	c.metrics.BridgePending(-1)

	if resp.Error != nil {
		c.finish(f, nil, &RemoteError{
			Op:      f.op,
			Code:    resp.Error.Code,
			Message: resp.Error.Message,
			Data:    resp.Error.Data,
		}, metrics.OutcomeRemoteError)
		return
	}

	result := resp.Result
	if result == nil {
		result = json.RawMessage("null")
	}
	c.finish(f, result, nil, metrics.OutcomeOK)
}

// take removes f from the pending table. It reports false when f was
// already removed by someone else.
func (c *Client) take(f *Future) bool {
	c.mu.Lock()
	cur, ok := c.pending[f.id]
	if ok && cur == f {
		delete(c.pending, f.id)
	}
	c.mu.Unlock()

	if ok && cur == f {
		c.metrics.BridgePending(-1)
		return true
	}
	return false
}

// abandon settles f with err if it is still pending.
func (c *Client) abandon(f *Future, err error) {
	if c.take(f) {
		c.finish(f, nil, err, metrics.OutcomeCanceled)
	}
}

func (c *Client) finish(f *Future, result json.RawMessage, err error, outcome string) {
	if f.complete(result, err) {
		c.metrics.BridgeCall(f.op, outcome, time.Since(f.sent))
	}
}

// teardown rejects every pending request with cause. Only the first cause
// is kept.
func (c *Client) teardown(cause error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.err = cause
	pending := c.pending
	c.pending = make(map[protocol.RequestID]*Future)
	c.mu.Unlock()

	close(c.dead)
	if len(pending) > 0 {
		c.logger.Info("Rejecting pending requests", zap.Int("count", len(pending)), zap.Error(cause))
	}
	for _, f := range pending {
		c.metrics.BridgePending(-1)
		c.finish(f, nil, cause, metrics.OutcomeTerminated)
	}
}

func (c *Client) watchReady(d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-c.ready:
	case <-c.dead:
	case <-timer.C:
		c.logger.Error("Worker did not become ready", zap.Duration("timeout", d))
		c.teardown(&ReadyTimeoutError{Timeout: d})
		c.port.Close()
	}
}

func encodeArgs(args []any) ([]json.RawMessage, error) {
	raw := make([]json.RawMessage, len(args))
	for i, arg := range args {
		if r, ok := arg.(json.RawMessage); ok {
			raw[i] = r
			continue
		}
		data, err := json.Marshal(arg)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		raw[i] = data
	}
	return raw, nil
}

// IsTerminated reports whether err means the worker is gone.
func IsTerminated(err error) bool {
	return errors.Is(err, ErrTerminated)
}
