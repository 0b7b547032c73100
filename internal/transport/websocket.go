package transport

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
)

const (
	// DefaultReadLimit bounds a single frame. Analysis results for large
	// workspaces run to megabytes.
	DefaultReadLimit = 32 << 20

	defaultPingInterval = 30 * time.Second
	pingTimeout         = 5 * time.Second
	incomingBuffer      = 64
)

// WebSocketPort is a Port over a WebSocket connection carrying text frames.
type WebSocketPort struct {
	conn   *websocket.Conn
	logger *zap.Logger

	incoming chan []byte
	cancel   context.CancelFunc

	once sync.Once
	done chan struct{}
	mu   sync.Mutex
	err  error
}

type wsOptions struct {
	readLimit    int64
	pingInterval time.Duration
}

// WebSocketOption configures a WebSocketPort.
type WebSocketOption func(*wsOptions)

// WithReadLimit sets the maximum frame size in bytes.
func WithReadLimit(n int64) WebSocketOption {
	return func(o *wsOptions) { o.readLimit = n }
}

// WithPingInterval sets the keepalive interval. Zero disables pings.
func WithPingInterval(d time.Duration) WebSocketOption {
	return func(o *wsOptions) { o.pingInterval = d }
}

// NewWebSocketPort wraps an established connection and starts its reader.
func NewWebSocketPort(conn *websocket.Conn, logger *zap.Logger, opts ...WebSocketOption) *WebSocketPort {
	o := wsOptions{readLimit: DefaultReadLimit, pingInterval: defaultPingInterval}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &WebSocketPort{
		conn:     conn,
		logger:   logger.With(zap.String("component", "transport")),
		incoming: make(chan []byte, incomingBuffer),
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	conn.SetReadLimit(o.readLimit)

	go p.readLoop(ctx)
	if o.pingInterval > 0 {
		go p.pingLoop(ctx, o.pingInterval)
	}
	return p
}

// Accept upgrades an HTTP request and returns the server end of the port.
func Accept(w http.ResponseWriter, r *http.Request, accept *websocket.AcceptOptions, logger *zap.Logger, opts ...WebSocketOption) (*WebSocketPort, error) {
	conn, err := websocket.Accept(w, r, accept)
	if err != nil {
		return nil, err
	}
	return NewWebSocketPort(conn, logger, opts...), nil
}

// Dial connects to a worker endpoint such as ws://host/v1/worker.
func Dial(ctx context.Context, url string, logger *zap.Logger, opts ...WebSocketOption) (*WebSocketPort, error) {
	conn, _, err := websocket.Dial(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return NewWebSocketPort(conn, logger, opts...), nil
}

// readLoop moves frames into the incoming buffer. When the buffer is full it
// stops reading, which pushes back on the sender instead of dropping frames.
func (p *WebSocketPort) readLoop(ctx context.Context) {
	for {
		typ, data, err := p.conn.Read(ctx)
		if err != nil {
			p.fail(closeCause(err))
			return
		}
		if typ != websocket.MessageText {
			p.logger.Warn("Dropping non-text frame", zap.Int("bytes", len(data)))
			continue
		}
		select {
		case p.incoming <- data:
		case <-ctx.Done():
			return
		}
	}
}

func (p *WebSocketPort) pingLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			pingCtx, cancel := context.WithTimeout(ctx, pingTimeout)
			err := p.conn.Ping(pingCtx)
			cancel()
			if err != nil {
				p.logger.Debug("Ping failed", zap.Error(err))
				p.fail(err)
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// closeCause maps a read error to the error reported by Err.
func closeCause(err error) error {
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		return ErrClosed
	}
	if errors.Is(err, context.Canceled) {
		return ErrClosed
	}
	return err
}

func (p *WebSocketPort) fail(err error) {
	p.once.Do(func() {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
		p.cancel()
	})
}

// Send writes msg as a text frame.
func (p *WebSocketPort) Send(ctx context.Context, msg []byte) error {
	select {
	case <-p.done:
		return p.Err()
	default:
	}
	return p.conn.Write(ctx, websocket.MessageText, msg)
}

// Receive returns the next frame.
func (p *WebSocketPort) Receive(ctx context.Context) ([]byte, error) {
	select {
	case msg := <-p.incoming:
		return msg, nil
	default:
	}

	select {
	case msg := <-p.incoming:
		return msg, nil
	case <-p.done:
		select {
		case msg := <-p.incoming:
			return msg, nil
		default:
		}
		return nil, p.Err()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Close sends a normal closure and stops the reader.
func (p *WebSocketPort) Close() error {
	var err error
	p.once.Do(func() {
		p.mu.Lock()
		p.err = ErrClosed
		p.mu.Unlock()
		close(p.done)
		err = p.conn.Close(websocket.StatusNormalClosure, "")
		p.cancel()
	})
	return err
}

func (p *WebSocketPort) Done() <-chan struct{} {
	return p.done
}

func (p *WebSocketPort) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
