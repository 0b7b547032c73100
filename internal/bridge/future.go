package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/woxQAQ/wasm-analyzer/pkg/protocol"
)

// Future is the eventual outcome of one request. It settles exactly once.
type Future struct {
	client *Client
	id     protocol.RequestID
	op     string
	sent   time.Time

	once   sync.Once
	done   chan struct{}
	result json.RawMessage
	err    error

	// stop detaches the caller context watcher.
	stop atomic.Pointer[func() bool]
}

func newFuture(c *Client, id protocol.RequestID, op string) *Future {
	return &Future{
		client: c,
		id:     id,
		op:     op,
		sent:   time.Now(),
		done:   make(chan struct{}),
	}
}

// ID returns the request id.
func (f *Future) ID() protocol.RequestID {
	return f.id
}

// Done is closed when the future settles.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Result returns the outcome without blocking, or ErrPending.
func (f *Future) Result() (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.result, f.err
	default:
		return nil, ErrPending
	}
}

// Wait blocks until the future settles or ctx is done. In the latter case
// the request is abandoned: its pending entry is removed and a late
// response is discarded.
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		f.client.abandon(f, ctx.Err())
		<-f.done
		return f.result, f.err
	}
}

// complete settles the future. Only the first call has an effect.
func (f *Future) complete(result json.RawMessage, err error) bool {
	settled := false
	f.once.Do(func() {
		f.result, f.err = result, err
		close(f.done)
		settled = true
	})
	if settled {
		if stop := f.stop.Load(); stop != nil {
			(*stop)()
		}
	}
	return settled
}
