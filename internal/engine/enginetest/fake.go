// Package enginetest provides an in-memory engine for exercising workers and
// bridges without a Wasm module.
package enginetest

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"

	"github.com/woxQAQ/wasm-analyzer/internal/engine"
)

// Handler implements one operation of a Fake engine.
type Handler func(ctx context.Context, args []json.RawMessage) (json.RawMessage, error)

// Fake is a scriptable engine.Binding. Zero-value hooks succeed.
type Fake struct {
	// Handlers are the operations the instance supports.
	Handlers map[engine.Operation]Handler

	// LoadErr, PoolErr and NewErr make the corresponding step fail.
	LoadErr error
	PoolErr error
	NewErr  error

	// LoadGate, when set, blocks Load until it is closed.
	LoadGate chan struct{}

	mu          sync.Mutex
	poolThreads int
	loaded      atomic.Bool
	instance    *FakeInstance
}

// Load implements engine.Binding.
func (f *Fake) Load(ctx context.Context) error {
	if f.LoadGate != nil {
		select {
		case <-f.LoadGate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.LoadErr != nil {
		return f.LoadErr
	}
	f.loaded.Store(true)
	return nil
}

// InitPool implements engine.PoolInitializer.
func (f *Fake) InitPool(ctx context.Context, threads int) error {
	f.mu.Lock()
	f.poolThreads = threads
	f.mu.Unlock()
	return f.PoolErr
}

// NewInstance implements engine.Binding.
func (f *Fake) NewInstance(ctx context.Context) (engine.Instance, error) {
	if !f.loaded.Load() {
		return nil, engine.ErrNotLoaded
	}
	if f.NewErr != nil {
		return nil, f.NewErr
	}
	inst := &FakeInstance{handlers: f.Handlers}
	f.mu.Lock()
	f.instance = inst
	f.mu.Unlock()
	return inst, nil
}

// PoolThreads returns the thread hint InitPool received.
func (f *Fake) PoolThreads() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.poolThreads
}

// Instance returns the constructed instance, if any.
func (f *Fake) Instance() *FakeInstance {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.instance
}

// FakeInstance is the engine.Instance built by Fake.
type FakeInstance struct {
	handlers map[engine.Operation]Handler
	calls    atomic.Int64
	closed   atomic.Bool
}

// Capabilities implements engine.Instance.
func (i *FakeInstance) Capabilities() []engine.Operation {
	var ops []engine.Operation
	for _, op := range engine.Operations() {
		if _, ok := i.handlers[op]; ok {
			ops = append(ops, op)
		}
	}
	return ops
}

// Invoke implements engine.Instance.
func (i *FakeInstance) Invoke(ctx context.Context, op engine.Operation, args []json.RawMessage) (json.RawMessage, error) {
	if i.closed.Load() {
		return nil, engine.ErrInstanceClosed
	}
	h, ok := i.handlers[op]
	if !ok {
		return nil, &engine.UnsupportedOperationError{Op: op}
	}
	i.calls.Add(1)
	return h(ctx, args)
}

// Close implements engine.Instance.
func (i *FakeInstance) Close(ctx context.Context) error {
	i.closed.Store(true)
	return nil
}

// Calls returns how many invocations reached a handler.
func (i *FakeInstance) Calls() int64 {
	return i.calls.Load()
}

// Closed reports whether Close was called.
func (i *FakeInstance) Closed() bool {
	return i.closed.Load()
}

// Static returns a handler that always answers with result.
func Static(result string) Handler {
	return func(context.Context, []json.RawMessage) (json.RawMessage, error) {
		return json.RawMessage(result), nil
	}
}

// Echo returns a handler that answers with its arguments as an array.
func Echo() Handler {
	return func(_ context.Context, args []json.RawMessage) (json.RawMessage, error) {
		if args == nil {
			args = []json.RawMessage{}
		}
		return json.Marshal(args)
	}
}
