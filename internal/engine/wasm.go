package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	abi "github.com/woxQAQ/wasm-analyzer/api/wasm"
	"github.com/woxQAQ/wasm-analyzer/internal/wasm"
)

// WasmBinding runs an engine compiled to WebAssembly. Each binding owns at
// most one module instance; compiled modules are shared through the runtime
// cache, so creating a binding per worker is cheap.
type WasmBinding struct {
	runtime   *wasm.Runtime
	loader    *wasm.ModuleLoader
	instances *wasm.InstanceManager
	source    wasm.ModuleSource
	allowed   map[Operation]struct{}
	logger    *zap.Logger

	mu          sync.Mutex
	compiled    *wasm.CompiledModule
	module      *wasm.Instance
	constructed bool
}

// WasmOption configures a WasmBinding.
type WasmOption func(*WasmBinding)

// WithOperations restricts the instance capabilities to ops, typically the
// operations a bundle manifest declares. Exports outside ops are ignored.
func WithOperations(ops []Operation) WasmOption {
	return func(b *WasmBinding) {
		if len(ops) == 0 {
			return
		}
		b.allowed = make(map[Operation]struct{}, len(ops))
		for _, op := range ops {
			b.allowed[op] = struct{}{}
		}
	}
}

// NewWasmBinding creates a binding for the module read from source.
func NewWasmBinding(rt *wasm.Runtime, hostFuncs *wasm.HostFunctionsImpl, source wasm.ModuleSource, logger *zap.Logger, opts ...WasmOption) *WasmBinding {
	b := &WasmBinding{
		runtime:   rt,
		loader:    wasm.NewModuleLoader(rt, logger),
		instances: wasm.NewInstanceManager(rt, hostFuncs, logger),
		source:    source,
		logger:    logger.With(zap.String("component", "engine"), zap.String("module", source.Name())),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Load compiles the module, or reuses the runtime's cached compilation.
func (b *WasmBinding) Load(ctx context.Context) error {
	compiled, err := b.loader.LoadModule(ctx, b.source)
	if err != nil {
		return err
	}

	b.mu.Lock()
	b.compiled = compiled
	b.mu.Unlock()
	return nil
}

// instantiate creates the module instance on first use. Caller holds b.mu.
func (b *WasmBinding) instantiate(ctx context.Context) (*wasm.Instance, error) {
	if b.module != nil {
		return b.module, nil
	}
	if b.compiled == nil {
		return nil, ErrNotLoaded
	}
	inst, err := b.instances.Instantiate(ctx, &wasm.InstanceConfig{ModuleName: b.compiled.Name})
	if err != nil {
		return nil, err
	}
	b.module = inst
	return inst, nil
}

// discard closes a module instance that never made it into an Instance.
// Caller holds b.mu.
func (b *WasmBinding) discard(ctx context.Context) {
	if b.module == nil {
		return
	}
	if err := b.module.Close(ctx); err != nil {
		b.logger.Warn("Failed to close module instance", zap.Error(err))
	}
	b.module = nil
}

// InitPool starts the engine's thread pool. Modules that do not export
// init_thread_pool are single-threaded and need nothing.
func (b *WasmBinding) InitPool(ctx context.Context, threads int) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	inst, err := b.instantiate(ctx)
	if err != nil {
		return err
	}
	if !inst.HasFunction(abi.ExportInitThreadPool) {
		b.logger.Debug("Module has no thread pool")
		return nil
	}

	results, err := inst.Call(ctx, abi.ExportInitThreadPool, api.EncodeU32(uint32(threads)))
	if err != nil {
		b.discard(ctx)
		return &PoolInitError{Threads: threads, Err: err}
	}
	if status := api.DecodeI32(results[0]); status != 0 {
		b.discard(ctx)
		return &PoolInitError{Threads: threads, Status: status}
	}

	b.logger.Info("Thread pool initialized", zap.Int("threads", threads))
	return nil
}

// NewInstance constructs the engine through engine_new. A binding yields a
// single instance.
func (b *WasmBinding) NewInstance(ctx context.Context) (Instance, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.constructed {
		return nil, errors.New("engine instance already constructed for this binding")
	}

	inst, err := b.instantiate(ctx)
	if err != nil {
		return nil, err
	}

	results, err := inst.Call(ctx, abi.ExportEngineNew)
	if err != nil {
		b.discard(ctx)
		return nil, fmt.Errorf("failed to construct engine: %w", err)
	}
	b.constructed = true

	caps := make(map[Operation]struct{})
	for _, op := range operations {
		if !inst.HasFunction(op.Export()) {
			continue
		}
		if b.allowed != nil {
			if _, ok := b.allowed[op]; !ok {
				continue
			}
		}
		caps[op] = struct{}{}
	}

	b.logger.Info("Engine instance constructed",
		zap.String("instance_id", inst.ID),
		zap.Int("operations", len(caps)),
	)

	return &wasmInstance{
		module: inst,
		handle: api.DecodeU32(results[0]),
		caps:   caps,
		logger: b.logger.With(zap.String("instance_id", inst.ID)),
	}, nil
}

// wasmInstance is an engine handle living inside a module instance.
type wasmInstance struct {
	module *wasm.Instance
	handle uint32
	caps   map[Operation]struct{}
	logger *zap.Logger

	closeOnce sync.Once
	closeErr  error
}

func (i *wasmInstance) Capabilities() []Operation {
	ops := make([]Operation, 0, len(i.caps))
	for _, op := range operations {
		if _, ok := i.caps[op]; ok {
			ops = append(ops, op)
		}
	}
	return ops
}

func (i *wasmInstance) Invoke(ctx context.Context, op Operation, args []json.RawMessage) (json.RawMessage, error) {
	if i.module.IsClosed() {
		return nil, ErrInstanceClosed
	}
	if _, ok := i.caps[op]; !ok {
		return nil, &UnsupportedOperationError{Op: op}
	}

	if args == nil {
		args = []json.RawMessage{}
	}
	payload, err := json.Marshal(args)
	if err != nil {
		return nil, &InvocationError{Op: op, Err: fmt.Errorf("encode arguments: %w", err)}
	}

	mem := i.module.Memory()
	argsPtr, argsLen, err := mem.WriteBytes(ctx, payload)
	if err != nil {
		return nil, i.callError(op, err)
	}
	// A trapped call leaves the module open, so the arguments still need
	// releasing.
	defer func() {
		if !i.module.IsClosed() {
			i.free(ctx, argsPtr, argsLen)
		}
	}()

	results, err := i.module.Call(ctx, op.Export(), api.EncodeU32(i.handle), api.EncodeU32(argsPtr), api.EncodeU32(argsLen))
	if err != nil {
		return nil, i.callError(op, err)
	}

	ptr, length := abi.Unpack(results[0])
	raw, ok := mem.ReadBytes(ptr, length)
	if !ok {
		return nil, &InvocationError{Op: op, Err: &wasm.MemoryAccessError{Operation: "read", Address: ptr, Length: length}}
	}
	i.free(ctx, ptr, length)

	var env abi.Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, &InvocationError{Op: op, Err: fmt.Errorf("decode result envelope: %w", err)}
	}
	if env.Error != "" {
		return nil, &InvocationError{Op: op, Message: env.Error, Err: errors.New(env.Error)}
	}
	if env.Result == nil {
		return json.RawMessage("null"), nil
	}
	return env.Result, nil
}

func (i *wasmInstance) free(ctx context.Context, ptr, length uint32) {
	if err := i.module.Memory().Free(ctx, ptr, length); err != nil {
		i.logger.Warn("Failed to release guest buffer", zap.Error(err))
	}
}

// callError classifies a failed guest call. Timeouts close the module, and
// so does anything else that leaves it closed.
func (i *wasmInstance) callError(op Operation, err error) error {
	var timeoutErr *wasm.TimeoutError
	if errors.As(err, &timeoutErr) {
		return &InvocationError{Op: op, Err: fmt.Errorf("%w after %v: %w", ErrTimeout, timeoutErr.Duration, ErrInstanceClosed)}
	}
	if i.module.IsClosed() {
		return &InvocationError{Op: op, Err: fmt.Errorf("%w: %w", ErrInstanceClosed, err)}
	}
	return &InvocationError{Op: op, Err: err}
}

func (i *wasmInstance) Close(ctx context.Context) error {
	i.closeOnce.Do(func() {
		if !i.module.IsClosed() && i.module.HasFunction(abi.ExportEngineFree) {
			if _, err := i.module.Call(ctx, abi.ExportEngineFree, api.EncodeU32(i.handle)); err != nil {
				i.logger.Warn("engine_free failed", zap.Error(err))
			}
		}
		i.closeErr = i.module.Close(ctx)
	})
	return i.closeErr
}
