package wasm

import (
	"context"
	"runtime"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"

	abi "github.com/woxQAQ/wasm-analyzer/api/wasm"
)

// HostFunctionsImpl implements the functions engines import from the "host"
// module.
type HostFunctionsImpl struct {
	logger  *zap.Logger
	threads int
}

// defaultThreads is reported when neither the caller nor the host CPU count
// gives a usable value.
const defaultThreads = 4

// NewHostFunctions creates a new host functions implementation. threads is the
// value reported to guests by hardware_concurrency; zero or less falls back to
// runtime.NumCPU.
func NewHostFunctions(logger *zap.Logger, threads int) *HostFunctionsImpl {
	if threads <= 0 {
		threads = runtime.NumCPU()
	}
	if threads < 1 {
		threads = defaultThreads
	}
	return &HostFunctionsImpl{
		logger:  logger.With(zap.String("component", "wasm-host")),
		threads: threads,
	}
}

// logMessage is called by Wasm modules to log messages.
// Signature: log_message(level, ptr, length)
func (h *HostFunctionsImpl) logMessage(ctx context.Context, mod api.Module, level uint32, ptr uint32, length uint32) {
	msg, ok := mod.Memory().Read(ptr, length)
	if !ok {
		h.logger.Error("Failed to read log message from Wasm memory",
			zap.String("module", mod.Name()),
			zap.Uint32("ptr", ptr),
			zap.Uint32("length", length),
		)
		return
	}

	fields := []zap.Field{zap.String("module", mod.Name())}
	switch abi.LogLevel(level) {
	case abi.LogDebug:
		h.logger.Debug(string(msg), fields...)
	case abi.LogWarn:
		h.logger.Warn(string(msg), fields...)
	case abi.LogError:
		h.logger.Error(string(msg), fields...)
	default:
		h.logger.Info(string(msg), fields...)
	}
}

// hardwareConcurrency reports how many threads the engine may use for its
// internal pool.
func (h *HostFunctionsImpl) hardwareConcurrency(ctx context.Context, mod api.Module) uint32 {
	return uint32(h.Threads())
}

// Threads returns the resolved thread count, always at least one.
func (h *HostFunctionsImpl) Threads() int {
	return h.threads
}

// instantiateHost registers the host module with the runtime. Only the first
// call has an effect; later calls return the first result.
func (r *Runtime) instantiateHost(ctx context.Context, impl *HostFunctionsImpl) error {
	r.hostOnce.Do(func() {
		_, r.hostErr = r.runtime.NewHostModuleBuilder(abi.HostModule).
			NewFunctionBuilder().
			WithFunc(impl.logMessage).
			WithParameterNames("level", "ptr", "length").
			Export(abi.ImportLogMessage).
			NewFunctionBuilder().
			WithFunc(impl.hardwareConcurrency).
			Export(abi.ImportHardwareConcurrency).
			Instantiate(ctx)
	})
	if r.hostErr != nil {
		return &HostFunctionError{FunctionName: abi.HostModule, Err: r.hostErr}
	}
	return nil
}
