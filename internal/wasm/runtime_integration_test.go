package wasm

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"runtime"
	"testing"
	"time"

	"github.com/tetratelabs/wazero/api"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	abi "github.com/woxQAQ/wasm-analyzer/api/wasm"
	"github.com/woxQAQ/wasm-analyzer/internal/wasm/wasmtest"
)

// newEngineInstance compiles the test engine module into a fresh runtime and
// instantiates it.
func newEngineInstance(t *testing.T, config *RuntimeConfig) (*Runtime, *Instance) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, config)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { runtime.Close(context.Background()) })

	loader := NewModuleLoader(runtime, logger)
	if _, err := loader.LoadModuleFromMemory(ctx, "engine", wasmtest.EngineModule()); err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}

	instanceMgr := NewInstanceManager(runtime, NewHostFunctions(logger, 4), logger)
	instance, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "engine"})
	if err != nil {
		t.Fatalf("Failed to instantiate: %v", err)
	}
	return runtime, instance
}

func TestLoadModuleFromMemory(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)
	wasmBytes := wasmtest.EngineModule()

	module, err := loader.LoadModuleFromMemory(ctx, "test-module", wasmBytes)
	if err != nil {
		t.Fatalf("Failed to load module: %v", err)
	}

	if module.Name != "test-module" {
		t.Errorf("Module name = %s, want 'test-module'", module.Name)
	}
	if module.SizeBytes != int64(len(wasmBytes)) {
		t.Errorf("SizeBytes = %d, want %d", module.SizeBytes, len(wasmBytes))
	}

	// Test caching - load again should hit cache.
	module2, err := loader.LoadModuleFromMemory(ctx, "test-module", wasmBytes)
	if err != nil {
		t.Fatalf("Failed to load module from cache: %v", err)
	}

	if module2 != module {
		t.Error("Cache should return the same module instance")
	}
}

func TestLoadModuleRejectsNonWasm(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	_, err = loader.LoadModuleFromMemory(ctx, "garbage", []byte("<!doctype html>"))
	var compErr *CompilationError
	if !errors.As(err, &compErr) {
		t.Fatalf("Expected CompilationError, got %v", err)
	}

	// Valid magic but truncated body fails in wazero.
	_, err = loader.LoadModuleFromMemory(ctx, "truncated", wasmtest.EngineModule()[:40])
	if !errors.As(err, &compErr) {
		t.Fatalf("Expected CompilationError for truncated module, got %v", err)
	}
}

func TestModuleLoaderFileSource(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)

	wasmFile := filepath.Join(t.TempDir(), "engine.wasm")
	if err := os.WriteFile(wasmFile, wasmtest.EngineModule(), 0644); err != nil {
		t.Fatalf("Failed to write test file: %v", err)
	}

	module, err := loader.LoadModuleFromFile(ctx, wasmFile)
	if err != nil {
		t.Fatalf("Failed to load module from file: %v", err)
	}
	if module.Source != wasmFile {
		t.Errorf("Source = %s, want %s", module.Source, wasmFile)
	}

	_, err = loader.LoadModuleFromFile(ctx, filepath.Join(t.TempDir(), "missing.wasm"))
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("Expected not-exist error, got %v", err)
	}
}

func TestModuleLoaderEvict(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	loader := NewModuleLoader(runtime, logger)
	if _, err := loader.LoadModuleFromMemory(ctx, "engine", wasmtest.EngineModule()); err != nil {
		t.Fatal(err)
	}

	if err := loader.Evict(ctx, "engine"); err != nil {
		t.Fatalf("Evict failed: %v", err)
	}
	if _, ok := runtime.GetCompiledModule("engine"); ok {
		t.Error("Module should be gone after Evict")
	}

	var notFound *ModuleNotFoundError
	if err := loader.Evict(ctx, "engine"); !errors.As(err, &notFound) {
		t.Errorf("Second Evict should report ModuleNotFoundError, got %v", err)
	}
}

func TestInstantiateUnknownModule(t *testing.T) {
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	runtime, err := NewRuntime(ctx, logger, nil)
	if err != nil {
		t.Fatal(err)
	}
	defer runtime.Close(ctx)

	instanceMgr := NewInstanceManager(runtime, NewHostFunctions(logger, 1), logger)
	_, err = instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "nope"})

	var notFound *ModuleNotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("Expected ModuleNotFoundError, got %v", err)
	}
}

func TestInstanceExportsAndCall(t *testing.T) {
	runtime, instance := newEngineInstance(t, nil)
	ctx := context.Background()

	if !reflect.DeepEqual(instance.Exports(), wasmtest.Exports()) {
		t.Errorf("Exports = %v, want %v", instance.Exports(), wasmtest.Exports())
	}
	if !instance.HasFunction(abi.ExportEngineNew) {
		t.Error("engine_new should be exported")
	}
	if instance.HasFunction(abi.ExportEngineFree) {
		t.Error("engine_free should not be exported")
	}

	if got, ok := runtime.GetInstance(instance.ID); !ok || got != instance {
		t.Error("Instance should be tracked by the runtime")
	}

	results, err := instance.Call(ctx, abi.ExportEngineNew)
	if err != nil {
		t.Fatalf("engine_new failed: %v", err)
	}
	if handle := api.DecodeU32(results[0]); handle != 1 {
		t.Errorf("handle = %d, want 1", handle)
	}

	results, err = instance.Call(ctx, "op_diagnostics", 1, 0, 0)
	if err != nil {
		t.Fatalf("op_diagnostics failed: %v", err)
	}
	ptr, length := abi.Unpack(results[0])
	data, ok := instance.Memory().ReadBytes(ptr, length)
	if !ok {
		t.Fatal("Failed to read envelope")
	}
	if string(data) != `{"result":[]}` {
		t.Errorf("envelope = %s", data)
	}

	_, err = instance.Call(ctx, "op_missing")
	var notFound *FunctionNotFoundError
	if !errors.As(err, &notFound) {
		t.Errorf("Expected FunctionNotFoundError, got %v", err)
	}
}

func TestInstanceCallTrap(t *testing.T) {
	_, instance := newEngineInstance(t, nil)

	_, err := instance.Call(context.Background(), "op_rename", 1, 0, 0)
	var callErr *CallError
	if !errors.As(err, &callErr) {
		t.Fatalf("Expected CallError, got %v", err)
	}
	if callErr.FunctionName != "op_rename" {
		t.Errorf("FunctionName = %s, want op_rename", callErr.FunctionName)
	}
}

func TestInstanceCallTimeout(t *testing.T) {
	config := DefaultRuntimeConfig()
	config.ExecutionTimeout = 50 * time.Millisecond
	_, instance := newEngineInstance(t, config)

	_, err := instance.Call(context.Background(), "op_references", 1, 0, 0)
	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Expected TimeoutError, got %v", err)
	}
	if timeoutErr.Duration != 50*time.Millisecond {
		t.Errorf("Duration = %v, want 50ms", timeoutErr.Duration)
	}

	// The instance that overran is unusable.
	if !instance.IsClosed() {
		t.Error("Instance should be closed after a timeout")
	}
}

func TestInstanceLimit(t *testing.T) {
	config := DefaultRuntimeConfig()
	config.MaxInstances = 1
	runtime, instance := newEngineInstance(t, config)
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	instanceMgr := NewInstanceManager(runtime, NewHostFunctions(logger, 1), logger)
	_, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "engine"})
	var limitErr *TooManyInstancesError
	if !errors.As(err, &limitErr) {
		t.Fatalf("Expected TooManyInstancesError, got %v", err)
	}

	// Closing frees the slot.
	if err := instance.Close(ctx); err != nil {
		t.Fatal(err)
	}
	if runtime.ActiveInstances() != 0 {
		t.Errorf("ActiveInstances = %d, want 0", runtime.ActiveInstances())
	}
	second, err := instanceMgr.Instantiate(ctx, &InstanceConfig{ModuleName: "engine", InstanceID: "second"})
	if err != nil {
		t.Fatalf("Instantiate after Close failed: %v", err)
	}
	if second.ID != "second" {
		t.Errorf("ID = %s, want second", second.ID)
	}
}

func TestHostFunctions(t *testing.T) {
	logger := zaptest.NewLogger(t)

	hostFuncs := NewHostFunctions(logger, 6)
	if hostFuncs == nil {
		t.Fatal("HostFunctionsImpl is nil")
	}

	if got := hostFuncs.hardwareConcurrency(context.Background(), nil); got != 6 {
		t.Errorf("hardware_concurrency = %d, want 6", got)
	}
}

func TestHostFunctionsDefaultThreads(t *testing.T) {
	hostFuncs := NewHostFunctions(zaptest.NewLogger(t), 0)

	got := hostFuncs.hardwareConcurrency(context.Background(), nil)
	if got == 0 {
		t.Fatal("hardware_concurrency should never report zero threads")
	}
	if want := uint32(runtime.NumCPU()); got != want {
		t.Errorf("hardware_concurrency = %d, want %d", got, want)
	}
}

func TestHostLogMessage(t *testing.T) {
	_, instance := newEngineInstance(t, nil)
	ctx := context.Background()

	core, logs := observer.New(zap.DebugLevel)
	hostFuncs := NewHostFunctions(zap.New(core), 1)

	ptr, length, err := instance.Memory().WriteString(ctx, "indexing done")
	if err != nil {
		t.Fatal(err)
	}
	hostFuncs.logMessage(ctx, instance.module, uint32(abi.LogWarn), ptr, length)

	entries := logs.FilterMessage("indexing done").All()
	if len(entries) != 1 {
		t.Fatalf("Expected one log entry, got %d", len(entries))
	}
	if entries[0].Level != zap.WarnLevel {
		t.Errorf("Level = %v, want warn", entries[0].Level)
	}

	// Out-of-bounds reads are logged as errors, never panic.
	hostFuncs.logMessage(ctx, instance.module, uint32(abi.LogInfo), 1<<20, 16)
	if logs.FilterMessage("Failed to read log message from Wasm memory").Len() != 1 {
		t.Error("Expected an error entry for the out-of-bounds message")
	}
}

func TestMemoryHelpers(t *testing.T) {
	_, instance := newEngineInstance(t, nil)
	ctx := context.Background()

	mem := instance.Memory()

	ptr, length, err := mem.WriteString(ctx, `{"uri":"a.sql"}`)
	if err != nil {
		t.Fatalf("WriteString failed: %v", err)
	}
	if ptr != 1024 {
		t.Errorf("ptr = %d, want the guest allocator's 1024", ptr)
	}

	data, ok := mem.ReadBytes(ptr, length)
	if !ok {
		t.Fatal("Failed to read from memory")
	}
	if string(data) != `{"uri":"a.sql"}` {
		t.Errorf("ReadBytes = %q", data)
	}

	// ReadString stops at the first NUL of the data segment.
	s, ok := mem.ReadString(16, 64)
	if !ok {
		t.Fatal("ReadString failed")
	}
	if s != `{"result":[]}` {
		t.Errorf("ReadString = %q", s)
	}

	if _, ok := mem.ReadBytes(65530, 64); ok {
		t.Error("Read past the end of memory should fail")
	}

	if err := mem.Free(ctx, ptr, length); err != nil {
		t.Errorf("Free failed: %v", err)
	}
}
