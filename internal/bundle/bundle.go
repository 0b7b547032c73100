// Package bundle discovers compiled engine packages on disk and hands out
// engine bindings for them.
//
// A bundle is a directory holding a manifest.yaml and the engine's .wasm
// file, as produced by the engine build and placed by Install.
package bundle

import (
	"time"

	"github.com/woxQAQ/wasm-analyzer/internal/engine"
	"github.com/woxQAQ/wasm-analyzer/internal/wasm"
)

// Bundle represents a loaded engine bundle with its manifest and compiled Wasm module.
type Bundle struct {
	// Manifest is the parsed bundle metadata
	Manifest *Manifest

	// Compiled is the compiled Wasm module
	Compiled *wasm.CompiledModule

	// LoadedAt is the timestamp when the bundle was loaded
	LoadedAt time.Time
}

// Name returns the bundle name.
func (b *Bundle) Name() string {
	return b.Manifest.Name
}

// Version returns the bundle version.
func (b *Bundle) Version() string {
	return b.Manifest.Version
}

// Operations returns the operations the manifest declares.
func (b *Bundle) Operations() []engine.Operation {
	return b.Manifest.EngineOperations()
}

// Threads returns the manifest's pool size hint.
func (b *Bundle) Threads() int {
	return b.Manifest.Threads
}

// Source returns the module source the bundle was compiled from. Its name is
// the cache key of the compiled module.
func (b *Bundle) Source() wasm.ModuleSource {
	return &wasm.FileModuleSource{Path: b.Manifest.WasmPath()}
}
