// Package engine defines the call surface of an analysis engine and its
// WebAssembly-backed implementation.
//
// The engine is opaque: callers only see named operations taking positional
// JSON arguments and returning a JSON result.
package engine

import (
	"context"
	"encoding/json"
)

// Binding loads an engine and constructs instances of it.
type Binding interface {
	// Load fetches and compiles the engine. It is called once, before any
	// other method.
	Load(ctx context.Context) error

	// NewInstance constructs a stateful engine instance.
	NewInstance(ctx context.Context) (Instance, error)
}

// PoolInitializer is implemented by bindings whose engine runs an internal
// thread pool that must be started before the first instance.
type PoolInitializer interface {
	InitPool(ctx context.Context, threads int) error
}

// Instance is one live engine. It is not safe for concurrent use.
type Instance interface {
	// Capabilities reports the operations this instance implements.
	Capabilities() []Operation

	// Invoke runs op with args in order and returns its JSON result.
	Invoke(ctx context.Context, op Operation, args []json.RawMessage) (json.RawMessage, error)

	Close(ctx context.Context) error
}
