package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrInstanceClosed reports that the engine instance can no longer serve
	// calls. The owning worker must terminate; instances are never rebuilt.
	ErrInstanceClosed = errors.New("engine instance closed")

	// ErrNotLoaded is returned when an instance is requested before Load.
	ErrNotLoaded = errors.New("engine module not loaded")

	// ErrTimeout reports that a call overran the execution timeout.
	ErrTimeout = errors.New("engine execution timed out")
)

// UnknownOperationError occurs when a name is outside the operation set.
type UnknownOperationError struct {
	Name string
}

func (e *UnknownOperationError) Error() string {
	return fmt.Sprintf("unknown operation %q", e.Name)
}

// UnsupportedOperationError occurs when the operation is known but the loaded
// engine does not implement it.
type UnsupportedOperationError struct {
	Op Operation
}

func (e *UnsupportedOperationError) Error() string {
	return fmt.Sprintf("operation %q is not supported by this engine", e.Op)
}

// InvocationError occurs when an operation fails inside the engine.
// Message is the engine's own error text when it reported one.
type InvocationError struct {
	Op      Operation
	Message string
	Err     error
}

func (e *InvocationError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}

// PoolInitError occurs when the engine refuses to start its thread pool.
type PoolInitError struct {
	Threads int
	Status  int32
	Err     error
}

func (e *PoolInitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("failed to initialize thread pool (%d threads): %v", e.Threads, e.Err)
	}
	return fmt.Sprintf("failed to initialize thread pool (%d threads): status %d", e.Threads, e.Status)
}

func (e *PoolInitError) Unwrap() error {
	return e.Err
}
