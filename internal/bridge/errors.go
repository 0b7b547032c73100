package bridge

import (
	"errors"
	"fmt"
	"time"

	"github.com/woxQAQ/wasm-analyzer/pkg/protocol"
)

var (
	// ErrTerminated matches every error that means the worker is gone:
	// TerminatedError, LoadError and ReadyTimeoutError.
	ErrTerminated = errors.New("bridge: worker terminated")

	// ErrClosed is the cause recorded when the client itself is closed.
	ErrClosed = errors.New("bridge: client closed")

	// ErrPending is returned by Future.Result before settlement.
	ErrPending = errors.New("bridge: request still pending")
)

// TerminatedError rejects calls once the worker or its transport is gone.
type TerminatedError struct {
	Err error
}

func (e *TerminatedError) Error() string {
	if e.Err == nil {
		return ErrTerminated.Error()
	}
	return fmt.Sprintf("%v: %v", ErrTerminated, e.Err)
}

func (e *TerminatedError) Is(target error) bool {
	return target == ErrTerminated
}

func (e *TerminatedError) Unwrap() error {
	return e.Err
}

// LoadError reports that the worker failed to bring the engine up.
type LoadError struct {
	Code    protocol.ErrorCode
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("bridge: engine failed to load: %s", e.Message)
}

func (e *LoadError) Is(target error) bool {
	return target == ErrTerminated
}

// ReadyTimeoutError reports that no readiness signal arrived in time.
type ReadyTimeoutError struct {
	Timeout time.Duration
}

func (e *ReadyTimeoutError) Error() string {
	return fmt.Sprintf("bridge: worker not ready after %v", e.Timeout)
}

func (e *ReadyTimeoutError) Is(target error) bool {
	return target == ErrTerminated
}

// RemoteError is a failure reported by the worker for one request. The
// client remains usable.
type RemoteError struct {
	Op      string
	Code    protocol.ErrorCode
	Message string
	Data    any
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("bridge: %s failed (%s): %s", e.Op, e.Code, e.Message)
}
