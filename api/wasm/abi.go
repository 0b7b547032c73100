// Package wasm describes the binary interface between the host and an analysis
// engine compiled to WebAssembly.
//
// NOTE: uint32 is used for pointers and lengths because WebAssembly uses a 32-bit
// linear memory model. Results that carry both a pointer and a length are packed
// into a single i64 (pointer in the high half), see Pack.
package wasm

import "encoding/json"

// Exports the engine module provides.
//
//	alloc(len i32) -> ptr i32
//	dealloc(ptr i32, len i32)
//	init_thread_pool(threads i32) -> status i32       (optional)
//	engine_new() -> handle i32
//	engine_free(handle i32)                           (optional)
//	op_<name>(handle i32, args_ptr i32, args_len i32) -> packed i64
const (
	ExportMemory          = "memory"
	ExportAlloc           = "alloc"
	ExportDealloc         = "dealloc"
	ExportInitThreadPool  = "init_thread_pool"
	ExportEngineNew       = "engine_new"
	ExportEngineFree      = "engine_free"
	OperationExportPrefix = "op_"

	// StartFunction is run on instantiation when the module exports it
	// (reactor-style modules).
	StartFunction = "_initialize"
)

// Imports the host provides under HostModule.
//
//	log_message(level i32, ptr i32, len i32)
//	hardware_concurrency() -> i32
const (
	HostModule                = "host"
	ImportLogMessage          = "log_message"
	ImportHardwareConcurrency = "hardware_concurrency"
)

// LogLevel is the level argument of log_message.
type LogLevel uint32

const (
	LogDebug LogLevel = iota
	LogInfo
	LogWarn
	LogError
)

// Pack combines a pointer and a length into the i64 returned by operation exports.
func Pack(ptr, length uint32) uint64 {
	return uint64(ptr)<<32 | uint64(length)
}

// Unpack splits a packed operation result.
func Unpack(v uint64) (ptr, length uint32) {
	return uint32(v >> 32), uint32(v)
}

// Envelope is the JSON document an operation export writes into guest memory.
// Exactly one of Result or Error is set.
type Envelope struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}
