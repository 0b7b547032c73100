package wasm

import (
	"context"
	"fmt"

	"github.com/tetratelabs/wazero/api"

	abi "github.com/woxQAQ/wasm-analyzer/api/wasm"
)

// Memory provides bounds-checked access to a module's linear memory.
//
// Reads return copies, never views into guest memory, because the guest may
// grow (and so move) its memory on the next call. Writes go through the
// guest's own allocator (alloc/dealloc exports) so host-written buffers never
// collide with guest data.
type Memory struct {
	module  string
	mem     api.Memory
	alloc   api.Function
	dealloc api.Function
}

// NewMemory creates a memory helper.
func NewMemory(module api.Module) *Memory {
	return &Memory{
		module:  module.Name(),
		mem:     module.Memory(),
		alloc:   module.ExportedFunction(abi.ExportAlloc),
		dealloc: module.ExportedFunction(abi.ExportDealloc),
	}
}

// ReadString reads a null-terminated string from Wasm memory.
func (m *Memory) ReadString(ptr uint32, maxLen uint32) (string, bool) {
	if m.mem == nil {
		return "", false
	}
	buf, ok := m.mem.Read(ptr, maxLen)
	if !ok {
		return "", false
	}

	end := len(buf)
	for i, b := range buf {
		if b == 0 {
			end = i
			break
		}
	}

	return string(buf[:end]), true
}

// ReadBytes copies raw bytes out of Wasm memory.
func (m *Memory) ReadBytes(ptr uint32, length uint32) ([]byte, bool) {
	if m.mem == nil {
		return nil, false
	}
	buf, ok := m.mem.Read(ptr, length)
	if !ok {
		return nil, false
	}
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, true
}

// WriteBytes allocates a guest buffer and copies data into it.
// The caller owns the buffer and releases it with Free.
func (m *Memory) WriteBytes(ctx context.Context, data []byte) (uint32, uint32, error) {
	length := uint32(len(data))
	if m.mem == nil {
		return 0, 0, &MemoryAccessError{Operation: "write", Length: length, Err: ErrNoMemory}
	}
	if m.alloc == nil {
		return 0, 0, &FunctionNotFoundError{ModuleName: m.module, FunctionName: abi.ExportAlloc}
	}

	results, err := m.alloc.Call(ctx, api.EncodeU32(length))
	if err != nil {
		return 0, 0, &CallError{ModuleName: m.module, FunctionName: abi.ExportAlloc, Err: err}
	}
	ptr := api.DecodeU32(results[0])

	if !m.mem.Write(ptr, data) {
		return 0, 0, &MemoryAccessError{
			Operation: "write",
			Address:   ptr,
			Length:    length,
			Err:       fmt.Errorf("out of bounds (memory size %d)", m.mem.Size()),
		}
	}
	return ptr, length, nil
}

// WriteString writes a string to Wasm memory.
func (m *Memory) WriteString(ctx context.Context, s string) (uint32, uint32, error) {
	return m.WriteBytes(ctx, []byte(s))
}

// Free returns a buffer to the guest allocator. Modules without dealloc
// leak the buffer, which is acceptable for arena-style engines.
func (m *Memory) Free(ctx context.Context, ptr, length uint32) error {
	if m.dealloc == nil || length == 0 {
		return nil
	}
	if _, err := m.dealloc.Call(ctx, api.EncodeU32(ptr), api.EncodeU32(length)); err != nil {
		return &CallError{ModuleName: m.module, FunctionName: abi.ExportDealloc, Err: err}
	}
	return nil
}
