// Package wasmtest provides a tiny hand-assembled engine module for tests.
//
// The module exports a single page of memory and the engine ABI:
//
//	engine_new()            -> 1
//	alloc(len)              -> 1024 (fixed scratch offset)
//	dealloc(ptr, len)       stores ptr at FreedPtrAddr
//	init_thread_pool(n)     -> 0
//	op_update(h, p, l)      -> {"result":null}
//	op_diagnostics(h, p, l) -> {"result":[]}
//	op_hover(h, p, l)       -> {"error":"bad position"}
//	op_rename(h, p, l)      traps (unreachable)
//	op_references(h, p, l)  loops forever
//
// It imports nothing, so it instantiates with or without the host module.
package wasmtest

// DiagnosticsResult is the envelope result returned by op_diagnostics.
const DiagnosticsResult = `[]`

// FreedPtrAddr is where dealloc records the last pointer it was given, as a
// little-endian u32. It stays zero until the first dealloc.
const FreedPtrAddr = 0

// ArgsPtr is the offset alloc always returns.
const ArgsPtr = 1024

// HoverError is the envelope error returned by op_hover.
const HoverError = "bad position"

// EngineModule returns the module's binary. Each call returns a fresh copy.
func EngineModule() []byte {
	return append([]byte(nil), engineModule...)
}

// Exports lists the functions the module exports, sorted.
func Exports() []string {
	return []string{
		"alloc",
		"dealloc",
		"engine_new",
		"init_thread_pool",
		"op_diagnostics",
		"op_hover",
		"op_references",
		"op_rename",
		"op_update",
	}
}

var engineModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00, 0x01, 0x16, 0x04, 0x60,
	0x00, 0x01, 0x7f, 0x60, 0x01, 0x7f, 0x01, 0x7f, 0x60, 0x02, 0x7f, 0x7f,
	0x00, 0x60, 0x03, 0x7f, 0x7f, 0x7f, 0x01, 0x7e, 0x03, 0x0a, 0x09, 0x00,
	0x01, 0x02, 0x03, 0x03, 0x01, 0x03, 0x03, 0x03, 0x05, 0x03, 0x01, 0x00,
	0x01, 0x07, 0x80, 0x01, 0x0a, 0x06, 0x6d, 0x65, 0x6d, 0x6f, 0x72, 0x79,
	0x02, 0x00, 0x0a, 0x65, 0x6e, 0x67, 0x69, 0x6e, 0x65, 0x5f, 0x6e, 0x65,
	0x77, 0x00, 0x00, 0x05, 0x61, 0x6c, 0x6c, 0x6f, 0x63, 0x00, 0x01, 0x07,
	0x64, 0x65, 0x61, 0x6c, 0x6c, 0x6f, 0x63, 0x00, 0x02, 0x0e, 0x6f, 0x70,
	0x5f, 0x64, 0x69, 0x61, 0x67, 0x6e, 0x6f, 0x73, 0x74, 0x69, 0x63, 0x73,
	0x00, 0x03, 0x08, 0x6f, 0x70, 0x5f, 0x68, 0x6f, 0x76, 0x65, 0x72, 0x00,
	0x04, 0x10, 0x69, 0x6e, 0x69, 0x74, 0x5f, 0x74, 0x68, 0x72, 0x65, 0x61,
	0x64, 0x5f, 0x70, 0x6f, 0x6f, 0x6c, 0x00, 0x05, 0x09, 0x6f, 0x70, 0x5f,
	0x75, 0x70, 0x64, 0x61, 0x74, 0x65, 0x00, 0x06, 0x09, 0x6f, 0x70, 0x5f,
	0x72, 0x65, 0x6e, 0x61, 0x6d, 0x65, 0x00, 0x07, 0x0d, 0x6f, 0x70, 0x5f,
	0x72, 0x65, 0x66, 0x65, 0x72, 0x65, 0x6e, 0x63, 0x65, 0x73, 0x00, 0x08,
	0x0a, 0x46, 0x09, 0x04, 0x00, 0x41, 0x01, 0x0b, 0x05, 0x00, 0x41, 0x80,
	0x08, 0x0b, 0x09, 0x00, 0x41, 0x00, 0x20, 0x00, 0x36, 0x02, 0x00, 0x0b,
	0x09, 0x00, 0x42, 0x8d, 0x80, 0x80, 0x80, 0x80, 0x02, 0x0b, 0x09, 0x00,
	0x42, 0x98, 0x80, 0x80, 0x80, 0x80, 0x08, 0x0b, 0x04, 0x00, 0x41, 0x00,
	0x0b, 0x09, 0x00, 0x42, 0x8f, 0x80, 0x80, 0x80, 0x80, 0x10, 0x0b, 0x03,
	0x00, 0x00, 0x0b, 0x08, 0x00, 0x03, 0x40, 0x0c, 0x00, 0x0b, 0x00, 0x0b,
	0x0b, 0x46, 0x03, 0x00, 0x41, 0x10, 0x0b, 0x0d, 0x7b, 0x22, 0x72, 0x65,
	0x73, 0x75, 0x6c, 0x74, 0x22, 0x3a, 0x5b, 0x5d, 0x7d, 0x00, 0x41, 0xc0,
	0x00, 0x0b, 0x18, 0x7b, 0x22, 0x65, 0x72, 0x72, 0x6f, 0x72, 0x22, 0x3a,
	0x22, 0x62, 0x61, 0x64, 0x20, 0x70, 0x6f, 0x73, 0x69, 0x74, 0x69, 0x6f,
	0x6e, 0x22, 0x7d, 0x00, 0x41, 0x80, 0x01, 0x0b, 0x0f, 0x7b, 0x22, 0x72,
	0x65, 0x73, 0x75, 0x6c, 0x74, 0x22, 0x3a, 0x6e, 0x75, 0x6c, 0x6c, 0x7d,
}
