//go:build wasip1

package wasm

// Guest-side implementation of the engine ABI for engines written in Go.
// Build with GOOS=wasip1 GOARCH=wasm -buildmode=c-shared and register
// handlers from an init function:
//
//	func init() {
//		wasm.Handle("hover", func(args []json.RawMessage) (any, error) { ... })
//	}

import (
	"encoding/json"
	"fmt"
	"unsafe"
)

// Handler implements one operation. args are the positional arguments sent by
// the caller.
type Handler func(args []json.RawMessage) (any, error)

var (
	handlers = make(map[string]Handler)

	// pinned keeps guest buffers reachable until the host deallocates them.
	pinned = make(map[uint32][]byte)
)

// Handle registers the handler for an operation.
func Handle(op string, h Handler) {
	handlers[op] = h
}

//go:wasmexport alloc
func alloc(size uint32) uint32 {
	if size == 0 {
		return 0
	}
	buf := make([]byte, size)
	ptr := uint32(uintptr(unsafe.Pointer(&buf[0])))
	pinned[ptr] = buf
	return ptr
}

//go:wasmexport dealloc
func dealloc(ptr, _ uint32) {
	delete(pinned, ptr)
}

//go:wasmexport engine_new
func engineNew() uint32 {
	return 1
}

func dispatch(op string, ptr, length uint32) uint64 {
	var env Envelope
	h, ok := handlers[op]
	if !ok {
		env.Error = fmt.Sprintf("operation %q not implemented", op)
		return writeEnvelope(env)
	}

	var args []json.RawMessage
	if length > 0 {
		if err := json.Unmarshal(pinned[ptr][:length], &args); err != nil {
			env.Error = fmt.Sprintf("decode arguments: %v", err)
			return writeEnvelope(env)
		}
	}

	result, err := h(args)
	if err != nil {
		env.Error = err.Error()
		return writeEnvelope(env)
	}
	data, err := json.Marshal(result)
	if err != nil {
		env.Error = fmt.Sprintf("encode result: %v", err)
		return writeEnvelope(env)
	}
	env.Result = data
	return writeEnvelope(env)
}

func writeEnvelope(env Envelope) uint64 {
	data, err := json.Marshal(env)
	if err != nil {
		data = []byte(`{"error":"encode envelope"}`)
	}
	ptr := alloc(uint32(len(data)))
	copy(pinned[ptr], data)
	return Pack(ptr, uint32(len(data)))
}

//go:wasmexport op_update
func opUpdate(_, ptr, length uint32) uint64 { return dispatch("update", ptr, length) }

//go:wasmexport op_diagnostics
func opDiagnostics(_, ptr, length uint32) uint64 { return dispatch("diagnostics", ptr, length) }

//go:wasmexport op_hover
func opHover(_, ptr, length uint32) uint64 { return dispatch("hover", ptr, length) }

//go:wasmexport op_completions
func opCompletions(_, ptr, length uint32) uint64 { return dispatch("completions", ptr, length) }

//go:wasmexport op_definition
func opDefinition(_, ptr, length uint32) uint64 { return dispatch("definition", ptr, length) }

//go:wasmexport op_references
func opReferences(_, ptr, length uint32) uint64 { return dispatch("references", ptr, length) }

//go:wasmexport op_document_symbols
func opDocumentSymbols(_, ptr, length uint32) uint64 {
	return dispatch("document_symbols", ptr, length)
}

//go:wasmexport op_rename
func opRename(_, ptr, length uint32) uint64 { return dispatch("rename", ptr, length) }

//go:wasmexport op_type_definition
func opTypeDefinition(_, ptr, length uint32) uint64 {
	return dispatch("type_definition", ptr, length)
}

//go:wasmexport op_goto_implementation
func opGotoImplementation(_, ptr, length uint32) uint64 {
	return dispatch("goto_implementation", ptr, length)
}

//go:wasmexport op_document_highlight
func opDocumentHighlight(_, ptr, length uint32) uint64 {
	return dispatch("document_highlight", ptr, length)
}

//go:wasmexport op_folding_ranges
func opFoldingRanges(_, ptr, length uint32) uint64 {
	return dispatch("folding_ranges", ptr, length)
}

//go:wasmexport op_selection_ranges
func opSelectionRanges(_, ptr, length uint32) uint64 {
	return dispatch("selection_ranges", ptr, length)
}

//go:wasmexport op_signature_help
func opSignatureHelp(_, ptr, length uint32) uint64 {
	return dispatch("signature_help", ptr, length)
}

//go:wasmexport op_inlay_hints
func opInlayHints(_, ptr, length uint32) uint64 { return dispatch("inlay_hints", ptr, length) }

//go:wasmexport op_code_lenses
func opCodeLenses(_, ptr, length uint32) uint64 { return dispatch("code_lenses", ptr, length) }

//go:wasmexport op_prepare_rename
func opPrepareRename(_, ptr, length uint32) uint64 {
	return dispatch("prepare_rename", ptr, length)
}

//go:wasmexport op_type_formatting
func opTypeFormatting(_, ptr, length uint32) uint64 {
	return dispatch("type_formatting", ptr, length)
}
