package engine

import (
	abi "github.com/woxQAQ/wasm-analyzer/api/wasm"
)

// Operation names one method of the engine's call surface.
type Operation string

// The closed set of operations a worker will dispatch. Names outside this
// set are rejected before the engine is touched.
const (
	OpUpdate             Operation = "update"
	OpDiagnostics        Operation = "diagnostics"
	OpHover              Operation = "hover"
	OpCompletions        Operation = "completions"
	OpDefinition         Operation = "definition"
	OpTypeDefinition     Operation = "type_definition"
	OpGotoImplementation Operation = "goto_implementation"
	OpReferences         Operation = "references"
	OpDocumentSymbols    Operation = "document_symbols"
	OpDocumentHighlight  Operation = "document_highlight"
	OpFoldingRanges      Operation = "folding_ranges"
	OpSelectionRanges    Operation = "selection_ranges"
	OpSignatureHelp      Operation = "signature_help"
	OpInlayHints         Operation = "inlay_hints"
	OpCodeLenses         Operation = "code_lenses"
	OpPrepareRename      Operation = "prepare_rename"
	OpRename             Operation = "rename"
	OpTypeFormatting     Operation = "type_formatting"
)

var operations = []Operation{
	OpUpdate,
	OpDiagnostics,
	OpHover,
	OpCompletions,
	OpDefinition,
	OpTypeDefinition,
	OpGotoImplementation,
	OpReferences,
	OpDocumentSymbols,
	OpDocumentHighlight,
	OpFoldingRanges,
	OpSelectionRanges,
	OpSignatureHelp,
	OpInlayHints,
	OpCodeLenses,
	OpPrepareRename,
	OpRename,
	OpTypeFormatting,
}

var known = func() map[Operation]struct{} {
	m := make(map[Operation]struct{}, len(operations))
	for _, op := range operations {
		m[op] = struct{}{}
	}
	return m
}()

// Operations returns the closed operation set in declaration order.
func Operations() []Operation {
	return append([]Operation(nil), operations...)
}

// ParseOperation validates an operation name.
func ParseOperation(name string) (Operation, error) {
	op := Operation(name)
	if _, ok := known[op]; !ok {
		return "", &UnknownOperationError{Name: name}
	}
	return op, nil
}

// Export is the name of the Wasm export implementing the operation.
func (o Operation) Export() string {
	return abi.OperationExportPrefix + string(o)
}

func (o Operation) String() string {
	return string(o)
}
