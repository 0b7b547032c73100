package protocol

// Result types returned by analysis engine operations. They follow the
// Language Server Protocol shapes so editor front-ends can consume them as-is.

// Position represents a position in a text document
type Position struct {
	Line      int `json:"line"`
	Character int `json:"character"`
}

// Range represents a range in a text document
type Range struct {
	Start Position `json:"start"`
	End   Position `json:"end"`
}

// Location is a range inside a file.
type Location struct {
	File  string `json:"file"`
	Range Range  `json:"range"`
}

// TextEdit represents a text edit
type TextEdit struct {
	Range   Range  `json:"range"`
	NewText string `json:"newText"`
}

// FileEdit groups the edits that apply to one file.
type FileEdit struct {
	File  string     `json:"file"`
	Edits []TextEdit `json:"edits"`
}

// WorkspaceEdit is the result of a rename.
type WorkspaceEdit struct {
	Changes []FileEdit `json:"changes"`
}

// CompletionItemKind represents the kind of completion item
type CompletionItemKind int

const (
	CompletionItemKindKeyword CompletionItemKind = iota + 1
	CompletionItemKindFunction
	CompletionItemKindTable
	CompletionItemKindColumn
	CompletionItemKindSchema
	CompletionItemKindView
	CompletionItemKindSequence
	CompletionItemKindEnum
	CompletionItemKindType
	CompletionItemKindOperator
	CompletionItemKindParameter
	CompletionItemKindSnippet
	CompletionItemKindReference
	CompletionItemKindNamespace
	CompletionItemKindStruct
	CompletionItemKindModule
)

// CompletionItem represents a completion item
type CompletionItem struct {
	Label         string             `json:"label"`
	Kind          CompletionItemKind `json:"kind"`
	Detail        string             `json:"detail,omitempty"`
	Documentation string             `json:"documentation,omitempty"`
	TextEdit      *TextEdit          `json:"textEdit,omitempty"`
	SortText      string             `json:"sortText,omitempty"`
	FilterText    string             `json:"filterText,omitempty"`
}

// DiagnosticSeverity mirrors the LSP severity levels.
type DiagnosticSeverity int

const (
	SeverityError DiagnosticSeverity = iota + 1
	SeverityWarning
	SeverityInformation
	SeverityHint
)

// Diagnostic is a problem reported for a file.
type Diagnostic struct {
	Range    Range              `json:"range"`
	Severity DiagnosticSeverity `json:"severity"`
	Code     string             `json:"code,omitempty"`
	Source   string             `json:"source,omitempty"`
	Message  string             `json:"message"`
}

// Hover is the information shown for the symbol under the cursor.
type Hover struct {
	Contents string `json:"contents"`
	Range    *Range `json:"range,omitempty"`
}

// DocumentSymbol is one entry of a file outline.
type DocumentSymbol struct {
	Name     string           `json:"name"`
	Detail   string           `json:"detail,omitempty"`
	Kind     int              `json:"kind"`
	Range    Range            `json:"range"`
	Children []DocumentSymbol `json:"children,omitempty"`
}
