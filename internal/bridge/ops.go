package bridge

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/woxQAQ/wasm-analyzer/internal/engine"
	"github.com/woxQAQ/wasm-analyzer/pkg/protocol"
)

// Invoke calls which and decodes the result into T.
func Invoke[T any](ctx context.Context, c *Client, which string, args ...any) (T, error) {
	var out T
	raw, err := c.Call(ctx, which, args...)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, fmt.Errorf("bridge: decode %s result: %w", which, err)
	}
	return out, nil
}

// Update replaces the contents of file in the engine's workspace.
func (c *Client) Update(ctx context.Context, file, text string) error {
	_, err := c.Call(ctx, string(engine.OpUpdate), file, text)
	return err
}

// Diagnostics returns the problems reported for file.
func (c *Client) Diagnostics(ctx context.Context, file string) ([]protocol.Diagnostic, error) {
	return Invoke[[]protocol.Diagnostic](ctx, c, string(engine.OpDiagnostics), file)
}

// Hover returns hover information at pos, or nil when there is none.
func (c *Client) Hover(ctx context.Context, file string, pos protocol.Position) (*protocol.Hover, error) {
	return Invoke[*protocol.Hover](ctx, c, string(engine.OpHover), file, pos)
}

func (c *Client) Completions(ctx context.Context, file string, pos protocol.Position) ([]protocol.CompletionItem, error) {
	return Invoke[[]protocol.CompletionItem](ctx, c, string(engine.OpCompletions), file, pos)
}

func (c *Client) Definition(ctx context.Context, file string, pos protocol.Position) ([]protocol.Location, error) {
	return Invoke[[]protocol.Location](ctx, c, string(engine.OpDefinition), file, pos)
}

func (c *Client) References(ctx context.Context, file string, pos protocol.Position, includeDeclaration bool) ([]protocol.Location, error) {
	return Invoke[[]protocol.Location](ctx, c, string(engine.OpReferences), file, pos, includeDeclaration)
}

func (c *Client) DocumentSymbols(ctx context.Context, file string) ([]protocol.DocumentSymbol, error) {
	return Invoke[[]protocol.DocumentSymbol](ctx, c, string(engine.OpDocumentSymbols), file)
}

// Rename computes the edits that rename the symbol at pos to newName.
func (c *Client) Rename(ctx context.Context, file string, pos protocol.Position, newName string) (*protocol.WorkspaceEdit, error) {
	return Invoke[*protocol.WorkspaceEdit](ctx, c, string(engine.OpRename), file, pos, newName)
}
