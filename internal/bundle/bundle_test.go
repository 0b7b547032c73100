package bundle

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/woxQAQ/wasm-analyzer/internal/wasm/wasmtest"
)

const testManifest = `name: fixture
version: 1.0.0
description: Test engine
wasm:
  file: engine.wasm
operations:
  - diagnostics
  - hover
threads: 2
`

// writeBundle lays out a bundle directory named dir under root with the
// given manifest and the fixture engine module.
func writeBundle(t *testing.T, root, dir, manifest string) string {
	t.Helper()

	path := filepath.Join(root, dir)
	if err := os.MkdirAll(path, 0o755); err != nil {
		t.Fatalf("Failed to create bundle dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, ManifestFile), []byte(manifest), 0o644); err != nil {
		t.Fatalf("Failed to write manifest: %v", err)
	}
	if err := os.WriteFile(filepath.Join(path, "engine.wasm"), wasmtest.EngineModule(), 0o644); err != nil {
		t.Fatalf("Failed to write module: %v", err)
	}
	return path
}
