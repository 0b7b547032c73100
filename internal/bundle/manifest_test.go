package bundle

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/woxQAQ/wasm-analyzer/internal/engine"
)

func TestParseManifest_Valid(t *testing.T) {
	dir := writeBundle(t, t.TempDir(), "fixture", testManifest)

	m, err := ParseManifest(dir)
	if err != nil {
		t.Fatalf("ParseManifest() failed: %v", err)
	}

	if m.Name != "fixture" {
		t.Errorf("expected name 'fixture', got '%s'", m.Name)
	}
	if m.Version != "1.0.0" {
		t.Errorf("expected version '1.0.0', got '%s'", m.Version)
	}
	if m.Threads != 2 {
		t.Errorf("expected threads 2, got %d", m.Threads)
	}
	if m.WasmPath() != filepath.Join(dir, "engine.wasm") {
		t.Errorf("unexpected wasm path %s", m.WasmPath())
	}
	if m.Dir() != dir {
		t.Errorf("expected dir %s, got %s", dir, m.Dir())
	}

	ops := m.EngineOperations()
	if len(ops) != 2 || ops[0] != engine.OpDiagnostics || ops[1] != engine.OpHover {
		t.Errorf("unexpected operations %v", ops)
	}
}

func TestParseManifest_NotFound(t *testing.T) {
	_, err := ParseManifest(filepath.Join(t.TempDir(), "missing"))
	if err == nil {
		t.Fatal("ParseManifest() should fail for a missing manifest")
	}

	notFound, ok := err.(*ManifestNotFoundError)
	if !ok {
		t.Fatalf("expected ManifestNotFoundError, got %T", err)
	}
	if !os.IsNotExist(notFound.Unwrap()) {
		t.Errorf("expected wrapped not-exist error, got %v", notFound.Err)
	}
}

func TestParseManifest_InvalidYAML(t *testing.T) {
	dir := writeBundle(t, t.TempDir(), "broken", "name: [unterminated\n")

	_, err := ParseManifest(dir)
	if _, ok := err.(*ManifestParseError); !ok {
		t.Errorf("expected ManifestParseError, got %T (%v)", err, err)
	}
}

func TestParseManifest_Validation(t *testing.T) {
	tests := []struct {
		name     string
		manifest string
		field    string
	}{
		{
			name:     "missing name",
			manifest: "version: 1.0.0\nwasm:\n  file: engine.wasm\n",
			field:    "name",
		},
		{
			name:     "missing version",
			manifest: "name: x\nwasm:\n  file: engine.wasm\n",
			field:    "version",
		},
		{
			name:     "missing wasm file",
			manifest: "name: x\nversion: 1.0.0\n",
			field:    "wasm.file",
		},
		{
			name:     "negative threads",
			manifest: "name: x\nversion: 1.0.0\nwasm:\n  file: engine.wasm\nthreads: -1\n",
			field:    "threads",
		},
		{
			name:     "unknown operation",
			manifest: "name: x\nversion: 1.0.0\nwasm:\n  file: engine.wasm\noperations: [hover, format_sql]\n",
			field:    "operations",
		},
		{
			name:     "duplicate operation",
			manifest: "name: x\nversion: 1.0.0\nwasm:\n  file: engine.wasm\noperations: [hover, hover]\n",
			field:    "operations",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := writeBundle(t, t.TempDir(), "x", tt.manifest)

			_, err := ParseManifest(dir)
			verr, ok := err.(*ManifestValidationError)
			if !ok {
				t.Fatalf("expected ManifestValidationError, got %T (%v)", err, err)
			}
			if verr.Field != tt.field {
				t.Errorf("expected field %q, got %q", tt.field, verr.Field)
			}
			if !strings.Contains(verr.Error(), tt.field) {
				t.Errorf("error message should name the field: %s", verr.Error())
			}
		})
	}
}

func TestParseManifest_WasmNotFound(t *testing.T) {
	dir := writeBundle(t, t.TempDir(), "x", "name: x\nversion: 1.0.0\nwasm:\n  file: other.wasm\n")

	_, err := ParseManifest(dir)
	werr, ok := err.(*WasmNotFoundError)
	if !ok {
		t.Fatalf("expected WasmNotFoundError, got %T", err)
	}
	if werr.WasmFile != "other.wasm" {
		t.Errorf("expected wasm file 'other.wasm', got '%s'", werr.WasmFile)
	}
}
