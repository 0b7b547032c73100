package bundle

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/woxQAQ/wasm-analyzer/internal/engine"
)

// ManifestFile is the name of the manifest inside a bundle directory.
const ManifestFile = "manifest.yaml"

// Manifest represents the engine bundle manifest.yaml structure.
type Manifest struct {
	Name        string     `yaml:"name"`
	Version     string     `yaml:"version"`
	Description string     `yaml:"description,omitempty"`
	Wasm        WasmConfig `yaml:"wasm"`

	// Operations the engine implements. Empty means every exported
	// operation is served.
	Operations []string `yaml:"operations,omitempty"`

	// Threads is the pool size hint. Zero leaves it to the host.
	Threads int `yaml:"threads,omitempty"`

	Author  string `yaml:"author,omitempty"`
	License string `yaml:"license,omitempty"`

	// Internal fields
	dir string // Directory containing manifest
}

// WasmConfig holds Wasm module configuration.
type WasmConfig struct {
	File string `yaml:"file"`
	Size int    `yaml:"size,omitempty"` // KB
}

// ParseManifest reads and parses manifest.yaml from a directory.
func ParseManifest(dir string) (*Manifest, error) {
	manifestPath := filepath.Join(dir, ManifestFile)

	data, err := os.ReadFile(manifestPath)
	if err != nil {
		return nil, &ManifestNotFoundError{
			Path: manifestPath,
			Err:  err,
		}
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, &ManifestParseError{
			Path: manifestPath,
			Err:  err,
		}
	}

	m.dir = dir

	if err := m.Validate(); err != nil {
		return nil, err
	}

	return &m, nil
}

// Validate checks manifest fields and that the module file exists.
func (m *Manifest) Validate() error {
	if m.Name == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "name",
			Message: "name is required",
		}
	}

	if m.Version == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "version",
			Message: "version is required",
		}
	}

	if m.Wasm.File == "" {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "wasm.file",
			Message: "wasm.file is required",
		}
	}

	if m.Threads < 0 {
		return &ManifestValidationError{
			Path:    m.Path(),
			Field:   "threads",
			Message: fmt.Sprintf("threads must not be negative, got %d", m.Threads),
		}
	}

	seen := make(map[string]bool, len(m.Operations))
	for _, op := range m.Operations {
		if _, err := engine.ParseOperation(op); err != nil {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   "operations",
				Message: err.Error(),
			}
		}
		if seen[op] {
			return &ManifestValidationError{
				Path:    m.Path(),
				Field:   "operations",
				Message: fmt.Sprintf("operation %q listed twice", op),
			}
		}
		seen[op] = true
	}

	info, err := os.Stat(m.WasmPath())
	if err != nil || info.IsDir() {
		return &WasmNotFoundError{
			ManifestPath: m.Path(),
			WasmFile:     m.Wasm.File,
		}
	}

	return nil
}

// EngineOperations returns the declared operations in their typed form.
func (m *Manifest) EngineOperations() []engine.Operation {
	ops := make([]engine.Operation, 0, len(m.Operations))
	for _, name := range m.Operations {
		if op, err := engine.ParseOperation(name); err == nil {
			ops = append(ops, op)
		}
	}
	return ops
}

// Path returns the manifest file path.
func (m *Manifest) Path() string {
	return filepath.Join(m.dir, ManifestFile)
}

// WasmPath returns the path to the Wasm file.
func (m *Manifest) WasmPath() string {
	return filepath.Join(m.dir, m.Wasm.File)
}

// Dir returns the directory containing the manifest.
func (m *Manifest) Dir() string {
	return m.dir
}
