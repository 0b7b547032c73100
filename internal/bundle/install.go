package bundle

import (
	"fmt"
	"os"
	"path/filepath"
)

// Install copies the engine package at src into dst/<name>, where name is
// the bundle name from src's manifest, and validates the result. An existing
// install of the same name is replaced.
func Install(src, dst string) (*Manifest, error) {
	manifest, err := ParseManifest(src)
	if err != nil {
		return nil, err
	}

	if err := os.MkdirAll(dst, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create install directory '%s': %w", dst, err)
	}

	target := filepath.Join(dst, manifest.Name)
	if err := os.RemoveAll(target); err != nil {
		return nil, fmt.Errorf("failed to remove previous install '%s': %w", target, err)
	}
	if err := os.CopyFS(target, os.DirFS(src)); err != nil {
		return nil, fmt.Errorf("failed to copy bundle into '%s': %w", target, err)
	}

	return ParseManifest(target)
}
