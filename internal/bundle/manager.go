package bundle

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/woxQAQ/wasm-analyzer/internal/engine"
	"github.com/woxQAQ/wasm-analyzer/internal/wasm"
)

// Manager manages engine bundle lifecycle.
type Manager struct {
	runtime   *wasm.Runtime
	hostFuncs *wasm.HostFunctionsImpl
	loader    *Loader
	registry  *Registry
	logger    *zap.Logger

	mu          sync.RWMutex
	loaded      bool
	defaultName string
}

// NewManager creates a new bundle manager.
func NewManager(
	runtime *wasm.Runtime,
	hostFuncs *wasm.HostFunctionsImpl,
	logger *zap.Logger,
) *Manager {
	return &Manager{
		runtime:   runtime,
		hostFuncs: hostFuncs,
		loader:    NewLoader(runtime, logger),
		registry:  NewRegistry(logger),
		logger:    logger.With(zap.String("component", "bundle-manager")),
	}
}

// LoadAll discovers and loads all bundles from paths. Finding none is not an
// error; the server still starts and reports an empty engine list.
func (m *Manager) LoadAll(ctx context.Context, paths []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.loaded {
		return fmt.Errorf("engine bundles already loaded")
	}

	m.logger.Info("Loading engine bundles", zap.Strings("paths", paths))

	bundles, err := m.loader.DiscoverBundles(ctx, paths)
	if err != nil {
		var none *NoBundlesFoundError
		if errors.As(err, &none) {
			m.logger.Warn("No engine bundles found in configured paths", zap.Strings("paths", paths))
			m.loaded = true
			return nil
		}
		return err
	}

	for _, bundle := range bundles {
		if err := m.registry.Register(bundle); err != nil {
			m.logger.Error("Failed to register engine bundle",
				zap.String("name", bundle.Manifest.Name),
				zap.Error(err),
			)
			continue
		}
	}

	m.loaded = true

	m.logger.Info("Engine bundles loaded successfully", zap.Int("count", m.registry.Count()))
	return nil
}

// SetDefault names the bundle Default returns.
func (m *Manager) SetDefault(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.defaultName = name
}

// Get retrieves a bundle by name.
func (m *Manager) Get(name string) (*Bundle, error) {
	bundle, ok := m.registry.Get(name)
	if !ok {
		return nil, &BundleNotFoundError{BundleName: name}
	}
	return bundle, nil
}

// Default returns the configured default bundle, or the first one loaded
// when none is configured.
func (m *Manager) Default() (*Bundle, error) {
	m.mu.RLock()
	name := m.defaultName
	m.mu.RUnlock()

	if name != "" {
		return m.Get(name)
	}
	bundle, ok := m.registry.First()
	if !ok {
		return nil, &BundleNotFoundError{BundleName: "(default)"}
	}
	return bundle, nil
}

// Resolve returns the named bundle, or the default one for an empty name.
func (m *Manager) Resolve(name string) (*Bundle, error) {
	if name == "" {
		return m.Default()
	}
	return m.Get(name)
}

// Binding returns a fresh engine binding for the named bundle. Every worker
// needs its own binding; they share the compiled module.
func (m *Manager) Binding(name string) (*engine.WasmBinding, *Bundle, error) {
	bundle, err := m.Resolve(name)
	if err != nil {
		return nil, nil, err
	}

	binding := engine.NewWasmBinding(m.runtime, m.hostFuncs, bundle.Source(), m.logger,
		engine.WithOperations(bundle.Operations()))
	return binding, bundle, nil
}

// List returns all loaded bundles sorted by name.
func (m *Manager) List() []*Bundle {
	return m.registry.List()
}

// Shutdown closes the runtime, and with it every live engine instance.
func (m *Manager) Shutdown(ctx context.Context) error {
	m.logger.Info("Shutting down bundle manager")

	if err := m.runtime.Close(ctx); err != nil {
		m.logger.Error("Failed to shutdown runtime", zap.Error(err))
		return err
	}

	m.logger.Info("Bundle manager shutdown complete")
	return nil
}

// Registry returns the bundle registry (for testing/inspection).
func (m *Manager) Registry() *Registry {
	return m.registry
}

// IsLoaded returns whether bundles have been loaded.
func (m *Manager) IsLoaded() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loaded
}
