package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/woxQAQ/wasm-analyzer/internal/wasm"
)

// EnvPrefix prefixes environment overrides, e.g. WASM_ANALYZER_ADDR or
// WASM_ANALYZER_WASM_MEMORY_PAGES.
const EnvPrefix = "WASM_ANALYZER"

type ServerConfig struct {
	Addr           string          `mapstructure:"addr"`
	EnginePaths    []string        `mapstructure:"engine_paths"`
	DefaultEngine  string          `mapstructure:"default_engine"`
	StaticDir      string          `mapstructure:"static_dir"`
	LogLevel       string          `mapstructure:"log_level"`
	MetricsEnabled bool            `mapstructure:"metrics_enabled"`
	Isolation      IsolationConfig `mapstructure:"isolation"`
	CORS           CORSConfig      `mapstructure:"cors"`
	Wasm           WasmConfig      `mapstructure:"wasm"`
	Worker         WorkerConfig    `mapstructure:"worker"`
	Bridge         BridgeConfig    `mapstructure:"bridge"`
}

// IsolationConfig controls the cross-origin isolation headers that browsers
// require before they hand out SharedArrayBuffer to threaded engines.
type IsolationConfig struct {
	Enabled bool `mapstructure:"enabled"`
	// Value of Cross-Origin-Resource-Policy on matching resources.
	ResourcePolicy string `mapstructure:"resource_policy"`
	// Path suffixes that receive the resource policy header.
	ResourceSuffixes []string `mapstructure:"resource_suffixes"`
}

type CORSConfig struct {
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// WasmConfig holds Wasm runtime configuration.
type WasmConfig struct {
	// Memory limit per module (in pages, 64KB each).
	MemoryPages uint32 `mapstructure:"memory_pages"`
	// Enable debug logging.
	Debug bool `mapstructure:"debug"`
	// Compilation cache directory.
	CacheDir string `mapstructure:"cache_dir"`
	// Maximum concurrent instances.
	MaxInstances int `mapstructure:"max_instances"`
	// Module execution timeout (seconds). Zero disables it.
	ExecutionTimeout int `mapstructure:"execution_timeout"`
	// Enable the threads proposal.
	Threads bool `mapstructure:"threads"`
}

// WorkerConfig holds engine worker settings.
type WorkerConfig struct {
	// Engine thread pool size. Zero uses the bundle's hint, then the
	// host's concurrency.
	PoolThreads int `mapstructure:"pool_threads"`
}

// BridgeConfig holds bridge client settings.
type BridgeConfig struct {
	ReadyTimeout time.Duration `mapstructure:"ready_timeout"`
}

// RuntimeConfig converts the Wasm section into a runtime configuration.
func (c WasmConfig) RuntimeConfig() *wasm.RuntimeConfig {
	return &wasm.RuntimeConfig{
		MemoryPages:      c.MemoryPages,
		DebugEnabled:     c.Debug,
		CacheDir:         c.CacheDir,
		MaxInstances:     c.MaxInstances,
		ExecutionTimeout: time.Duration(c.ExecutionTimeout) * time.Second,
		Threads:          c.Threads,
	}
}

func LoadServerConfig(configPath string) (*ServerConfig, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("addr", ":8080")
	v.SetDefault("engine_paths", []string{"./engines"})
	v.SetDefault("default_engine", "")
	v.SetDefault("static_dir", "")
	v.SetDefault("log_level", "info")
	v.SetDefault("metrics_enabled", true)

	v.SetDefault("isolation.enabled", true)
	v.SetDefault("isolation.resource_policy", "same-origin")
	v.SetDefault("isolation.resource_suffixes", []string{".js", ".wasm"})
	v.SetDefault("cors.allowed_origins", []string{})

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 16384) // 1GiB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "./build/wasm-cache")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.execution_timeout", 30)
	v.SetDefault("wasm.threads", true)

	v.SetDefault("worker.pool_threads", 0)
	v.SetDefault("bridge.ready_timeout", 30*time.Second)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg ServerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the server cannot run with.
func (c *ServerConfig) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr must not be empty")
	}
	if c.Wasm.ExecutionTimeout < 0 {
		return fmt.Errorf("wasm.execution_timeout must not be negative, got %d", c.Wasm.ExecutionTimeout)
	}
	if c.Worker.PoolThreads < 0 {
		return fmt.Errorf("worker.pool_threads must not be negative, got %d", c.Worker.PoolThreads)
	}
	if c.Bridge.ReadyTimeout < 0 {
		return fmt.Errorf("bridge.ready_timeout must not be negative, got %v", c.Bridge.ReadyTimeout)
	}
	return nil
}
