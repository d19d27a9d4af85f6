// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config provides configuration loading for the Outpost server.
//
// Configuration is loaded from a single file specified by:
//   - OUTPOST_CONFIG environment variable, or
//   - --config flag passed to the command
//
// There are no fallbacks or automatic discovery. This ensures
// deterministic, auditable configuration with no hidden overrides.
//
// The file may be YAML (.yaml/.yml) or JSONC (.json/.jsonc — JSON with
// comments and trailing commas). JSONC documents are stripped to plain
// JSON and parsed through the same YAML decoder, so both formats share
// one schema.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/tidwall/jsonc"
	"gopkg.in/yaml.v3"
)

// EnvVar is the environment variable naming the config file.
const EnvVar = "OUTPOST_CONFIG"

// Config is the Outpost server configuration.
type Config struct {
	// Listen configures where the server accepts connections.
	Listen ListenConfig `yaml:"listen"`

	// Watch configures the filesystem watch manager.
	Watch WatchConfig `yaml:"watch"`

	// Process configures the process manager.
	Process ProcessConfig `yaml:"process"`
}

// ListenConfig configures the server's transport endpoint.
type ListenConfig struct {
	// Network is "tcp" or "unix".
	Network string `yaml:"network"`

	// Address is the host:port (tcp) or socket path (unix) to listen on.
	Address string `yaml:"address"`

	// KeyFile is the path to the connection key file (64 lowercase hex
	// characters, optionally age-sealed). Empty means the transport
	// runs the plaintext codec — acceptable only on unix sockets or
	// loopback where the substrate provides confidentiality.
	KeyFile string `yaml:"key_file,omitempty"`

	// KeyPassphrase unseals an age-encrypted key file. Usually left
	// empty here and supplied via OUTPOST_KEY_PASSPHRASE instead so
	// the config file stays free of secrets.
	KeyPassphrase string `yaml:"key_passphrase,omitempty"`

	// Compression selects frame-body compression: "none" (default),
	// "zstd", or "lz4". Both ends must agree.
	Compression string `yaml:"compression,omitempty"`
}

// WatchConfig configures change-event coalescing.
type WatchConfig struct {
	// DebounceWindow is how long raw filesystem events targeting the
	// same path are coalesced before one change response is emitted.
	DebounceWindow time.Duration `yaml:"debounce_window"`

	// ForcePolling disables the native watcher backend and uses the
	// polling fallback even where a native backend is available.
	ForcePolling bool `yaml:"force_polling,omitempty"`

	// PollInterval is the scan interval for the polling backend.
	PollInterval time.Duration `yaml:"poll_interval,omitempty"`
}

// ProcessConfig configures spawned child processes.
type ProcessConfig struct {
	// ChunkSize is the maximum bytes per process-stdout/stderr
	// response. Capped at 64 KiB.
	ChunkSize int `yaml:"chunk_size,omitempty"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Listen: ListenConfig{
			Network:     "tcp",
			Address:     "127.0.0.1:8080",
			Compression: "none",
		},
		Watch: WatchConfig{
			DebounceWindow: 500 * time.Millisecond,
			PollInterval:   time.Second,
		},
		Process: ProcessConfig{
			ChunkSize: 64 * 1024,
		},
	}
}

// Load reads the configuration from explicitPath, or from the
// OUTPOST_CONFIG environment variable when explicitPath is empty.
// When neither is set, returns Default().
func Load(explicitPath string) (*Config, error) {
	path := explicitPath
	if path == "" {
		path = os.Getenv(EnvVar)
	}
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	switch filepath.Ext(path) {
	case ".json", ".jsonc":
		data = jsonc.ToJSON(data)
	case ".yaml", ".yml":
		// YAML is the native format.
	default:
		return nil, fmt.Errorf("config %s: unsupported extension (want .yaml, .yml, .json, or .jsonc)", path)
	}

	configuration := Default()
	if err := yaml.Unmarshal(data, configuration); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := configuration.Validate(); err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}
	return configuration, nil
}

// Validate checks cross-field constraints that the YAML decoder cannot.
func (c *Config) Validate() error {
	switch c.Listen.Network {
	case "tcp", "unix":
	default:
		return fmt.Errorf("listen.network must be tcp or unix, got %q", c.Listen.Network)
	}
	if c.Listen.Address == "" {
		return fmt.Errorf("listen.address is required")
	}
	switch c.Listen.Compression {
	case "", "none", "zstd", "lz4":
	default:
		return fmt.Errorf("listen.compression must be none, zstd, or lz4, got %q", c.Listen.Compression)
	}
	if c.Watch.DebounceWindow < 0 {
		return fmt.Errorf("watch.debounce_window must not be negative")
	}
	if c.Watch.PollInterval < 0 {
		return fmt.Errorf("watch.poll_interval must not be negative")
	}
	if c.Process.ChunkSize < 0 || c.Process.ChunkSize > 64*1024 {
		return fmt.Errorf("process.chunk_size must be between 0 and 65536, got %d", c.Process.ChunkSize)
	}
	return nil
}
