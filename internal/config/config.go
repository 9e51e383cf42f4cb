// Package config loads msh's ambient operational settings: where to
// send diagnostics, and whether to enable the optional per-stage
// resource governor. It never defines shell variables, aliases, or
// anything that would expand the command language itself — msh's "no
// variables" invariant is about the grammar the tokenizer/parser
// accept, not about how the binary is operated.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// GovernorConfig enables the optional per-stage memory ceiling
// described in SPEC_FULL.md §4.7. It is nil (disabled) by default.
type GovernorConfig struct {
	// MemoryBytes caps each stage's resident set size (its whole
	// process tree, not just the stage's own pid). Zero means no
	// memory ceiling, which also disables the governor entirely.
	MemoryBytes int64 `yaml:"memory_bytes,omitempty"`
}

// Config is msh's ambient operational configuration.
type Config struct {
	// LogFile, if non-empty, receives structured diagnostics (see
	// internal/diag). Empty disables diagnostics entirely.
	LogFile string `yaml:"log_file,omitempty"`
	// LogLevel is a zapcore level name ("debug", "info", "warn",
	// "error"). Ignored if LogFile is empty.
	LogLevel string `yaml:"log_level,omitempty"`
	// Governor configures the optional resource ceiling. Nil disables
	// it.
	Governor *GovernorConfig `yaml:"governor,omitempty"`
}

// Default returns the configuration msh runs with when no config file
// or environment override is present: diagnostics and the resource
// governor both off.
func Default() *Config {
	return &Config{
		LogLevel: "info",
	}
}

// Path returns the configuration file msh will load, honoring
// $MSH_CONFIG first, then ~/.mshrc.yaml.
func Path() (string, error) {
	if p := os.Getenv("MSH_CONFIG"); p != "" {
		return p, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".mshrc.yaml"), nil
}

// Load reads the configuration file returned by Path, if it exists,
// and overlays it on Default(). A missing file is not an error.
func Load() (*Config, error) {
	cfg := Default()

	path, err := Path()
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, err
	}
	defer f.Close()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return cfg, nil
}
