// internal/config/config.go
package config

import (
	"encoding/json"
	"fmt"
	"os"
)

// Config describes one generation setup: where the schema sources live,
// where generated code should land, and how to reach the compiler.
// SourceDirs and OutputDirs are parallel lists; entry i of one corresponds
// to entry i of the other.
type Config struct {
	CompilerPath    string `json:"compiler_path"`
	RequiredVersion string `json:"required_version"`

	SourceDirs  []string `json:"source_dirs"`
	OutputDirs  []string `json:"output_dirs"`
	IncludeDirs []string `json:"include_dirs,omitempty"`

	// CacheDir holds the manifest database and per-pair staging
	// directories the compiler writes into.
	CacheDir string `json:"cache_dir"`

	// ReplaceFrom/ReplaceTo define the literal substitution applied to
	// every line of transformable generated files. Empty ReplaceFrom
	// means files are re-encoded unchanged.
	ReplaceFrom string `json:"replace_from,omitempty"`
	ReplaceTo   string `json:"replace_to,omitempty"`

	// CopySuffixes lists file suffixes that bypass the line transform
	// and are copied byte for byte.
	CopySuffixes []string `json:"copy_suffixes,omitempty"`

	LogLevel string `json:"log_level"` // debug, info, warn, error
}

func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	var config Config
	if err := json.NewDecoder(file).Decode(&config); err != nil {
		return nil, err
	}
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyDefaults() {
	if c.CacheDir == "" {
		c.CacheDir = ".protogen"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks invariants that must hold before any filesystem or
// process work starts. Pairing of SourceDirs against OutputDirs is
// deliberately left to compiler.Pairs so the count check happens in one
// place for both config-driven and programmatic callers.
func (c *Config) Validate() error {
	if c.CompilerPath == "" {
		return fmt.Errorf("compiler_path is required")
	}
	if c.RequiredVersion == "" {
		return fmt.Errorf("required_version is required")
	}
	if len(c.SourceDirs) == 0 {
		return fmt.Errorf("at least one source_dir is required")
	}
	return nil
}
