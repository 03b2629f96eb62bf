// Package config provides configuration management for sobundle.
// It supports multi-layer configuration with precedence:
//  1. Built-in defaults (lowest priority)
//  2. Global user config (~/.config/sobundle/config.toml)
//  3. Project config (.sobundle/config.toml or sobundle.toml)
//  4. Environment variables (SOBUNDLE_*)
//  5. CLI flags (highest priority)
package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultMaxSymlinkDepth matches the kernel's MAXSYMLINKS.
const DefaultMaxSymlinkDepth = 40

// DefaultManifestName is the manifest file written at the output root.
const DefaultManifestName = "MANIFEST"

// Config is the main configuration struct for sobundle.
type Config struct {
	// Tools names the external programs used for analysis.
	Tools ToolsConfig `toml:"tools"`

	// Gather configures the closure walk.
	Gather GatherConfig `toml:"gather"`

	// Manifest configures the manifest writer.
	Manifest ManifestConfig `toml:"manifest"`

	// Probe configures the main-executable probe.
	Probe ProbeConfig `toml:"probe"`
}

// ToolsConfig holds the names or absolute paths of external tools.
type ToolsConfig struct {
	// Ldd lists a binary's resolved shared-library dependencies.
	Ldd string `toml:"ldd"`

	// Objdump reports a binary's NEEDED entries. Empty means the
	// built-in ELF reader is used instead.
	Objdump string `toml:"objdump"`

	// Path is searched for bare tool names instead of $PATH when set.
	Path string `toml:"path"`

	// File identifies file types. Empty means the built-in ELF reader
	// is used instead.
	File string `toml:"file"`
}

// GatherConfig holds closure-walk settings.
type GatherConfig struct {
	// MaxSymlinkDepth bounds symlink resolution; exceeding it is fatal.
	MaxSymlinkDepth int `toml:"max_symlink_depth"`

	// Exclude lists doublestar patterns matched against canonical library
	// paths. Matching libraries are neither copied nor traversed.
	Exclude []string `toml:"exclude"`

	// CleanEnv strips LD_PRELOAD and LD_LIBRARY_PATH before running ldd.
	CleanEnv *bool `toml:"clean_env"`
}

// ManifestConfig holds manifest settings.
type ManifestConfig struct {
	// Name is the manifest file name at the output root.
	Name string `toml:"name"`

	// Hashes adds an xxhash64 column to every entry.
	Hashes *bool `toml:"hashes"`
}

// ProbeConfig holds main-executable probe settings.
type ProbeConfig struct {
	// ExecDirs are probed, in order, for an executable file.
	ExecDirs []string `toml:"exec_dirs"`
}

// NewConfig creates a Config with built-in defaults.
func NewConfig() *Config {
	trueVal := true
	return &Config{
		Tools: ToolsConfig{
			Ldd: "ldd",
		},
		Gather: GatherConfig{
			MaxSymlinkDepth: DefaultMaxSymlinkDepth,
			Exclude:         []string{},
			CleanEnv:        &trueVal,
		},
		Manifest: ManifestConfig{
			Name:   DefaultManifestName,
			Hashes: &trueVal,
		},
		Probe: ProbeConfig{
			ExecDirs: []string{"/usr/bin", "/bin", "/usr/local/bin"},
		},
	}
}

// Merge merges another config into this one.
// Non-zero values from other override values in c; exclude patterns accumulate.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	if other.Tools.Ldd != "" {
		c.Tools.Ldd = other.Tools.Ldd
	}
	if other.Tools.Objdump != "" {
		c.Tools.Objdump = other.Tools.Objdump
	}
	if other.Tools.File != "" {
		c.Tools.File = other.Tools.File
	}
	if other.Tools.Path != "" {
		c.Tools.Path = other.Tools.Path
	}

	if other.Gather.MaxSymlinkDepth > 0 {
		c.Gather.MaxSymlinkDepth = other.Gather.MaxSymlinkDepth
	}
	if len(other.Gather.Exclude) > 0 {
		c.Gather.Exclude = append(c.Gather.Exclude, other.Gather.Exclude...)
	}
	if other.Gather.CleanEnv != nil {
		c.Gather.CleanEnv = other.Gather.CleanEnv
	}

	if other.Manifest.Name != "" {
		c.Manifest.Name = other.Manifest.Name
	}
	if other.Manifest.Hashes != nil {
		c.Manifest.Hashes = other.Manifest.Hashes
	}

	if len(other.Probe.ExecDirs) > 0 {
		c.Probe.ExecDirs = other.Probe.ExecDirs
	}
}

// CleanEnvEnabled reports whether ldd runs with a sanitized environment.
func (c *Config) CleanEnvEnabled() bool {
	return c.Gather.CleanEnv == nil || *c.Gather.CleanEnv
}

// HashesEnabled reports whether manifest entries carry content hashes.
func (c *Config) HashesEnabled() bool {
	return c.Manifest.Hashes == nil || *c.Manifest.Hashes
}

// Validate checks settings that would otherwise fail mid-run.
func (c *Config) Validate() error {
	var errs []error
	if c.Tools.Ldd == "" {
		errs = append(errs, errors.New("tools.ldd must not be empty"))
	}
	if c.Gather.MaxSymlinkDepth <= 0 {
		errs = append(errs, fmt.Errorf("gather.max_symlink_depth must be positive, got %d", c.Gather.MaxSymlinkDepth))
	}
	for _, pattern := range c.Gather.Exclude {
		if !doublestar.ValidatePattern(pattern) {
			errs = append(errs, fmt.Errorf("gather.exclude: invalid pattern %q", pattern))
		}
	}
	switch name := c.Manifest.Name; {
	case name == "":
		errs = append(errs, errors.New("manifest.name must not be empty"))
	case filepath.Base(name) != name || name == "." || name == "..":
		errs = append(errs, fmt.Errorf("manifest.name must be a plain file name, got %q", name))
	}
	return errors.Join(errs...)
}
