package config

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
)

// ConfigFileName is the name of the project-level config file.
const ConfigFileName = "sobundle.toml"

// ConfigDirName is the name of the project-level config directory.
const ConfigDirName = ".sobundle"

// GlobalConfigDir is the name of the global config directory inside user's config.
const GlobalConfigDir = "sobundle"

// Load loads configuration from all layers in order of precedence:
//  1. Built-in defaults
//  2. Global user config (~/.config/sobundle/config.toml)
//  3. Project config (.sobundle/config.toml or sobundle.toml)
//  4. Environment variables (SOBUNDLE_*)
//
// CLI flags are applied separately after Load() returns.
func Load() *Config {
	wd, err := os.Getwd()
	if err != nil {
		cfg := NewConfig()
		cfg.Merge(loadGlobalConfig())
		applyEnvironmentVariables(cfg)
		return cfg
	}
	return LoadFrom(wd)
}

// LoadFrom loads configuration starting from a specific directory.
func LoadFrom(dir string) *Config {
	cfg := NewConfig()
	cfg.Merge(loadGlobalConfig())
	cfg.Merge(loadProjectConfigFrom(dir))
	applyEnvironmentVariables(cfg)
	return cfg
}

// loadGlobalConfig loads ~/.config/sobundle/config.toml.
func loadGlobalConfig() *Config {
	path := GetGlobalConfigPath()
	if path == "" {
		return nil
	}
	return loadConfigFile(path)
}

// loadProjectConfigFrom searches dir and its parents for a project config.
func loadProjectConfigFrom(dir string) *Config {
	current := dir
	for {
		for _, candidate := range GetProjectConfigPaths(current) {
			if cfg := loadConfigFile(candidate); cfg != nil {
				return cfg
			}
		}

		if isProjectRoot(current) {
			break
		}

		parent := filepath.Dir(current)
		if parent == current {
			break
		}
		current = parent
	}

	return nil
}

// isProjectRoot stops the upward search at a VCS root.
func isProjectRoot(dir string) bool {
	for _, marker := range []string{".git", ".hg"} {
		if _, err := os.Stat(filepath.Join(dir, marker)); err == nil {
			return true
		}
	}
	return false
}

// loadConfigFile loads a configuration from a TOML file.
// Missing or malformed files yield nil.
func loadConfigFile(path string) *Config {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil
	}

	return &cfg
}

// applyEnvironmentVariables applies SOBUNDLE_* environment variables to the config.
func applyEnvironmentVariables(cfg *Config) {
	if v := os.Getenv("SOBUNDLE_LDD"); v != "" {
		cfg.Tools.Ldd = v
	}
	if v := os.Getenv("SOBUNDLE_OBJDUMP"); v != "" {
		cfg.Tools.Objdump = v
	}
	if v := os.Getenv("SOBUNDLE_FILE"); v != "" {
		cfg.Tools.File = v
	}
	if v := os.Getenv("SOBUNDLE_TOOLS_PATH"); v != "" {
		cfg.Tools.Path = v
	}

	if v := os.Getenv("SOBUNDLE_MAX_SYMLINK_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Gather.MaxSymlinkDepth = n
		}
	}
	// SOBUNDLE_EXCLUDE: comma-separated doublestar patterns, appended.
	if v := os.Getenv("SOBUNDLE_EXCLUDE"); v != "" {
		cfg.Gather.Exclude = append(cfg.Gather.Exclude, splitAndTrim(v)...)
	}
	applyBoolEnv("SOBUNDLE_CLEAN_ENV", &cfg.Gather.CleanEnv)

	if v := os.Getenv("SOBUNDLE_MANIFEST_NAME"); v != "" {
		cfg.Manifest.Name = v
	}
	applyBoolEnv("SOBUNDLE_MANIFEST_HASHES", &cfg.Manifest.Hashes)

	if v := os.Getenv("SOBUNDLE_EXEC_DIRS"); v != "" {
		cfg.Probe.ExecDirs = splitAndTrim(v)
	}
}

// splitAndTrim splits a comma-separated string and trims whitespace.
func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// applyBoolEnv applies a boolean environment variable to a pointer.
func applyBoolEnv(envVar string, target **bool) {
	v := strings.ToLower(os.Getenv(envVar))
	switch v {
	case "true", "1", "yes":
		t := true
		*target = &t
	case "false", "0", "no":
		f := false
		*target = &f
	}
}

// GetGlobalConfigPath returns the path to the global config file.
func GetGlobalConfigPath() string {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return ""
	}
	return filepath.Join(configDir, GlobalConfigDir, "config.toml")
}

// GetProjectConfigPaths returns potential project config paths for a given directory.
func GetProjectConfigPaths(dir string) []string {
	return []string{
		filepath.Join(dir, ConfigDirName, "config.toml"),
		filepath.Join(dir, ConfigFileName),
	}
}
