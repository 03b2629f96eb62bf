package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNewConfig(t *testing.T) {
	cfg := NewConfig()

	if cfg.Tools.Ldd != "ldd" {
		t.Errorf("tools.ldd should default to 'ldd', got %q", cfg.Tools.Ldd)
	}
	if cfg.Gather.MaxSymlinkDepth != DefaultMaxSymlinkDepth {
		t.Errorf("max symlink depth = %d, want %d", cfg.Gather.MaxSymlinkDepth, DefaultMaxSymlinkDepth)
	}
	if !cfg.CleanEnvEnabled() {
		t.Error("clean env should be enabled by default")
	}
	if !cfg.HashesEnabled() {
		t.Error("manifest hashes should be enabled by default")
	}
	if cfg.Manifest.Name != DefaultManifestName {
		t.Errorf("manifest name = %q, want %q", cfg.Manifest.Name, DefaultManifestName)
	}
	want := []string{"/usr/bin", "/bin", "/usr/local/bin"}
	if strings.Join(cfg.Probe.ExecDirs, ",") != strings.Join(want, ",") {
		t.Errorf("exec dirs = %v, want %v", cfg.Probe.ExecDirs, want)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should validate, got %v", err)
	}
}

func TestMerge(t *testing.T) {
	base := NewConfig()
	base.Gather.Exclude = []string{"/opt/**"}

	falseVal := false
	other := &Config{
		Tools:    ToolsConfig{Ldd: "/usr/local/bin/ldd", Objdump: "llvm-objdump"},
		Gather:   GatherConfig{MaxSymlinkDepth: 8, Exclude: []string{"**/libc.so.*"}, CleanEnv: &falseVal},
		Manifest: ManifestConfig{Name: "FILES", Hashes: &falseVal},
	}

	base.Merge(other)

	if base.Tools.Ldd != "/usr/local/bin/ldd" {
		t.Errorf("tools.ldd = %q", base.Tools.Ldd)
	}
	if base.Tools.Objdump != "llvm-objdump" {
		t.Errorf("tools.objdump = %q", base.Tools.Objdump)
	}
	if base.Tools.File != "" {
		t.Errorf("tools.file should stay empty, got %q", base.Tools.File)
	}
	if base.Gather.MaxSymlinkDepth != 8 {
		t.Errorf("max symlink depth = %d, want 8", base.Gather.MaxSymlinkDepth)
	}
	if len(base.Gather.Exclude) != 2 {
		t.Errorf("exclude patterns should accumulate, got %v", base.Gather.Exclude)
	}
	if base.CleanEnvEnabled() {
		t.Error("clean env should be disabled after merge")
	}
	if base.HashesEnabled() {
		t.Error("hashes should be disabled after merge")
	}
	if base.Manifest.Name != "FILES" {
		t.Errorf("manifest name = %q, want FILES", base.Manifest.Name)
	}
	if len(base.Probe.ExecDirs) != 3 {
		t.Errorf("exec dirs should be untouched, got %v", base.Probe.ExecDirs)
	}
}

func TestMergeNil(t *testing.T) {
	cfg := NewConfig()
	cfg.Merge(nil)
	if cfg.Tools.Ldd != "ldd" {
		t.Error("merging nil should not change config")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"empty ldd", func(c *Config) { c.Tools.Ldd = "" }, "tools.ldd"},
		{"zero depth", func(c *Config) { c.Gather.MaxSymlinkDepth = 0 }, "max_symlink_depth"},
		{"bad glob", func(c *Config) { c.Gather.Exclude = []string{"/usr/lib/[abc"} }, "invalid pattern"},
		{"empty manifest", func(c *Config) { c.Manifest.Name = "" }, "manifest.name"},
		{"manifest in subdir", func(c *Config) { c.Manifest.Name = "meta/MANIFEST" }, "plain file name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoadConfigFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")

	configContent := `
[tools]
ldd = "/opt/glibc/bin/ldd"
objdump = "objdump"

[gather]
max_symlink_depth = 16
exclude = ["**/libGL*.so*"]
clean_env = false

[manifest]
name = "FILES.txt"
hashes = false

[probe]
exec_dirs = ["/opt/app/bin"]
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg := loadConfigFile(configPath)
	if cfg == nil {
		t.Fatal("loadConfigFile returned nil")
	}

	if cfg.Tools.Ldd != "/opt/glibc/bin/ldd" {
		t.Errorf("tools.ldd = %q", cfg.Tools.Ldd)
	}
	if cfg.Gather.MaxSymlinkDepth != 16 {
		t.Errorf("max symlink depth = %d, want 16", cfg.Gather.MaxSymlinkDepth)
	}
	if len(cfg.Gather.Exclude) != 1 || cfg.Gather.Exclude[0] != "**/libGL*.so*" {
		t.Errorf("exclude = %v", cfg.Gather.Exclude)
	}
	if cfg.Gather.CleanEnv == nil || *cfg.Gather.CleanEnv {
		t.Error("clean_env should be false")
	}
	if cfg.Manifest.Name != "FILES.txt" {
		t.Errorf("manifest name = %q", cfg.Manifest.Name)
	}
	if len(cfg.Probe.ExecDirs) != 1 {
		t.Errorf("exec dirs = %v", cfg.Probe.ExecDirs)
	}
}

func TestLoadConfigFileMalformed(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.toml")
	if err := os.WriteFile(configPath, []byte("[tools\nldd = "), 0o644); err != nil {
		t.Fatal(err)
	}
	if cfg := loadConfigFile(configPath); cfg != nil {
		t.Error("malformed config should yield nil")
	}
	if cfg := loadConfigFile(filepath.Join(tmpDir, "missing.toml")); cfg != nil {
		t.Error("missing config should yield nil")
	}
}

func TestApplyEnvironmentVariables(t *testing.T) {
	cfg := NewConfig()

	t.Setenv("SOBUNDLE_LDD", "/custom/ldd")
	t.Setenv("SOBUNDLE_TOOLS_PATH", "/opt/cross/bin")
	t.Setenv("SOBUNDLE_MAX_SYMLINK_DEPTH", "12")
	t.Setenv("SOBUNDLE_EXCLUDE", "**/libc.so.*, /opt/**")
	t.Setenv("SOBUNDLE_CLEAN_ENV", "no")
	t.Setenv("SOBUNDLE_MANIFEST_NAME", "LIST")
	t.Setenv("SOBUNDLE_EXEC_DIRS", "/opt/bin,/srv/bin")

	applyEnvironmentVariables(cfg)

	if cfg.Tools.Ldd != "/custom/ldd" {
		t.Errorf("tools.ldd = %q", cfg.Tools.Ldd)
	}
	if cfg.Tools.Path != "/opt/cross/bin" {
		t.Errorf("tools.path = %q", cfg.Tools.Path)
	}
	if cfg.Gather.MaxSymlinkDepth != 12 {
		t.Errorf("max symlink depth = %d, want 12", cfg.Gather.MaxSymlinkDepth)
	}
	if len(cfg.Gather.Exclude) != 2 {
		t.Errorf("exclude = %v", cfg.Gather.Exclude)
	}
	if cfg.CleanEnvEnabled() {
		t.Error("clean env should be disabled via env var")
	}
	if cfg.Manifest.Name != "LIST" {
		t.Errorf("manifest name = %q", cfg.Manifest.Name)
	}
	if len(cfg.Probe.ExecDirs) != 2 || cfg.Probe.ExecDirs[1] != "/srv/bin" {
		t.Errorf("exec dirs = %v", cfg.Probe.ExecDirs)
	}
}

func TestApplyEnvironmentVariablesIgnoresBadDepth(t *testing.T) {
	cfg := NewConfig()
	t.Setenv("SOBUNDLE_MAX_SYMLINK_DEPTH", "-3")
	applyEnvironmentVariables(cfg)
	if cfg.Gather.MaxSymlinkDepth != DefaultMaxSymlinkDepth {
		t.Errorf("negative depth should be ignored, got %d", cfg.Gather.MaxSymlinkDepth)
	}
}

func TestSplitAndTrim(t *testing.T) {
	tests := []struct {
		input    string
		expected []string
	}{
		{"a,b,c", []string{"a", "b", "c"}},
		{" a , b , c ", []string{"a", "b", "c"}},
		{"a", []string{"a"}},
		{"", []string{}},
		{" , , ", []string{}},
	}

	for _, tt := range tests {
		result := splitAndTrim(tt.input)
		if strings.Join(result, "|") != strings.Join(tt.expected, "|") {
			t.Errorf("splitAndTrim(%q) = %v, want %v", tt.input, result, tt.expected)
		}
	}
}

func TestProjectConfigSearch(t *testing.T) {
	tmpDir := t.TempDir()
	projectDir := filepath.Join(tmpDir, "project", "subdir")
	if err := os.MkdirAll(projectDir, 0o755); err != nil {
		t.Fatalf("failed to create project dir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, "project", ".git"), 0o755); err != nil {
		t.Fatalf("failed to create .git dir: %v", err)
	}

	configPath := filepath.Join(tmpDir, "project", ConfigFileName)
	if err := os.WriteFile(configPath, []byte("[manifest]\nname = \"FROM_PROJECT\"\n"), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}

	cfg := loadProjectConfigFrom(projectDir)
	if cfg == nil {
		t.Fatal("loadProjectConfigFrom returned nil")
	}
	if cfg.Manifest.Name != "FROM_PROJECT" {
		t.Errorf("manifest name = %q, want FROM_PROJECT", cfg.Manifest.Name)
	}
}

func TestProjectConfigSearchStopsAtRoot(t *testing.T) {
	tmpDir := t.TempDir()
	outer := filepath.Join(tmpDir, "outer")
	inner := filepath.Join(outer, "repo", "sub")
	if err := os.MkdirAll(inner, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(outer, "repo", ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	// Above the repository root: must not be picked up.
	if err := os.WriteFile(filepath.Join(outer, ConfigFileName), []byte("[manifest]\nname = \"X\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	if cfg := loadProjectConfigFrom(inner); cfg != nil {
		t.Errorf("search should stop at .git root, got %+v", cfg.Manifest)
	}
}

func TestLoadFromLayers(t *testing.T) {
	tmpDir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(tmpDir, "xdg"))
	t.Setenv("HOME", filepath.Join(tmpDir, "home"))

	project := filepath.Join(tmpDir, "project")
	if err := os.MkdirAll(filepath.Join(project, ConfigDirName), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(project, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	content := "[tools]\nldd = \"project-ldd\"\n[manifest]\nname = \"P\"\n"
	if err := os.WriteFile(filepath.Join(project, ConfigDirName, "config.toml"), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("SOBUNDLE_MANIFEST_NAME", "ENV")

	cfg := LoadFrom(project)
	if cfg.Tools.Ldd != "project-ldd" {
		t.Errorf("project layer not applied: tools.ldd = %q", cfg.Tools.Ldd)
	}
	if cfg.Manifest.Name != "ENV" {
		t.Errorf("env layer should win: manifest name = %q", cfg.Manifest.Name)
	}
}

func TestProjectRootDetection(t *testing.T) {
	tmpDir := t.TempDir()
	if isProjectRoot(tmpDir) {
		t.Error("empty directory should not be a project root")
	}
	if err := os.MkdirAll(filepath.Join(tmpDir, ".git"), 0o755); err != nil {
		t.Fatal(err)
	}
	if !isProjectRoot(tmpDir) {
		t.Error("directory with .git should be project root")
	}
}
