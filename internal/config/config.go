// Package config loads the typesmith workspace configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/koksalmehmet/typesmith/internal/jsonc"
	"github.com/koksalmehmet/typesmith/internal/validate"
	"github.com/koksalmehmet/typesmith/schemas"
)

// Resource declares one project resource directory whose files a build
// relocates under the staging dir, optionally below targetPath.
type Resource struct {
	Dir        string   `json:"dir"`
	Includes   []string `json:"includes,omitempty"`
	Excludes   []string `json:"excludes,omitempty"`
	TargetPath string   `json:"targetPath,omitempty"`
}

// Unit is one generation unit: a root descriptor and where its generated
// sources go.
type Unit struct {
	Name       string `json:"name"`
	Descriptor string `json:"descriptor"`
	OutputDir  string `json:"outputDir"`
}

// Generator is the external command that produces sources from a descriptor.
// Command entries may use the {descriptor}, {outputDir} and {searchPath}
// placeholders.
type Generator struct {
	Command []string          `json:"command"`
	Env     map[string]string `json:"env,omitempty"`
}

type Config struct {
	SchemaVersion string `json:"schemaVersion"`
	Kind          string `json:"kind"`
	Project       struct {
		Name        string `json:"name"`
		Description string `json:"description,omitempty"`
	} `json:"project,omitempty"`
	StagingDir string     `json:"stagingDir,omitempty"`
	SearchPath []string   `json:"searchPath,omitempty"`
	Resources  []Resource `json:"resources,omitempty"`
	Units      []Unit     `json:"units"`
	Generator  *Generator `json:"generator,omitempty"`
	Excludes   []string   `json:"excludes,omitempty"`
}

// EnsureLayout creates the .typesmith workspace directories.
func EnsureLayout(root string) (string, error) {
	smithDir := filepath.Join(root, ".typesmith")
	dirs := []string{
		smithDir,
		filepath.Join(smithDir, "index"),
		filepath.Join(smithDir, "outputs"),
		filepath.Join(smithDir, "schemas"),
	}
	for _, d := range dirs {
		if err := os.MkdirAll(d, 0o755); err != nil {
			return "", fmt.Errorf("create %s: %w", d, err)
		}
	}
	return smithDir, nil
}

// OutputsPath returns the location of a named artifact under
// .typesmith/outputs.
func OutputsPath(root, name string) string {
	return filepath.Join(root, ".typesmith", "outputs", name)
}

// Load reads and validates .typesmith/config.jsonc.
func Load(root string) (*Config, error) {
	path := filepath.Join(root, ".typesmith", "config.jsonc")
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("config missing; run 'typesmith init' first: %w", err)
	}
	if err := validate.JSONC(path, schemas.Config); err != nil {
		return nil, err
	}
	var cfg Config
	if err := jsonc.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.StagingDir == "" {
		cfg.StagingDir = "."
	}
	if len(cfg.SearchPath) == 0 {
		cfg.SearchPath = []string{cfg.StagingDir}
	}
	seen := make(map[string]struct{}, len(cfg.Units))
	for _, u := range cfg.Units {
		if _, ok := seen[u.Name]; ok {
			return nil, fmt.Errorf("duplicate unit name %q in %s", u.Name, path)
		}
		seen[u.Name] = struct{}{}
	}
	return &cfg, nil
}

// Unit returns the named generation unit.
func (c *Config) Unit(name string) (Unit, bool) {
	for _, u := range c.Units {
		if u.Name == name {
			return u, true
		}
	}
	return Unit{}, false
}

// DescriptorPath resolves the unit's descriptor against the project root.
func (u Unit) DescriptorPath(root string) string {
	if filepath.IsAbs(u.Descriptor) {
		return filepath.Clean(u.Descriptor)
	}
	return filepath.Join(root, u.Descriptor)
}

// ResolvedSearchPath resolves the configured search path entries against
// the project root, preserving order.
func (c *Config) ResolvedSearchPath(root string) []string {
	resolved := make([]string, 0, len(c.SearchPath))
	for _, e := range c.SearchPath {
		if filepath.IsAbs(e) {
			resolved = append(resolved, filepath.Clean(e))
			continue
		}
		resolved = append(resolved, filepath.Join(root, e))
	}
	return resolved
}

// LoadExcludes returns exclude globs from config.jsonc merged with defaults.
// Works without a config file so early commands still skip junk paths.
func LoadExcludes(root string) []string {
	cfg, err := Load(root)
	if err != nil {
		return defaultExcludes()
	}
	return cfg.MergedExcludes()
}

// MergedExcludes returns the config's exclude globs merged with the
// built-in defaults.
func (c *Config) MergedExcludes() []string {
	return mergeGlobs(defaultExcludes(), c.Excludes)
}

func defaultExcludes() []string {
	return []string{
		".git/**",
		".typesmith/**",
		"node_modules/**",
		"vendor/**",
		".idea/**",
		".vscode/**",
		"**/.DS_Store",
	}
}

func mergeGlobs(defaults, user []string) []string {
	seen := make(map[string]struct{})
	var merged []string
	appendIfMissing := func(globs []string) {
		for _, g := range globs {
			norm := normalizeGlob(g)
			if norm == "" {
				continue
			}
			if _, ok := seen[norm]; ok {
				continue
			}
			seen[norm] = struct{}{}
			merged = append(merged, norm)
		}
	}
	appendIfMissing(defaults)
	appendIfMissing(user)
	return merged
}

func normalizeGlob(g string) string {
	trimmed := strings.TrimSpace(g)
	if trimmed == "" {
		return ""
	}
	trimmed = strings.ReplaceAll(trimmed, "\\", "/")
	for strings.Contains(trimmed, "//") {
		trimmed = strings.ReplaceAll(trimmed, "//", "/")
	}
	return filepath.ToSlash(trimmed)
}

const configTemplate = `{
  // typesmith configuration. Paths are relative to the project root.
  "schemaVersion": "1.0.0",
  "kind": "typesmith/config",
  "project": {
    "name": "{{projectName}}"
  },
  // Where the build stages resources; target paths are keyed under it.
  // "." means descriptors are consumed in place.
  "stagingDir": ".",
  // Roots probed when resolving name imports. Entries may be directories
  // or .zip/.jar archives.
  "searchPath": ["."],
  "resources": [
    {
      "dir": "types",
      "includes": ["**/*.xml"],
      // Mirror the directory name so in-place descriptors map to themselves.
      "targetPath": "types"
    }
  ],
  "units": [
    {
      "name": "core",
      "descriptor": "types/CoreTypes.xml",
      "outputDir": "gen/types"
    }
  ],
  "generator": {
    "command": ["jcasgen", "{descriptor}", "{outputDir}"]
  },
  "excludes": []
}
`

// WriteConfigTemplate writes the starter config.jsonc unless one exists.
func WriteConfigTemplate(root, projectName string, force bool) error {
	path := filepath.Join(root, ".typesmith", "config.jsonc")
	if _, err := os.Stat(path); err == nil && !force {
		return nil
	}
	contents := strings.ReplaceAll(configTemplate, "{{projectName}}", projectName)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// CopySchemas exports embedded schema files into the workspace at
// .typesmith/schemas for transparency. The embedded schemas remain the
// canonical source for validation.
func CopySchemas(root string) error {
	schemaDir := filepath.Join(root, ".typesmith", "schemas")
	if err := os.MkdirAll(schemaDir, 0o755); err != nil {
		return fmt.Errorf("ensure schema dir: %w", err)
	}
	schemaMap, err := schemas.List()
	if err != nil {
		return err
	}
	for name, data := range schemaMap {
		dest := filepath.Join(schemaDir, fmt.Sprintf("%s.schema.json", name))
		if existing, err := os.ReadFile(dest); err == nil && string(existing) == string(data) {
			continue
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("write %s: %w", dest, err)
		}
	}
	return nil
}
