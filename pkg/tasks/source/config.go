package source

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/goccy/go-yaml"
)

// UpdatePolicy governs when a Git source refreshes its mirror.
type UpdatePolicy string

const (
	UpdatePolicyDaily  UpdatePolicy = "daily"
	UpdatePolicyWeekly UpdatePolicy = "weekly"
	UpdatePolicyManual UpdatePolicy = "manual"
	UpdatePolicyAlways UpdatePolicy = "always"
)

// Config is the tagged-union configuration for one source entry in a
// task-sources.yaml file. Exactly one of Local/Git-shaped fields is
// populated, selected by Type.
type Config struct {
	Type Type `yaml:"type"`

	// Common
	Name     string `yaml:"name"`
	Priority uint8  `yaml:"priority"`
	Enabled  *bool  `yaml:"enabled,omitempty"`

	// Local-only
	Path string `yaml:"path,omitempty"`

	// Git-only
	URL          string       `yaml:"url,omitempty"`
	Branch       string       `yaml:"branch,omitempty"`
	Tag          string       `yaml:"tag,omitempty"`
	CacheDir     string       `yaml:"cache_dir,omitempty"`
	UpdatePolicy UpdatePolicy `yaml:"update_policy,omitempty"`
	Trusted      *bool        `yaml:"trusted,omitempty"`
}

// IsEnabled reports whether this source is active, defaulting to true
// when the field is unset.
func (c Config) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// IsTrusted reports whether this source's content is trusted,
// defaulting to true for Local and true for Git when unset.
func (c Config) IsTrusted() bool {
	if c.Trusted == nil {
		return true
	}
	return *c.Trusted
}

// Build constructs the concrete Source this config describes.
func (c Config) Build() (Source, error) {
	switch c.Type {
	case TypeLocal:
		return NewLocal(c.Name, c.Path, c.Priority)
	case TypeGit:
		policy := c.UpdatePolicy
		if policy == "" {
			policy = UpdatePolicyDaily
		}
		return NewGit(GitOptions{
			Name:         c.Name,
			URL:          c.URL,
			Branch:       c.Branch,
			Tag:          c.Tag,
			CacheDir:     c.CacheDir,
			Priority:     c.Priority,
			Trusted:      c.IsTrusted(),
			UpdatePolicy: policy,
		})
	default:
		return nil, fmt.Errorf("unsupported source type %q for source %q", c.Type, c.Name)
	}
}

// SourcesConfig is the top-level task-sources.yaml document.
type SourcesConfig struct {
	Sources []Config `yaml:"sources"`
}

// DefaultConfigPath is "~/.claude/task-sources.yaml".
const DefaultConfigPath = "~/.claude/task-sources.yaml"

// LoadSourcesConfig parses a task-sources.yaml document from raw bytes.
func LoadSourcesConfig(raw []byte) (SourcesConfig, error) {
	var cfg SourcesConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return SourcesConfig{}, fmt.Errorf("parsing sources config: %w", err)
	}
	return cfg, nil
}

// LoadSourcesConfigFile reads and parses a task-sources.yaml file from
// disk, expanding a leading "~" in path.
func LoadSourcesConfigFile(path string) (SourcesConfig, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return SourcesConfig{}, err
	}
	raw, err := os.ReadFile(expanded)
	if err != nil {
		return SourcesConfig{}, fmt.Errorf("reading sources config %s: %w", expanded, err)
	}
	return LoadSourcesConfig(raw)
}

// EnabledSources returns the subset of entries with Enabled != false.
func (s SourcesConfig) EnabledSources() []Config {
	var out []Config
	for _, c := range s.Sources {
		if c.IsEnabled() {
			out = append(out, c)
		}
	}
	return out
}

// Build constructs concrete Source implementations for every enabled
// entry, in the order they appear.
func (s SourcesConfig) Build() ([]Source, error) {
	var out []Source
	for _, c := range s.EnabledSources() {
		src, err := c.Build()
		if err != nil {
			return nil, err
		}
		out = append(out, src)
	}
	return out, nil
}

// expandPath expands a leading "~" or "~/" to the current user's home
// directory and resolves environment variable references, mirroring
// the shell-style expansion the reference implementation performs via
// shellexpand before treating a configured path as a filesystem path.
func expandPath(path string) (string, error) {
	expanded := os.ExpandEnv(path)
	if expanded == "~" || strings.HasPrefix(expanded, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolving home directory: %w", err)
		}
		if expanded == "~" {
			return home, nil
		}
		return filepath.Join(home, expanded[2:]), nil
	}
	return expanded, nil
}
