// Package manifest implements the lightweight Task Package format
// (package.yaml) that bundles several task files, plus their own
// dependencies and SDK/model requirements, into one distributable unit.
// It is independent of task execution and describes a bundle, not a
// running agent.
package manifest

import (
	"fmt"
	"os"

	"github.com/goccy/go-yaml"
)

// PackageAPIVersion identifies the schema version of a package document.
const PackageAPIVersion = "package/v1"

// PackageKind is the only supported kind value for a package document.
const PackageKind = "TaskPackage"

// Package is a distributable bundle of task files.
type Package struct {
	APIVersion   string               `yaml:"apiVersion"`
	Kind         string               `yaml:"kind"`
	Metadata     PackageMetadata      `yaml:"metadata"`
	Tasks        []TaskFileRef        `yaml:"tasks"`
	Dependencies []PackageDependency  `yaml:"dependencies,omitempty"`
	Requires     *PackageRequirements `yaml:"requires,omitempty"`
}

// PackageMetadata carries identity information for a package.
type PackageMetadata struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Description string   `yaml:"description,omitempty"`
	Author      string   `yaml:"author,omitempty"`
	Homepage    string   `yaml:"homepage,omitempty"`
	License     string   `yaml:"license,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// TaskFileRef names one task file bundled in the package, and the
// name/version it declares — kept distinct from schema.TaskReference
// since this one additionally carries the file's relative path within
// the package.
type TaskFileRef struct {
	Path    string `yaml:"path"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

// PackageDependency is a dependency on another package.
type PackageDependency struct {
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	Repository string `yaml:"repository,omitempty"`
}

// PackageRequirements declares environment constraints a package needs
// to be usable.
type PackageRequirements struct {
	SDKVersion string `yaml:"sdk_version,omitempty"`
	MinModel   string `yaml:"min_model,omitempty"`
}

// ErrInvalidKind is returned when a document's kind field is not
// "TaskPackage".
type ErrInvalidKind struct {
	Found string
}

func (e *ErrInvalidKind) Error() string {
	return fmt.Sprintf("expected kind %q, found %q", PackageKind, e.Found)
}

// FromYAML parses raw bytes into a Package, validating that kind is
// "TaskPackage".
func FromYAML(raw []byte) (Package, error) {
	var pkg Package
	if err := yaml.Unmarshal(raw, &pkg); err != nil {
		return Package{}, fmt.Errorf("parsing package manifest: %w", err)
	}
	if pkg.Kind != PackageKind {
		return Package{}, &ErrInvalidKind{Found: pkg.Kind}
	}
	return pkg, nil
}

// LoadFile reads and parses a package.yaml file from disk.
func LoadFile(path string) (Package, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Package{}, fmt.Errorf("reading package manifest %s: %w", path, err)
	}
	return FromYAML(raw)
}
