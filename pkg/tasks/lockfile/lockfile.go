// Package lockfile generates, persists, and validates the
// content-addressed lockfile that pins a resolved dependency set to
// exact versions and checksums.
package lockfile

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/gofrs/flock"

	"github.com/taskmesh/resolver/pkg/logger"
	"github.com/taskmesh/resolver/pkg/tasks/checksum"
	"github.com/taskmesh/resolver/pkg/tasks/depresolve"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

var log = logger.New("tasks:lockfile")

// FormatVersion is the major.minor of the lockfile document format this
// package writes. Load rejects a file whose major component differs.
const FormatVersion = "1.0"

// SourceType discriminates a LockedTask's origin for round-tripping.
type SourceType string

const (
	SourceTypeLocal    SourceType = "local"
	SourceTypeGit      SourceType = "git"
	SourceTypeRegistry SourceType = "registry"
)

// TaskSourceRecord is the tagged union recorded for a locked task's
// provenance: exactly one of the type-specific field groups is
// meaningful, selected by Type. Local carries Path; Git carries URL, Ref
// and an optional Subpath; Registry carries URL and Package.
type TaskSourceRecord struct {
	Type SourceType `yaml:"type"`
	Name string     `yaml:"name"`

	// Local fields.
	Path string `yaml:"path,omitempty"`

	// Git fields.
	URL     string `yaml:"url,omitempty"`
	Ref     string `yaml:"ref,omitempty"`
	Subpath string `yaml:"subpath,omitempty"`

	// Registry fields. URL is shared with the Git variant above.
	Package string `yaml:"package,omitempty"`
}

// LockedTask is one pinned entry in the lockfile.
type LockedTask struct {
	Version      string            `yaml:"version"`
	Checksum     string            `yaml:"checksum"`
	Source       TaskSourceRecord  `yaml:"source"`
	ResolvedAt   time.Time         `yaml:"resolved_at"`
	Dependencies map[string]string `yaml:"dependencies,omitempty"`
}

// LockFile is the full on-disk lockfile document.
type LockFile struct {
	Version     string                `yaml:"version"`
	GeneratedAt time.Time             `yaml:"generated_at"`
	GeneratedBy string                `yaml:"generated_by"`
	Tasks       map[string]LockedTask `yaml:"tasks"`
}

// SourceResolver tells Generate which source produced a given task, so
// the lockfile can record full provenance (path/url/ref, not just a type
// and name) without depresolve itself knowing about the source package.
type SourceResolver interface {
	ResolveSource(taskName string) TaskSourceRecord
}

// ErrIncompatibleVersion is returned by Load when a file's major
// version does not match FormatVersion's major component.
type ErrIncompatibleVersion struct {
	Found    string
	Expected string
}

func (e *ErrIncompatibleVersion) Error() string {
	return fmt.Sprintf("lockfile format %q is incompatible with supported major version %q", e.Found, e.Expected)
}

// ErrChecksumMismatch is returned by VerifyTask/VerifyAll when a task's
// current content checksum no longer matches the pinned one.
type ErrChecksumMismatch struct {
	Task     string
	Expected string
	Actual   string
}

func (e *ErrChecksumMismatch) Error() string {
	return fmt.Sprintf("checksum mismatch for %q: locked %s, computed %s", e.Task, e.Expected, e.Actual)
}

// Generate builds a LockFile from a resolved dependency set.
func Generate(resolved []depresolve.ResolvedTask, resolver SourceResolver) (LockFile, error) {
	lf := LockFile{
		Version:     FormatVersion,
		GeneratedAt: time.Now(),
		GeneratedBy: "taskctl",
		Tasks:       make(map[string]LockedTask, len(resolved)),
	}

	for _, rt := range resolved {
		sum, err := checksum.Of(rt.Task)
		if err != nil {
			return LockFile{}, fmt.Errorf("checksumming %s: %w", rt.Task.Metadata.Name, err)
		}

		deps := make(map[string]string, len(rt.Dependencies))
		for _, depName := range rt.Dependencies {
			for _, other := range resolved {
				if other.Task.Metadata.Name == depName {
					deps[depName] = other.Task.Metadata.Version
					break
				}
			}
		}

		sourceRecord := TaskSourceRecord{Type: SourceTypeLocal}
		if resolver != nil {
			sourceRecord = resolver.ResolveSource(rt.Task.Metadata.Name)
		}

		lf.Tasks[rt.Task.Metadata.Name] = LockedTask{
			Version:      rt.Task.Metadata.Version,
			Checksum:     sum,
			Source:       sourceRecord,
			ResolvedAt:   lf.GeneratedAt,
			Dependencies: deps,
		}
	}

	return lf, nil
}

// Save writes the lockfile to path, holding an advisory file lock for
// the duration of the write so concurrent taskctl invocations cannot
// interleave writes to the same lockfile.
func Save(ctx context.Context, lf LockFile, path string) error {
	lock := flock.New(path + ".lock")
	locked, err := lock.TryLockContext(ctx, 50*time.Millisecond)
	if err != nil {
		return fmt.Errorf("acquiring lockfile write lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("lockfile %s is locked by another process", path)
	}
	defer lock.Unlock()

	out, err := yaml.Marshal(lf)
	if err != nil {
		return fmt.Errorf("marshaling lockfile: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating lockfile directory: %w", err)
	}

	if err := os.WriteFile(path, out, 0o644); err != nil {
		return fmt.Errorf("writing lockfile %s: %w", path, err)
	}

	log.Printf("wrote lockfile %s with %d tasks", path, len(lf.Tasks))
	return nil
}

// Load reads and parses a lockfile from path, rejecting a file whose
// major format version differs from FormatVersion's.
func Load(path string) (LockFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return LockFile{}, fmt.Errorf("reading lockfile %s: %w", path, err)
	}

	var lf LockFile
	if err := yaml.Unmarshal(raw, &lf); err != nil {
		return LockFile{}, fmt.Errorf("parsing lockfile %s: %w", path, err)
	}

	if majorOf(lf.Version) != majorOf(FormatVersion) {
		return LockFile{}, &ErrIncompatibleVersion{Found: lf.Version, Expected: FormatVersion}
	}

	return lf, nil
}

func majorOf(v string) string {
	for i, c := range v {
		if c == '.' {
			return v[:i]
		}
	}
	return v
}

// VerifyTask recomputes task's checksum and compares it against the
// lockfile's pinned value for name.
func (lf LockFile) VerifyTask(name string, task schema.PredefinedTask) error {
	locked, ok := lf.Tasks[name]
	if !ok {
		return fmt.Errorf("no locked entry for %q", name)
	}
	actual, err := checksum.Of(task)
	if err != nil {
		return fmt.Errorf("checksumming %q: %w", name, err)
	}
	if actual != locked.Checksum {
		return &ErrChecksumMismatch{Task: name, Expected: locked.Checksum, Actual: actual}
	}
	return nil
}

// VerifyAll verifies every task in tasks against the lockfile, failing
// fast on the first mismatch or missing entry.
func (lf LockFile) VerifyAll(tasks map[string]schema.PredefinedTask) error {
	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := lf.VerifyTask(name, tasks[name]); err != nil {
			return err
		}
	}
	return nil
}

// ValidationResult is the batch report produced by Validate: every
// divergence between a lockfile and a freshly resolved set, rather than
// the first one encountered.
type ValidationResult struct {
	MissingTasks          []string             // in resolved, not in lockfile
	ExtraTasks            []string             // in lockfile, not in resolved
	VersionMismatches     map[string][2]string // name -> [locked, resolved]
	DependencyMismatches  map[string]string    // name -> description of the mismatch
	ChecksumFailures      map[string]error     // name -> verification error
}

// IsValid reports whether no divergence of any kind was found.
func (r ValidationResult) IsValid() bool {
	return len(r.MissingTasks) == 0 && len(r.ExtraTasks) == 0 &&
		len(r.VersionMismatches) == 0 && len(r.DependencyMismatches) == 0 &&
		len(r.ChecksumFailures) == 0
}

// Validate compares a lockfile against a freshly resolved dependency
// set and reports every divergence found.
func Validate(lf LockFile, resolved []depresolve.ResolvedTask) ValidationResult {
	result := ValidationResult{
		VersionMismatches:    make(map[string][2]string),
		DependencyMismatches: make(map[string]string),
		ChecksumFailures:     make(map[string]error),
	}

	resolvedByName := make(map[string]depresolve.ResolvedTask, len(resolved))
	for _, rt := range resolved {
		resolvedByName[rt.Task.Metadata.Name] = rt
	}

	for name, rt := range resolvedByName {
		locked, ok := lf.Tasks[name]
		if !ok {
			result.MissingTasks = append(result.MissingTasks, name)
			continue
		}

		if locked.Version != rt.Task.Metadata.Version {
			result.VersionMismatches[name] = [2]string{locked.Version, rt.Task.Metadata.Version}
		}

		if err := lf.VerifyTask(name, rt.Task); err != nil {
			result.ChecksumFailures[name] = err
		}

		for _, depName := range rt.Dependencies {
			if _, ok := locked.Dependencies[depName]; !ok {
				result.DependencyMismatches[name] = fmt.Sprintf("resolved dependency %q missing from lockfile entry", depName)
			}
		}
	}

	for name := range lf.Tasks {
		if _, ok := resolvedByName[name]; !ok {
			result.ExtraTasks = append(result.ExtraTasks, name)
		}
	}

	sort.Strings(result.MissingTasks)
	sort.Strings(result.ExtraTasks)

	return result
}

// IsStale is a fast predicate wrapping Validate: true if any divergence
// of any kind exists between lf and resolved.
func IsStale(lf LockFile, resolved []depresolve.ResolvedTask) bool {
	return !Validate(lf, resolved).IsValid()
}
