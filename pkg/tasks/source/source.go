// Package source implements the Task Source abstraction: a named,
// prioritized producer of predefined-task descriptors, with Local
// (filesystem) and Git (mirrored remote) implementations.
package source

import (
	"context"
	"time"

	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

// Type identifies the kind of a task source.
type Type string

const (
	TypeLocal    Type = "local"
	TypeGit      Type = "git"
	TypeRegistry Type = "registry"
)

func (t Type) String() string { return string(t) }

// Metadata is the lightweight descriptor Discovery works with before a
// task is fully loaded.
type Metadata struct {
	Name       string
	Version    string
	Description string
	Author     string
	Tags       []string
	SourceName string
	SourceType Type
}

// MetadataFrom builds a Metadata from a task's own metadata plus the
// source it came from.
func MetadataFrom(meta schema.PredefinedTaskMeta, sourceName string, sourceType Type) Metadata {
	return Metadata{
		Name:        meta.Name,
		Version:     meta.Version,
		Description: meta.Description,
		Author:      meta.Author,
		Tags:        meta.Tags,
		SourceName:  sourceName,
		SourceType:  sourceType,
	}
}

// UpdateResult reports the outcome of refreshing a source.
type UpdateResult struct {
	Updated      bool
	Message      string
	NewTasks     int
	UpdatedTasks int
}

// HealthStatus reports whether a source is currently available.
type HealthStatus struct {
	Available bool
	Message   string
	LastCheck time.Time
}

// Info summarizes a configured source for listing purposes.
type Info struct {
	Name    string
	Type    Type
	Priority uint8
	Trusted bool
	Enabled bool
}

// Source is the abstract capability Discovery consumes: a way to list,
// load, refresh, and health-check predefined tasks from one origin.
// Implementations must be safe for sequential use by a single Discovery
// instance; this package makes no concurrency guarantee beyond that.
type Source interface {
	// Name is this source's unique identifier.
	Name() string
	// SourceType identifies the concrete kind of source.
	SourceType() Type
	// Priority governs resolution order: higher is searched first.
	Priority() uint8
	// IsTrusted reports whether content from this source may be used
	// without additional sandboxing by the caller.
	IsTrusted() bool
	// DiscoverTasks lists every task available from this source.
	DiscoverTasks(ctx context.Context) ([]Metadata, error)
	// LoadTask loads one task by name and optional version. If version
	// is empty, any task matching name may be returned (no ordering
	// guarantee among same-name files).
	LoadTask(ctx context.Context, name, version string) (schema.PredefinedTask, error)
	// Update refreshes the source (git pull, etc.) per its policy.
	Update(ctx context.Context) (UpdateResult, error)
	// HealthCheck reports availability. Implementations must not
	// perform network I/O here.
	HealthCheck(ctx context.Context) (HealthStatus, error)
}

// ErrTaskNotFound is returned by LoadTask when no task matches.
type ErrTaskNotFound struct {
	Name       string
	Version    string
	SourceName string
}

func (e *ErrTaskNotFound) Error() string {
	if e.Version == "" {
		return "task " + e.Name + " not found in source " + e.SourceName
	}
	return "task " + e.Name + "@" + e.Version + " not found in source " + e.SourceName
}

// ErrSourceUnavailable wraps a failure to reach or read a source.
type ErrSourceUnavailable struct {
	SourceName string
	Cause      error
}

func (e *ErrSourceUnavailable) Error() string {
	return "source " + e.SourceName + " unavailable: " + e.Cause.Error()
}

func (e *ErrSourceUnavailable) Unwrap() error { return e.Cause }
