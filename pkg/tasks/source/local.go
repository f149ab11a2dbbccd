package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/taskmesh/resolver/pkg/logger"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

var localLog = logger.New("tasks:source:local")

// Local is a task source backed by a directory tree on disk, scanned
// recursively for files named "*.task.yaml" or "*.task.yml". It never performs network
// I/O and treats every task it finds as trusted.
type Local struct {
	name     string
	path     string
	priority uint8
}

// NewLocal creates a Local source rooted at path. path may use a leading
// "~" for the user's home directory.
func NewLocal(name, path string, priority uint8) (*Local, error) {
	expanded, err := expandPath(path)
	if err != nil {
		return nil, fmt.Errorf("expanding local source path: %w", err)
	}
	return &Local{name: name, path: expanded, priority: priority}, nil
}

func (l *Local) Name() string     { return l.name }
func (l *Local) SourceType() Type { return TypeLocal }
func (l *Local) Priority() uint8  { return l.priority }
func (l *Local) IsTrusted() bool  { return true }

// DiscoverTasks walks the source directory and parses every task file
// found. A file that fails to parse is skipped with a warning rather
// than aborting the whole scan.
func (l *Local) DiscoverTasks(ctx context.Context) ([]Metadata, error) {
	files, err := l.scanTaskFiles()
	if err != nil {
		return nil, err
	}

	var out []Metadata
	for _, f := range files {
		task, err := loadTaskFile(f)
		if err != nil {
			localLog.Printf("skipping %s: %v", f, err)
			continue
		}
		out = append(out, MetadataFrom(task.Metadata, l.name, TypeLocal))
	}
	return out, nil
}

// LoadTask returns the first task file matching name (and version, if
// given). When multiple files define the same name and version, which
// one is returned is unspecified — callers needing a guarantee should
// keep task files uniquely named.
func (l *Local) LoadTask(ctx context.Context, name, version string) (schema.PredefinedTask, error) {
	files, err := l.scanTaskFiles()
	if err != nil {
		return schema.PredefinedTask{}, err
	}

	for _, f := range files {
		task, err := loadTaskFile(f)
		if err != nil {
			continue
		}
		if task.Metadata.Name != name {
			continue
		}
		if version != "" && task.Metadata.Version != version {
			continue
		}
		return task, nil
	}
	return schema.PredefinedTask{}, &ErrTaskNotFound{Name: name, Version: version, SourceName: l.name}
}

// Update is a no-op: a local directory has nothing to refresh.
func (l *Local) Update(ctx context.Context) (UpdateResult, error) {
	return UpdateResult{Updated: false, Message: "local source requires no update"}, nil
}

// HealthCheck reports whether the root directory exists and is a
// directory. It performs only a single stat call, no network I/O.
func (l *Local) HealthCheck(ctx context.Context) (HealthStatus, error) {
	info, err := os.Stat(l.path)
	if err != nil {
		return HealthStatus{Available: false, Message: err.Error(), LastCheck: time.Now()}, nil
	}
	if !info.IsDir() {
		return HealthStatus{Available: false, Message: l.path + " is not a directory", LastCheck: time.Now()}, nil
	}
	return HealthStatus{Available: true, Message: "ok", LastCheck: time.Now()}, nil
}

func (l *Local) scanTaskFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(l.path, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if d.Name() == ".git" {
				return filepath.SkipDir
			}
			return nil
		}
		if isTaskFile(path) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", l.path, err)
	}
	return files, nil
}

func isTaskFile(path string) bool {
	return strings.HasSuffix(path, ".task.yaml") || strings.HasSuffix(path, ".task.yml")
}

func loadTaskFile(path string) (schema.PredefinedTask, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return schema.PredefinedTask{}, err
	}
	var task schema.PredefinedTask
	if err := yaml.Unmarshal(raw, &task); err != nil {
		return schema.PredefinedTask{}, fmt.Errorf("parsing %s: %w", path, err)
	}
	return task, nil
}
