// Package discovery coordinates multiple prioritized task sources into
// one lookup surface: aggregate discovery, first-match-wins resolution,
// search/filter helpers, and bulk update/health-check fan-out.
package discovery

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/taskmesh/resolver/pkg/logger"
	"github.com/taskmesh/resolver/pkg/tasks/cache"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
	"github.com/taskmesh/resolver/pkg/tasks/source"
)

var log = logger.New("tasks:discovery")

// ErrTaskNotFoundInAnySource is returned by Find when no configured
// source, searched in priority order, has a matching task.
type ErrTaskNotFoundInAnySource struct {
	Name    string
	Version string
}

func (e *ErrTaskNotFoundInAnySource) Error() string {
	if e.Version == "" {
		return fmt.Sprintf("task %q not found in any source", e.Name)
	}
	return fmt.Sprintf("task %q@%q not found in any source", e.Name, e.Version)
}

// Discovery aggregates sources in descending priority order and caches
// resolved tasks for DefaultTTL.
type Discovery struct {
	sources []source.Source
	cache   *cache.Cache
}

// New builds a Discovery over an explicit, unordered set of sources; it
// sorts them by descending priority before use.
func New(sources []source.Source) *Discovery {
	sorted := make([]source.Source, len(sources))
	copy(sorted, sources)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Priority() > sorted[j].Priority() })
	return &Discovery{sources: sorted, cache: cache.NewWithDefaultTTL()}
}

// FromSourcesConfig builds concrete sources from a parsed SourcesConfig
// and wraps them in a Discovery.
func FromSourcesConfig(cfg source.SourcesConfig) (*Discovery, error) {
	sources, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return New(sources), nil
}

// WithDefaultSources builds the conventional two-tier local setup: a
// project-local "./.claude/tasks" source at priority 10 and a
// user-global "~/.claude/tasks" source at priority 8, mirroring the
// reference implementation's project-before-user discovery order.
func WithDefaultSources() (*Discovery, error) {
	project, err := source.NewLocal("project-tasks", "./.claude/tasks", 10)
	if err != nil {
		return nil, err
	}
	user, err := source.NewLocal("user-tasks", "~/.claude/tasks", 8)
	if err != nil {
		return nil, err
	}
	return New([]source.Source{project, user}), nil
}

// DiscoverAll queries every source concurrently and aggregates the
// results. A source that fails to list its tasks is logged and skipped
// rather than aborting the whole discovery pass.
func (d *Discovery) DiscoverAll(ctx context.Context) ([]source.Metadata, error) {
	p := pool.NewWithResults[[]source.Metadata]().WithContext(ctx)
	for _, s := range d.sources {
		s := s
		p.Go(func(ctx context.Context) ([]source.Metadata, error) {
			tasks, err := s.DiscoverTasks(ctx)
			if err != nil {
				log.Printf("source %s: discovery failed: %v", s.Name(), err)
				return nil, nil
			}
			return tasks, nil
		})
	}

	results, err := p.Wait()
	if err != nil {
		return nil, err
	}

	var all []source.Metadata
	for _, r := range results {
		all = append(all, r...)
	}
	return all, nil
}

// Find resolves name (and optional version) against the cache first,
// then against sources in descending priority order, returning the
// first match — a source earlier in priority order always overrides a
// later one defining the same name/version.
func (d *Discovery) Find(ctx context.Context, name, version string) (schema.PredefinedTask, error) {
	key := cache.Key(name, version)
	if task, ok := d.cache.Get(key); ok {
		return task, nil
	}

	for _, s := range d.sources {
		task, err := s.LoadTask(ctx, name, version)
		if err != nil {
			continue
		}
		d.cache.Insert(key, task, s.Name())
		return task, nil
	}

	return schema.PredefinedTask{}, &ErrTaskNotFoundInAnySource{Name: name, Version: version}
}

// Search returns every discovered task whose name or description
// contains query, case-insensitively.
func (d *Discovery) Search(ctx context.Context, query string) ([]source.Metadata, error) {
	all, err := d.DiscoverAll(ctx)
	if err != nil {
		return nil, err
	}

	q := strings.ToLower(query)
	var matches []source.Metadata
	for _, m := range all {
		if strings.Contains(strings.ToLower(m.Name), q) || strings.Contains(strings.ToLower(m.Description), q) {
			matches = append(matches, m)
		}
	}
	return matches, nil
}

// ListByTag returns every discovered task carrying the given tag,
// case-insensitively.
func (d *Discovery) ListByTag(ctx context.Context, tag string) ([]source.Metadata, error) {
	all, err := d.DiscoverAll(ctx)
	if err != nil {
		return nil, err
	}

	t := strings.ToLower(tag)
	var matches []source.Metadata
	for _, m := range all {
		for _, candidate := range m.Tags {
			if strings.ToLower(candidate) == t {
				matches = append(matches, m)
				break
			}
		}
	}
	return matches, nil
}

// UpdateAll refreshes every source concurrently, clearing the cache
// afterward so subsequent Find calls observe any change. Per-source
// failures are collected but do not stop other sources from updating.
func (d *Discovery) UpdateAll(ctx context.Context) map[string]error {
	results := make(map[string]error)
	var mu sync.Mutex
	p := pool.New().WithContext(ctx)
	for _, s := range d.sources {
		s := s
		p.Go(func(ctx context.Context) error {
			_, err := s.Update(ctx)
			mu.Lock()
			results[s.Name()] = err
			mu.Unlock()
			if err != nil {
				log.Printf("source %s: update failed: %v", s.Name(), err)
			}
			return nil
		})
	}
	_ = p.Wait()
	d.cache.Clear()
	return results
}

// UpdateSource refreshes a single named source and clears the cache on
// success.
func (d *Discovery) UpdateSource(ctx context.Context, name string) (source.UpdateResult, error) {
	for _, s := range d.sources {
		if s.Name() != name {
			continue
		}
		result, err := s.Update(ctx)
		if err == nil {
			d.cache.Clear()
		}
		return result, err
	}
	return source.UpdateResult{}, fmt.Errorf("no such source: %s", name)
}

// HealthCheckAll reports health for every configured source.
func (d *Discovery) HealthCheckAll(ctx context.Context) map[string]source.HealthStatus {
	out := make(map[string]source.HealthStatus, len(d.sources))
	for _, s := range d.sources {
		status, err := s.HealthCheck(ctx)
		if err != nil {
			status = source.HealthStatus{Available: false, Message: err.Error()}
		}
		out[s.Name()] = status
	}
	return out
}

// CacheStats reports the number of entries currently cached.
func (d *Discovery) CacheStats() int { return d.cache.Len() }

// ClearCache drops every cached entry.
func (d *Discovery) ClearCache() { d.cache.Clear() }

// EvictExpiredCache prunes only expired entries and reports how many
// were removed.
func (d *Discovery) EvictExpiredCache() int { return d.cache.EvictExpired() }
