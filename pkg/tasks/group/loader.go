// Package group loads Task Group bundles (*.taskgroup.yaml), folds
// their shared configuration into member tasks, and resolves
// namespaced "ns:name" references across the groups an import graph has
// brought into scope.
package group

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/taskmesh/resolver/pkg/logger"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

var log = logger.New("tasks:group")

// TaskLoaderFunc resolves a single task reference to its definition,
// independent of how the caller wires task sources/discovery together.
type TaskLoaderFunc func(ctx context.Context, name, version string) (schema.PredefinedTask, error)

// ResolvedGroup is a fully loaded Task Group with every member task
// resolved and its shared configuration folded in.
type ResolvedGroup struct {
	Group      schema.TaskGroup
	Tasks      map[string]schema.PredefinedTask
	SourcePath string
}

// ErrGroupNotFound is returned when no configured search path has a
// matching *.taskgroup.yaml file.
type ErrGroupNotFound struct {
	Name    string
	Version string
}

func (e *ErrGroupNotFound) Error() string {
	return fmt.Sprintf("task group %s@%s not found", e.Name, e.Version)
}

// ErrVersionMismatch is returned when a located group file's own
// metadata.version does not match the version requested.
type ErrVersionMismatch struct {
	Name     string
	Requested string
	Found    string
}

func (e *ErrVersionMismatch) Error() string {
	return fmt.Sprintf("task group %s: requested version %s, file declares %s", e.Name, e.Requested, e.Found)
}

// ErrRequiredTaskMissing is returned when a group names a required task
// the configured task loader cannot resolve.
type ErrRequiredTaskMissing struct {
	Group string
	Task  string
	Cause error
}

func (e *ErrRequiredTaskMissing) Error() string {
	return fmt.Sprintf("task group %s: required task %s could not be loaded: %v", e.Group, e.Task, e.Cause)
}

func (e *ErrRequiredTaskMissing) Unwrap() error { return e.Cause }

// Loader locates and loads Task Group files from a list of search
// paths, later entries taking priority (searched first), mirroring
// project-local-overrides-user-global ordering used elsewhere in this
// module.
type Loader struct {
	searchPaths []string
	taskLoader  TaskLoaderFunc
	cache       map[string]ResolvedGroup
}

// NewLoader builds a Loader. searchPaths are given in ascending
// priority (last wins); Load searches them in reverse order.
func NewLoader(searchPaths []string, taskLoader TaskLoaderFunc) *Loader {
	return &Loader{searchPaths: searchPaths, taskLoader: taskLoader, cache: make(map[string]ResolvedGroup)}
}

// DefaultSearchPaths returns "~/.claude/task-groups" then
// "./.claude/task-groups", in ascending priority (the project-local
// directory is searched first since it is listed last).
func DefaultSearchPaths() []string {
	return []string{"~/.claude/task-groups", "./.claude/task-groups"}
}

// Load locates, parses, and resolves the Task Group named by ref,
// folding SharedConfig into every member task and caching the result by
// "name@version".
func (l *Loader) Load(ctx context.Context, ref schema.TaskGroupReference) (ResolvedGroup, error) {
	cacheKey := ref.Name + "@" + ref.Version
	if cached, ok := l.cache[cacheKey]; ok {
		return cached, nil
	}

	path, err := l.findGroupFile(ref.Name)
	if err != nil {
		return ResolvedGroup{}, err
	}

	raw, err := os.ReadFile(path)
	if err != nil {
		return ResolvedGroup{}, fmt.Errorf("reading task group %s: %w", path, err)
	}

	var tg schema.TaskGroup
	if err := yaml.Unmarshal(raw, &tg); err != nil {
		return ResolvedGroup{}, fmt.Errorf("parsing task group %s: %w", path, err)
	}

	if ref.Version != "" && tg.Metadata.Version != ref.Version {
		return ResolvedGroup{}, &ErrVersionMismatch{Name: ref.Name, Requested: ref.Version, Found: tg.Metadata.Version}
	}

	tasks := make(map[string]schema.PredefinedTask, len(tg.Spec.Tasks))
	for _, member := range tg.Spec.Tasks {
		task, err := l.taskLoader(ctx, member.Name, member.Version)
		if err != nil {
			if member.Required {
				return ResolvedGroup{}, &ErrRequiredTaskMissing{Group: ref.Name, Task: member.Name, Cause: err}
			}
			log.Printf("task group %s: optional task %s unavailable: %v", ref.Name, member.Name, err)
			continue
		}

		if tg.Spec.SharedConfig != nil {
			task = applySharedConfig(task, *tg.Spec.SharedConfig)
		}
		tasks[member.Name] = task
	}

	resolved := ResolvedGroup{Group: tg, Tasks: tasks, SourcePath: path}
	l.cache[cacheKey] = resolved
	return resolved, nil
}

func (l *Loader) findGroupFile(name string) (string, error) {
	for i := len(l.searchPaths) - 1; i >= 0; i-- {
		dir, err := expandPath(l.searchPaths[i])
		if err != nil {
			return "", err
		}
		candidate := filepath.Join(dir, name+".taskgroup.yaml")
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", &ErrGroupNotFound{Name: name}
}

// applySharedConfig folds a group's SharedConfig into one member task,
// per the reference implementation's folding rules:
//   - Inputs: fill gaps only — a key the task already declares is left
//     untouched; a key only the shared config declares is added.
//   - Permissions: applied only if the task's own permission mode is
//     still the zero/default value.
//   - MaxTurns: applied only if the task did not already set one.
//   - Environment is intentionally NOT folded here: it is a run-time
//     concern applied by whatever executes the task, not a load-time
//     transform of the task definition.
func applySharedConfig(task schema.PredefinedTask, shared schema.SharedConfig) schema.PredefinedTask {
	inputs := make(map[string]schema.TaskInputSpec, len(task.Spec.Inputs)+len(shared.Inputs))
	for key, input := range task.Spec.Inputs {
		inputs[key] = input
	}
	for key, input := range shared.Inputs {
		if _, exists := inputs[key]; !exists {
			inputs[key] = input
		}
	}
	task.Spec.Inputs = inputs

	mode := task.Spec.AgentTemplate.Permissions.Mode
	if shared.Permissions != nil && (mode == "" || mode == "default") {
		task.Spec.AgentTemplate.Permissions = *shared.Permissions
	}

	if shared.MaxTurns != nil && task.Spec.AgentTemplate.MaxTurns == nil {
		task.Spec.AgentTemplate.MaxTurns = shared.MaxTurns
	}

	return task
}

func expandPath(path string) (string, error) {
	if path == "~" || strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		if path == "~" {
			return home, nil
		}
		return filepath.Join(home, path[2:]), nil
	}
	return path, nil
}

// namespaceBinding records one import's namespace alias and the group
// it resolves to.
type namespaceBinding struct {
	namespace string
	group     ResolvedGroup
}

// ErrDuplicateNamespace is returned when two imports claim the same
// namespace alias.
type ErrDuplicateNamespace struct {
	Namespace string
}

func (e *ErrDuplicateNamespace) Error() string {
	return fmt.Sprintf("namespace %q is already bound", e.Namespace)
}

// ErrNamespaceNotFound is returned when a reference names a namespace
// that has not been imported.
type ErrNamespaceNotFound struct {
	Namespace string
}

func (e *ErrNamespaceNotFound) Error() string {
	return fmt.Sprintf("namespace %q is not imported", e.Namespace)
}

// ErrTaskNotFound is returned when a namespace is bound but has no task
// by the requested name.
type ErrTaskNotFound struct {
	Namespace string
	Name      string
	Available []string
}

func (e *ErrTaskNotFound) Error() string {
	return fmt.Sprintf("task %q not found in namespace %q (available: %s)", e.Name, e.Namespace, strings.Join(e.Available, ", "))
}

// ErrWorkflowNotFound is returned when a namespace is bound but has no
// prebuilt workflow by the requested name.
type ErrWorkflowNotFound struct {
	Namespace string
	Name      string
	Available []string
}

func (e *ErrWorkflowNotFound) Error() string {
	return fmt.Sprintf("workflow %q not found in namespace %q (available: %s)", e.Name, e.Namespace, strings.Join(e.Available, ", "))
}

// NamespaceResolver binds imported Task Groups to namespace aliases and
// resolves "ns:name" references against them.
type NamespaceResolver struct {
	bindings map[string]namespaceBinding
}

// NewNamespaceResolver creates an empty resolver.
func NewNamespaceResolver() *NamespaceResolver {
	return &NamespaceResolver{bindings: make(map[string]namespaceBinding)}
}

// Import binds namespace to a loaded group. Re-importing the same
// namespace is an error — imports are write-once per resolver instance.
func (r *NamespaceResolver) Import(namespace string, g ResolvedGroup) error {
	if _, exists := r.bindings[namespace]; exists {
		return &ErrDuplicateNamespace{Namespace: namespace}
	}
	r.bindings[namespace] = namespaceBinding{namespace: namespace, group: g}
	return nil
}

// parseNamespaced splits a strict single-colon "ns:name" reference.
func parseNamespaced(ref string) (namespace, name string, err error) {
	parts := strings.Split(ref, ":")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid namespaced reference %q: expected exactly one \"ns:name\" colon", ref)
	}
	return parts[0], parts[1], nil
}

// ResolveTaskReference resolves a strict "ns:name" reference to the
// task it names.
func (r *NamespaceResolver) ResolveTaskReference(ref string) (schema.PredefinedTask, error) {
	namespace, name, err := parseNamespaced(ref)
	if err != nil {
		return schema.PredefinedTask{}, err
	}

	binding, ok := r.bindings[namespace]
	if !ok {
		return schema.PredefinedTask{}, &ErrNamespaceNotFound{Namespace: namespace}
	}

	task, ok := binding.group.Tasks[name]
	if !ok {
		return schema.PredefinedTask{}, &ErrTaskNotFound{Namespace: namespace, Name: name, Available: sortedKeys(binding.group.Tasks)}
	}
	return task, nil
}

// ResolveWorkflowReference resolves a strict "ns:name" reference to a
// prebuilt workflow declared by the bound group.
func (r *NamespaceResolver) ResolveWorkflowReference(ref string) (schema.PrebuiltWorkflow, error) {
	namespace, name, err := parseNamespaced(ref)
	if err != nil {
		return schema.PrebuiltWorkflow{}, err
	}

	binding, ok := r.bindings[namespace]
	if !ok {
		return schema.PrebuiltWorkflow{}, &ErrNamespaceNotFound{Namespace: namespace}
	}

	var available []string
	for _, wf := range binding.group.Group.Spec.Workflows {
		available = append(available, wf.Name)
		if wf.Name == name {
			return wf, nil
		}
	}
	sort.Strings(available)
	return schema.PrebuiltWorkflow{}, &ErrWorkflowNotFound{Namespace: namespace, Name: name, Available: available}
}

func sortedKeys(m map[string]schema.PredefinedTask) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
