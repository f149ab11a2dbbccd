package schema

import (
	"fmt"
	"strings"
)

// TaskGroupAPIVersion identifies the schema version of a task group document.
type TaskGroupAPIVersion string

// TaskGroupAPIVersionV1 is the only supported task group API version.
const TaskGroupAPIVersionV1 TaskGroupAPIVersion = "taskgroup/v1"

// TaskGroupKind identifies the resource kind of a task group document.
type TaskGroupKind string

// TaskGroupKindTaskGroup is the only supported task group kind.
const TaskGroupKindTaskGroup TaskGroupKind = "TaskGroup"

// TaskGroup is a bundle of related tasks plus shared configuration and
// prebuilt workflow templates, identified by (name, version).
type TaskGroup struct {
	APIVersion TaskGroupAPIVersion `yaml:"apiVersion"`
	Kind       TaskGroupKind       `yaml:"kind"`
	Metadata   TaskGroupMeta       `yaml:"metadata"`
	Spec       TaskGroupSpec       `yaml:"spec"`
}

// TaskGroupMeta carries identity and discovery metadata for a group.
type TaskGroupMeta struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Author      string   `yaml:"author,omitempty"`
	Description string   `yaml:"description,omitempty"`
	License     string   `yaml:"license,omitempty"`
	Repository  string   `yaml:"repository,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// TaskGroupSpec is the body of a task group.
type TaskGroupSpec struct {
	Tasks        []TaskGroupTaskRef `yaml:"tasks"`
	SharedConfig *SharedConfig      `yaml:"shared_config,omitempty"`
	Workflows    []PrebuiltWorkflow `yaml:"workflows,omitempty"`
	Dependencies []GroupDependency  `yaml:"dependencies,omitempty"`
	Hooks        *GroupHooks        `yaml:"hooks,omitempty"`
}

// TaskGroupTaskRef is one task entry declared inside a group.
type TaskGroupTaskRef struct {
	Name        string `yaml:"name"`
	Version     string `yaml:"version"`
	Required    bool   `yaml:"required"`
	Description string `yaml:"description,omitempty"`
}

// SharedConfig is folded into every task in a group at load time, except
// for Environment which the executor applies at run time, not load time.
type SharedConfig struct {
	Inputs      map[string]TaskInputSpec `yaml:"inputs,omitempty"`
	Permissions *PermissionsSpec         `yaml:"permissions,omitempty"`
	Environment map[string]string        `yaml:"environment,omitempty"`
	MaxTurns    *uint32                  `yaml:"max_turns,omitempty"`
}

// PrebuiltWorkflow is a named workflow template shipped inside a group.
// Tasks is left as a raw YAML-shaped value because the workflow DSL it
// describes is an external collaborator (see spec.md §1 Non-goals).
type PrebuiltWorkflow struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description,omitempty"`
	Tasks       interface{}            `yaml:"tasks"`
	Inputs      map[string]TaskInputSpec `yaml:"inputs,omitempty"`
	Outputs     map[string]string      `yaml:"outputs,omitempty"`
}

// GroupDependency is a group-level dependency on another group or task.
type GroupDependency struct {
	Name       string `yaml:"name"`
	Version    string `yaml:"version"`
	Repository string `yaml:"repository,omitempty"`
	Optional   bool   `yaml:"optional,omitempty"`
}

// GroupHooks are lifecycle hooks around installing/using/uninstalling a group.
// Hooks are parsed and exposed for an external runner; this module never
// executes them (see spec.md §1 Non-goals: no task execution).
type GroupHooks struct {
	PostInstall  []Hook `yaml:"post_install,omitempty"`
	PreUse       []Hook `yaml:"pre_use,omitempty"`
	PostUninstall []Hook `yaml:"post_uninstall,omitempty"`
}

// HookType discriminates the Hook tagged union.
type HookType string

const (
	HookTypeCommand  HookType = "command"
	HookTypeValidate HookType = "validate"
	HookTypeMessage  HookType = "message"
)

// Hook is a single lifecycle hook: a command to run, a condition to
// validate, or a message to display. Exactly one of the type-specific
// field groups is meaningful, selected by Type.
type Hook struct {
	Type HookType `yaml:"type"`

	// Command fields.
	Command string `yaml:"command,omitempty"`
	Cwd     string `yaml:"cwd,omitempty"`

	// Validate fields.
	Check   string `yaml:"check,omitempty"`
	Message string `yaml:"message,omitempty"`

	// Message fields. Content overlaps with no other variant. Level is
	// kept as written; an empty Level is not replaced with a default.
	Content string `yaml:"content,omitempty"`
	Level   string `yaml:"level,omitempty"`
}

// TaskGroupReference identifies a group, and optionally a prebuilt
// workflow inside it, as it appears in an import declaration.
type TaskGroupReference struct {
	Name     string
	Version  string
	Workflow string // empty if no workflow suffix was given
}

// ParseTaskGroupReference parses "group-name@version" or
// "group-name@version#workflow-name".
func ParseTaskGroupReference(reference string) (TaskGroupReference, error) {
	parts := strings.Split(reference, "#")
	if len(parts) > 2 {
		return TaskGroupReference{}, fmt.Errorf(
			"invalid task group reference %q: expected format 'group-name@version' or 'group-name@version#workflow'", reference)
	}

	var workflow string
	if len(parts) == 2 {
		workflow = strings.TrimSpace(parts[1])
		if workflow == "" {
			return TaskGroupReference{}, fmt.Errorf("invalid task group reference %q: workflow name cannot be empty", reference)
		}
	}

	groupVersion := strings.Split(parts[0], "@")
	if len(groupVersion) != 2 {
		return TaskGroupReference{}, fmt.Errorf(
			"invalid task group reference %q: expected format 'group-name@version'", parts[0])
	}

	name := strings.TrimSpace(groupVersion[0])
	version := strings.TrimSpace(groupVersion[1])
	if name == "" {
		return TaskGroupReference{}, fmt.Errorf("invalid task group reference %q: task group name cannot be empty", reference)
	}
	if version == "" {
		return TaskGroupReference{}, fmt.Errorf("invalid task group reference %q: version cannot be empty", reference)
	}

	return TaskGroupReference{Name: name, Version: version, Workflow: workflow}, nil
}

// String renders the reference back to its canonical form.
func (r TaskGroupReference) String() string {
	if r.Workflow != "" {
		return fmt.Sprintf("%s@%s#%s", r.Name, r.Version, r.Workflow)
	}
	return fmt.Sprintf("%s@%s", r.Name, r.Version)
}
