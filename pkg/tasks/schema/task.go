// Package schema defines the data types shared by every predefined-task
// component: the task descriptor itself, its input/output contracts, and
// the lightweight reference grammars (task@version,
// group@version#workflow) used to address them.
package schema

import (
	"fmt"
	"strings"
)

// TaskAPIVersion identifies the schema version of a task document.
type TaskAPIVersion string

// TaskAPIVersionV1 is the only supported task API version.
const TaskAPIVersionV1 TaskAPIVersion = "task/v1"

// TaskKind identifies the resource kind of a task document.
type TaskKind string

// TaskKindPredefinedTask is the only supported task kind.
const TaskKindPredefinedTask TaskKind = "PredefinedTask"

// PredefinedTask is the complete, immutable descriptor for a reusable task.
// Once parsed from a source file it is never mutated; callers that need a
// modified copy (e.g. shared-config folding) must construct a new value.
type PredefinedTask struct {
	APIVersion TaskAPIVersion       `yaml:"apiVersion"`
	Kind       TaskKind             `yaml:"kind"`
	Metadata   PredefinedTaskMeta   `yaml:"metadata"`
	Spec       PredefinedTaskSpec   `yaml:"spec"`
}

// PredefinedTaskMeta carries identity and discovery metadata for a task.
type PredefinedTaskMeta struct {
	Name        string   `yaml:"name"`
	Version     string   `yaml:"version"`
	Author      string   `yaml:"author,omitempty"`
	Description string   `yaml:"description,omitempty"`
	License     string   `yaml:"license,omitempty"`
	Repository  string   `yaml:"repository,omitempty"`
	Tags        []string `yaml:"tags,omitempty"`
}

// PredefinedTaskSpec is the body of a task: what it does when instantiated.
type PredefinedTaskSpec struct {
	AgentTemplate AgentTemplate                  `yaml:"agent_template"`
	Inputs        map[string]TaskInputSpec       `yaml:"inputs,omitempty"`
	Outputs       map[string]TaskOutputSpec      `yaml:"outputs,omitempty"`
	Dependencies  []TaskDependency               `yaml:"dependencies,omitempty"`
	Examples      []TaskExample                  `yaml:"examples,omitempty"`
}

// AgentTemplate is the agent that gets instantiated when a task is used.
type AgentTemplate struct {
	Description  string          `yaml:"description"`
	Model        string          `yaml:"model,omitempty"`
	SystemPrompt string          `yaml:"system_prompt,omitempty"`
	Tools        []string        `yaml:"tools,omitempty"`
	Permissions  PermissionsSpec `yaml:"permissions,omitempty"`
	MaxTurns     *uint32         `yaml:"max_turns,omitempty"`
}

// PermissionsSpec governs what an instantiated agent is allowed to do.
// An empty Mode and Mode "default" both count as the default mode, which
// is what shared-config folding checks for.
type PermissionsSpec struct {
	Mode string `yaml:"mode,omitempty"`
}

// InputType enumerates the declared JSON-shaped types an input may carry.
type InputType string

const (
	InputTypeString  InputType = "string"
	InputTypeNumber  InputType = "number"
	InputTypeBoolean InputType = "boolean"
	InputTypeObject  InputType = "object"
	InputTypeArray   InputType = "array"
	InputTypeSecret  InputType = "secret"
)

// TaskInputSpec declares one input parameter and its validation rules.
type TaskInputSpec struct {
	Type        InputType       `yaml:"type"`
	Required    bool            `yaml:"required,omitempty"`
	Default     interface{}     `yaml:"default,omitempty"`
	Description string          `yaml:"description,omitempty"`
	Validation  *InputValidation `yaml:"validation,omitempty"`
	Source      string          `yaml:"source,omitempty"`
}

// InputValidation carries the optional constraint rules for an input.
type InputValidation struct {
	Pattern       string        `yaml:"pattern,omitempty"`
	Min           *float64      `yaml:"min,omitempty"`
	Max           *float64      `yaml:"max,omitempty"`
	MinLength     *int          `yaml:"min_length,omitempty"`
	MaxLength     *int          `yaml:"max_length,omitempty"`
	AllowedValues []interface{} `yaml:"allowed_values,omitempty"`
}

// TaskOutputSpec declares one output and the run-time expression that
// produces it.
type TaskOutputSpec struct {
	Type        string `yaml:"type,omitempty"`
	Description string `yaml:"description,omitempty"`
	Source      string `yaml:"source,omitempty"`
}

// TaskDependency is a declared dependency of one task on another, by
// name and version constraint.
type TaskDependency struct {
	Name     string `yaml:"name"`
	Version  string `yaml:"version"`
	Optional bool   `yaml:"optional,omitempty"`
}

// TaskExample is non-semantic documentation of how a task may be invoked.
type TaskExample struct {
	Name        string                 `yaml:"name"`
	Description string                 `yaml:"description,omitempty"`
	Inputs      map[string]interface{} `yaml:"inputs,omitempty"`
}

// TaskReference identifies a task by name and version/constraint string,
// as it appears on the right-hand side of a "uses:" declaration.
type TaskReference struct {
	Name    string
	Version string
}

// ParseTaskReference parses "name@version" into a TaskReference.
func ParseTaskReference(reference string) (TaskReference, error) {
	parts := strings.Split(reference, "@")
	if len(parts) != 2 {
		return TaskReference{}, fmt.Errorf("invalid task reference %q: expected format 'task-name@version'", reference)
	}
	name := strings.TrimSpace(parts[0])
	version := strings.TrimSpace(parts[1])
	if name == "" {
		return TaskReference{}, fmt.Errorf("invalid task reference %q: task name cannot be empty", reference)
	}
	if version == "" {
		return TaskReference{}, fmt.Errorf("invalid task reference %q: version cannot be empty", reference)
	}
	return TaskReference{Name: name, Version: version}, nil
}

// String renders the reference back to "name@version" form.
func (r TaskReference) String() string {
	return fmt.Sprintf("%s@%s", r.Name, r.Version)
}
