// Package orchestrator implements the top-level Task Resolver binding:
// given a "name@version" (or "name@range") reference and call-site
// inputs, it loads the task, validates and fills in inputs, interpolates
// template variables into the agent template, and emits an
// (agent ID, agent spec, task spec) triple ready for an external
// executor to run.
package orchestrator

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"

	"github.com/taskmesh/resolver/pkg/logger"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

var log = logger.New("tasks:orchestrator")

var structValidator = validator.New(validator.WithRequiredStructEnabled())

// TaskLoaderFunc resolves a task reference to its definition.
type TaskLoaderFunc func(ctx context.Context, name, version string) (schema.PredefinedTask, error)

// AgentSpec is the instantiated agent configuration derived from a
// task's AgentTemplate plus interpolated inputs.
type AgentSpec struct {
	Description  string
	Model        string
	SystemPrompt string
	Tools        []string
	Permissions  schema.PermissionsSpec
	MaxTurns     *uint32
}

// TaskSpec carries the resolved input values and declared outputs for
// one task instantiation.
type TaskSpec struct {
	Name    string
	Version string
	Inputs  map[string]interface{}
	Outputs map[string]schema.TaskOutputSpec
}

// ErrMissingRequiredInput is returned when a required input has neither
// a call-site value nor a declared default.
type ErrMissingRequiredInput struct {
	Task  string
	Input string
}

func (e *ErrMissingRequiredInput) Error() string {
	return fmt.Sprintf("task %s: required input %q has no value and no default", e.Task, e.Input)
}

// ErrInvalidInputType is returned when a call-site value's JSON shape
// does not match the input's declared type.
type ErrInvalidInputType struct {
	Task     string
	Input    string
	Expected schema.InputType
	Got      string
}

func (e *ErrInvalidInputType) Error() string {
	return fmt.Sprintf("task %s: input %q expected type %s, got %s", e.Task, e.Input, e.Expected, e.Got)
}

// ErrValidationFailed is returned when an input's value violates its
// declared validation rules (pattern, range, length, enum).
type ErrValidationFailed struct {
	Task   string
	Input  string
	Reason string
}

func (e *ErrValidationFailed) Error() string {
	return fmt.Sprintf("task %s: input %q failed validation: %s", e.Task, e.Input, e.Reason)
}

// Resolver is the top-level binding that turns a task reference and
// call-site inputs into an instantiated AgentSpec/TaskSpec pair.
type Resolver struct {
	loader TaskLoaderFunc
}

// New creates a Resolver backed by loader.
func New(loader TaskLoaderFunc) *Resolver {
	return &Resolver{loader: loader}
}

// Resolve parses taskRef, loads the task, validates and fills inputs,
// interpolates the agent template, and returns the deterministic agent
// id "{name}_{version_with_dots_as_underscores}" alongside the
// instantiated specs.
//
// A reference at a call site is treated as a pin: if its version parses
// as an exact x.y.z version, the loaded task's version must equal it or
// Resolve returns an error. Any other version string (a range) is passed
// to the loader unchanged, and which version it yields is up to the
// loader. Task-to-task dependencies, by contrast, are always
// ranges (see pkg/tasks/depresolve) — only this top-level entry point
// applies pin semantics, since it is the one place a human names a
// specific version they intend to run.
func (r *Resolver) Resolve(ctx context.Context, taskRefStr string, callSiteInputs map[string]interface{}) (string, AgentSpec, TaskSpec, error) {
	ref, err := schema.ParseTaskReference(taskRefStr)
	if err != nil {
		return "", AgentSpec{}, TaskSpec{}, err
	}

	task, err := r.loader(ctx, ref.Name, ref.Version)
	if err != nil {
		return "", AgentSpec{}, TaskSpec{}, fmt.Errorf("loading task %s: %w", taskRefStr, err)
	}
	if _, err := semver.StrictNewVersion(ref.Version); err == nil && task.Metadata.Version != ref.Version {
		return "", AgentSpec{}, TaskSpec{}, fmt.Errorf("loading task %s: loaded version %s does not match pinned version %s", taskRefStr, task.Metadata.Version, ref.Version)
	}

	resolvedInputs, err := r.validateInputs(task, callSiteInputs)
	if err != nil {
		return "", AgentSpec{}, TaskSpec{}, err
	}

	agent := AgentSpec{
		Description:  substituteTemplateVariables(task.Spec.AgentTemplate.Description, resolvedInputs),
		Model:        task.Spec.AgentTemplate.Model,
		SystemPrompt: substituteTemplateVariables(task.Spec.AgentTemplate.SystemPrompt, resolvedInputs),
		Tools:        task.Spec.AgentTemplate.Tools,
		Permissions:  task.Spec.AgentTemplate.Permissions,
		MaxTurns:     task.Spec.AgentTemplate.MaxTurns,
	}

	taskSpec := TaskSpec{
		Name:    task.Metadata.Name,
		Version: task.Metadata.Version,
		Inputs:  resolvedInputs,
		Outputs: task.Spec.Outputs,
	}

	agentID := fmt.Sprintf("%s_%s", task.Metadata.Name, strings.ReplaceAll(task.Metadata.Version, ".", "_"))

	log.LazyPrintf(func() string { return fmt.Sprintf("resolved %s -> agent id %s", taskRefStr, agentID) })

	return agentID, agent, taskSpec, nil
}

// validateInputs checks every declared input against callSiteInputs:
// required+default presence, JSON-type match (a "secret" input accepts
// any string-shaped value), and declared validation rules.
func (r *Resolver) validateInputs(task schema.PredefinedTask, callSiteInputs map[string]interface{}) (map[string]interface{}, error) {
	resolved := make(map[string]interface{}, len(task.Spec.Inputs))

	for name, spec := range task.Spec.Inputs {
		value, provided := callSiteInputs[name]
		if !provided {
			if spec.Default != nil {
				value = spec.Default
			} else if spec.Required {
				return nil, &ErrMissingRequiredInput{Task: task.Metadata.Name, Input: name}
			} else {
				continue
			}
		}

		if err := checkType(task.Metadata.Name, name, spec.Type, value); err != nil {
			return nil, err
		}

		if spec.Validation != nil {
			if err := checkValidation(task.Metadata.Name, name, *spec.Validation, value); err != nil {
				return nil, err
			}
		}

		resolved[name] = value
	}

	return resolved, nil
}

// checkType dispatches on the input's declared JSON-shaped type. This
// dynamic tagged-union match has no struct-tag equivalent in
// go-playground/validator, so it stays hand-written; checkValidation
// below delegates the parts validator models well.
func checkType(taskName, inputName string, declared schema.InputType, value interface{}) error {
	switch declared {
	case schema.InputTypeString, schema.InputTypeSecret:
		// A secret input matches any string-shaped value, mirroring the
		// reference's "secret matches any string" rule — the distinction
		// is about how a caller should treat it (never log it), not its
		// JSON shape.
		if _, ok := value.(string); !ok {
			return &ErrInvalidInputType{Task: taskName, Input: inputName, Expected: declared, Got: fmt.Sprintf("%T", value)}
		}
	case schema.InputTypeNumber:
		switch value.(type) {
		case float64, float32, int, int64:
		default:
			return &ErrInvalidInputType{Task: taskName, Input: inputName, Expected: declared, Got: fmt.Sprintf("%T", value)}
		}
	case schema.InputTypeBoolean:
		if _, ok := value.(bool); !ok {
			return &ErrInvalidInputType{Task: taskName, Input: inputName, Expected: declared, Got: fmt.Sprintf("%T", value)}
		}
	case schema.InputTypeObject:
		if _, ok := value.(map[string]interface{}); !ok {
			return &ErrInvalidInputType{Task: taskName, Input: inputName, Expected: declared, Got: fmt.Sprintf("%T", value)}
		}
	case schema.InputTypeArray:
		if _, ok := value.([]interface{}); !ok {
			return &ErrInvalidInputType{Task: taskName, Input: inputName, Expected: declared, Got: fmt.Sprintf("%T", value)}
		}
	}
	return nil
}

// normalizedConstraint is the internal struct checkValidation populates
// from an already-typed numeric value, so go-playground/validator's
// struct-tag engine can evaluate range rules via Var rather than a
// hand-rolled comparison.
type normalizedConstraint struct {
	NumberValue float64 `validate:"omitempty"`
}

func checkValidation(taskName, inputName string, rules schema.InputValidation, value interface{}) error {
	if rules.Pattern != "" {
		s, ok := value.(string)
		if !ok {
			return &ErrValidationFailed{Task: taskName, Input: inputName, Reason: "pattern rule requires a string value"}
		}
		// go-playground/validator has no built-in free-form-regex struct
		// tag (only fixed shapes like "email", "uuid"), so an arbitrary
		// user-supplied pattern is matched directly rather than forced
		// through the struct-tag engine.
		if err := matchesPattern(s, rules.Pattern); err != nil {
			return &ErrValidationFailed{Task: taskName, Input: inputName, Reason: err.Error()}
		}
	}

	if rules.MinLength != nil || rules.MaxLength != nil {
		s, ok := value.(string)
		if !ok {
			return &ErrValidationFailed{Task: taskName, Input: inputName, Reason: "length rule requires a string value"}
		}
		if rules.MinLength != nil && len(s) < *rules.MinLength {
			return &ErrValidationFailed{Task: taskName, Input: inputName, Reason: fmt.Sprintf("length %d is below minimum %d", len(s), *rules.MinLength)}
		}
		if rules.MaxLength != nil && len(s) > *rules.MaxLength {
			return &ErrValidationFailed{Task: taskName, Input: inputName, Reason: fmt.Sprintf("length %d exceeds maximum %d", len(s), *rules.MaxLength)}
		}
	}

	if rules.Min != nil || rules.Max != nil {
		n, ok := asFloat(value)
		if !ok {
			return &ErrValidationFailed{Task: taskName, Input: inputName, Reason: "range rule requires a numeric value"}
		}
		nc := normalizedConstraint{NumberValue: n}
		if rules.Min != nil {
			if err := structValidator.Var(nc.NumberValue, fmt.Sprintf("gte=%v", *rules.Min)); err != nil {
				return &ErrValidationFailed{Task: taskName, Input: inputName, Reason: fmt.Sprintf("value %v is below minimum %v", n, *rules.Min)}
			}
		}
		if rules.Max != nil {
			if err := structValidator.Var(nc.NumberValue, fmt.Sprintf("lte=%v", *rules.Max)); err != nil {
				return &ErrValidationFailed{Task: taskName, Input: inputName, Reason: fmt.Sprintf("value %v exceeds maximum %v", n, *rules.Max)}
			}
		}
	}

	if len(rules.AllowedValues) > 0 {
		found := false
		for _, allowed := range rules.AllowedValues {
			if allowed == value {
				found = true
				break
			}
		}
		if !found {
			return &ErrValidationFailed{Task: taskName, Input: inputName, Reason: fmt.Sprintf("value %v is not among allowed values %v", value, rules.AllowedValues)}
		}
	}

	return nil
}

func matchesPattern(s, pattern string) error {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return fmt.Errorf("invalid pattern %q: %w", pattern, err)
	}
	if !re.MatchString(s) {
		return fmt.Errorf("value %q does not match pattern %q", s, pattern)
	}
	return nil
}

func asFloat(value interface{}) (float64, bool) {
	switch v := value.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// substituteTemplateVariables replaces every "${input.<key>}" reference
// in s with the stringified resolved input value. Unknown keys are left
// untouched rather than erroring, since a template may legitimately
// reference an input that was optional and never provided.
func substituteTemplateVariables(s string, resolvedInputs map[string]interface{}) string {
	if s == "" {
		return s
	}
	out := s
	for key, value := range resolvedInputs {
		placeholder := "${input." + key + "}"
		out = strings.ReplaceAll(out, placeholder, stringify(value))
	}
	return out
}

func stringify(value interface{}) string {
	switch v := value.(type) {
	case string:
		return v
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprintf("%v", v)
	}
}
