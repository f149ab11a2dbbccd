package group_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/resolver/pkg/tasks/group"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

const sampleGroupYAML = `
apiVersion: taskgroup/v1
kind: TaskGroup
metadata:
  name: ci-suite
  version: 1.0.0
spec:
  tasks:
    - name: build
      version: 1.0.0
      required: true
    - name: optional-lint
      version: 1.0.0
      required: false
  shared_config:
    max_turns: 5
`

func writeGroupFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".taskgroup.yaml"), []byte(content), 0o644))
}

func stubTaskLoader(available map[string]schema.PredefinedTask) group.TaskLoaderFunc {
	return func(ctx context.Context, name, version string) (schema.PredefinedTask, error) {
		task, ok := available[name]
		if !ok {
			return schema.PredefinedTask{}, assert.AnError
		}
		return task, nil
	}
}

func TestLoadResolvesRequiredTasksAndSkipsMissingOptional(t *testing.T) {
	dir := t.TempDir()
	writeGroupFile(t, dir, "ci-suite", sampleGroupYAML)

	loader := group.NewLoader([]string{dir}, stubTaskLoader(map[string]schema.PredefinedTask{
		"build": {Metadata: schema.PredefinedTaskMeta{Name: "build", Version: "1.0.0"}},
	}))

	resolved, err := loader.Load(context.Background(), schema.TaskGroupReference{Name: "ci-suite", Version: "1.0.0"})
	require.NoError(t, err)
	assert.Len(t, resolved.Tasks, 1)
	assert.Contains(t, resolved.Tasks, "build")
}

func TestLoadFailsWhenRequiredTaskMissing(t *testing.T) {
	dir := t.TempDir()
	writeGroupFile(t, dir, "ci-suite", sampleGroupYAML)

	loader := group.NewLoader([]string{dir}, stubTaskLoader(nil))

	_, err := loader.Load(context.Background(), schema.TaskGroupReference{Name: "ci-suite", Version: "1.0.0"})
	require.Error(t, err)
	var missing *group.ErrRequiredTaskMissing
	assert.ErrorAs(t, err, &missing)
}

func TestLoadAppliesMaxTurnsOnlyIfUnset(t *testing.T) {
	dir := t.TempDir()
	writeGroupFile(t, dir, "ci-suite", sampleGroupYAML)

	loader := group.NewLoader([]string{dir}, stubTaskLoader(map[string]schema.PredefinedTask{
		"build": {Metadata: schema.PredefinedTaskMeta{Name: "build", Version: "1.0.0"}},
	}))

	resolved, err := loader.Load(context.Background(), schema.TaskGroupReference{Name: "ci-suite", Version: "1.0.0"})
	require.NoError(t, err)
	require.NotNil(t, resolved.Tasks["build"].Spec.AgentTemplate.MaxTurns)
	assert.Equal(t, uint32(5), *resolved.Tasks["build"].Spec.AgentTemplate.MaxTurns)
}

func TestLoadRejectsVersionMismatch(t *testing.T) {
	dir := t.TempDir()
	writeGroupFile(t, dir, "ci-suite", sampleGroupYAML)

	loader := group.NewLoader([]string{dir}, stubTaskLoader(nil))

	_, err := loader.Load(context.Background(), schema.TaskGroupReference{Name: "ci-suite", Version: "9.9.9"})
	require.Error(t, err)
	var mismatch *group.ErrVersionMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func buildGroupWithTask() group.ResolvedGroup {
	return group.ResolvedGroup{
		Group: schema.TaskGroup{
			Metadata: schema.TaskGroupMeta{Name: "ci-suite", Version: "1.0.0"},
			Spec: schema.TaskGroupSpec{
				Workflows: []schema.PrebuiltWorkflow{{Name: "full-pipeline"}},
			},
		},
		Tasks: map[string]schema.PredefinedTask{
			"build": {Metadata: schema.PredefinedTaskMeta{Name: "build", Version: "1.0.0"}},
		},
	}
}

func TestNamespaceResolverResolvesTaskAndWorkflow(t *testing.T) {
	r := group.NewNamespaceResolver()
	require.NoError(t, r.Import("ci", buildGroupWithTask()))

	task, err := r.ResolveTaskReference("ci:build")
	require.NoError(t, err)
	assert.Equal(t, "build", task.Metadata.Name)

	wf, err := r.ResolveWorkflowReference("ci:full-pipeline")
	require.NoError(t, err)
	assert.Equal(t, "full-pipeline", wf.Name)
}

func TestNamespaceResolverDuplicateImport(t *testing.T) {
	r := group.NewNamespaceResolver()
	require.NoError(t, r.Import("ci", buildGroupWithTask()))

	err := r.Import("ci", buildGroupWithTask())
	require.Error(t, err)
	var dup *group.ErrDuplicateNamespace
	assert.ErrorAs(t, err, &dup)
}

func TestNamespaceResolverUnknownNamespace(t *testing.T) {
	r := group.NewNamespaceResolver()

	_, err := r.ResolveTaskReference("missing:build")
	require.Error(t, err)
	var notFound *group.ErrNamespaceNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestNamespaceResolverRejectsMultiColon(t *testing.T) {
	r := group.NewNamespaceResolver()
	require.NoError(t, r.Import("ci", buildGroupWithTask()))

	_, err := r.ResolveTaskReference("ci:build:extra")
	assert.Error(t, err)
}

func TestNamespaceResolverTaskNotFoundListsAvailable(t *testing.T) {
	r := group.NewNamespaceResolver()
	require.NoError(t, r.Import("ci", buildGroupWithTask()))

	_, err := r.ResolveTaskReference("ci:missing")
	require.Error(t, err)
	var notFound *group.ErrTaskNotFound
	require.ErrorAs(t, err, &notFound)
	assert.Equal(t, []string{"build"}, notFound.Available)
}
