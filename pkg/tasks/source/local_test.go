package source_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/resolver/pkg/tasks/source"
)

func writeTaskFile(t *testing.T, dir, filename, name, version string) {
	t.Helper()
	path := filepath.Join(dir, filename)
	require.NoError(t, os.WriteFile(path, []byte(sprintfFixture(name, version)), 0o644))
}

func sprintfFixture(name, version string) string {
	return "apiVersion: task/v1\nkind: PredefinedTask\nmetadata:\n  name: " + name + "\n  version: " + version + "\nspec:\n  agent_template:\n    description: a fixture task\n"
}

func TestLocalDiscoverTasks(t *testing.T) {
	dir := t.TempDir()
	writeTaskFile(t, dir, "build.task.yaml", "build", "1.0.0")
	require.NoError(t, os.Mkdir(filepath.Join(dir, "nested"), 0o755))
	writeTaskFile(t, filepath.Join(dir, "nested"), "deploy.task.yaml", "deploy", "2.0.0")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "README.md"), []byte("not a task"), 0o644))

	src, err := source.NewLocal("project-local", dir, 10)
	require.NoError(t, err)

	tasks, err := src.DiscoverTasks(context.Background())
	require.NoError(t, err)
	assert.Len(t, tasks, 2)
}

func TestLocalLoadTaskByNameAndVersion(t *testing.T) {
	dir := t.TempDir()
	writeTaskFile(t, dir, "build.task.yaml", "build", "1.0.0")

	src, err := source.NewLocal("project-local", dir, 10)
	require.NoError(t, err)

	task, err := src.LoadTask(context.Background(), "build", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "build", task.Metadata.Name)

	_, err = src.LoadTask(context.Background(), "build", "9.9.9")
	assert.Error(t, err)
}

func TestLocalLoadTaskNotFound(t *testing.T) {
	dir := t.TempDir()
	src, err := source.NewLocal("project-local", dir, 10)
	require.NoError(t, err)

	_, err = src.LoadTask(context.Background(), "missing", "")
	require.Error(t, err)
	var notFound *source.ErrTaskNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestLocalHealthCheckNonexistentPath(t *testing.T) {
	src, err := source.NewLocal("gone", filepath.Join(t.TempDir(), "does-not-exist"), 10)
	require.NoError(t, err)

	status, err := src.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Available)
}

func TestLocalUpdateIsNoop(t *testing.T) {
	dir := t.TempDir()
	src, err := source.NewLocal("project-local", dir, 10)
	require.NoError(t, err)

	result, err := src.Update(context.Background())
	require.NoError(t, err)
	assert.False(t, result.Updated)
}
