package discovery_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/resolver/pkg/tasks/discovery"
	"github.com/taskmesh/resolver/pkg/tasks/source"
)

func writeTask(t *testing.T, dir, filename, name, version, description string, tags []string) {
	t.Helper()
	tagYAML := ""
	for _, tag := range tags {
		tagYAML += "\n    - " + tag
	}
	content := "apiVersion: task/v1\nkind: PredefinedTask\nmetadata:\n  name: " + name +
		"\n  version: " + version + "\n  description: " + description +
		"\n  tags:" + tagYAML + "\nspec:\n  agent_template:\n    description: fixture\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, filename), []byte(content), 0o644))
}

func TestFindPrefersHigherPrioritySource(t *testing.T) {
	highDir := t.TempDir()
	lowDir := t.TempDir()
	writeTask(t, highDir, "build.task.yaml", "build", "1.0.0", "from project", nil)
	writeTask(t, lowDir, "build.task.yaml", "build", "1.0.0", "from user", nil)

	high, err := source.NewLocal("project", highDir, 10)
	require.NoError(t, err)
	low, err := source.NewLocal("user", lowDir, 5)
	require.NoError(t, err)

	d := discovery.New([]source.Source{low, high})

	task, err := d.Find(context.Background(), "build", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, "from project", task.Metadata.Description)
}

func TestFindNotFound(t *testing.T) {
	dir := t.TempDir()
	src, err := source.NewLocal("project", dir, 10)
	require.NoError(t, err)
	d := discovery.New([]source.Source{src})

	_, err = d.Find(context.Background(), "missing", "")
	require.Error(t, err)
	var notFound *discovery.ErrTaskNotFoundInAnySource
	assert.ErrorAs(t, err, &notFound)
}

func TestSearchMatchesNameAndDescription(t *testing.T) {
	dir := t.TempDir()
	writeTask(t, dir, "a.task.yaml", "alpha", "1.0.0", "builds things", nil)
	writeTask(t, dir, "b.task.yaml", "beta", "1.0.0", "deploys things", nil)

	src, err := source.NewLocal("project", dir, 10)
	require.NoError(t, err)
	d := discovery.New([]source.Source{src})

	matches, err := d.Search(context.Background(), "deploy")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "beta", matches[0].Name)
}

func TestListByTag(t *testing.T) {
	dir := t.TempDir()
	writeTask(t, dir, "a.task.yaml", "alpha", "1.0.0", "d", []string{"ci", "release"})
	writeTask(t, dir, "b.task.yaml", "beta", "1.0.0", "d", []string{"docs"})

	src, err := source.NewLocal("project", dir, 10)
	require.NoError(t, err)
	d := discovery.New([]source.Source{src})

	matches, err := d.ListByTag(context.Background(), "CI")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "alpha", matches[0].Name)
}

func TestCacheClearedAfterUpdate(t *testing.T) {
	dir := t.TempDir()
	writeTask(t, dir, "a.task.yaml", "alpha", "1.0.0", "d", nil)

	src, err := source.NewLocal("project", dir, 10)
	require.NoError(t, err)
	d := discovery.New([]source.Source{src})

	_, err = d.Find(context.Background(), "alpha", "1.0.0")
	require.NoError(t, err)
	assert.Equal(t, 1, d.CacheStats())

	d.UpdateAll(context.Background())
	assert.Equal(t, 0, d.CacheStats())
}
