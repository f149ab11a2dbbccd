package lockfile_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/resolver/pkg/tasks/depresolve"
	"github.com/taskmesh/resolver/pkg/tasks/lockfile"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

func resolvedSet() []depresolve.ResolvedTask {
	shared := schema.PredefinedTask{Metadata: schema.PredefinedTaskMeta{Name: "shared", Version: "1.5.0"}}
	root := schema.PredefinedTask{
		Metadata: schema.PredefinedTaskMeta{Name: "root", Version: "1.0.0"},
		Spec: schema.PredefinedTaskSpec{
			Dependencies: []schema.TaskDependency{{Name: "shared", Version: "^1.0.0"}},
		},
	}
	return []depresolve.ResolvedTask{
		{Task: shared},
		{Task: root, Dependencies: []string{"shared"}},
	}
}

func TestGenerateAndVerify(t *testing.T) {
	resolved := resolvedSet()
	lf, err := lockfile.Generate(resolved, nil)
	require.NoError(t, err)
	assert.Len(t, lf.Tasks, 2)
	assert.Equal(t, []string{"shared"}, keysOf(lf.Tasks["root"].Dependencies))

	err = lf.VerifyTask("root", resolved[1].Task)
	assert.NoError(t, err)
}

func TestVerifyTaskDetectsTamper(t *testing.T) {
	resolved := resolvedSet()
	lf, err := lockfile.Generate(resolved, nil)
	require.NoError(t, err)

	tampered := resolved[1].Task
	tampered.Spec.AgentTemplate.Description = "tampered"

	err = lf.VerifyTask("root", tampered)
	require.Error(t, err)
	var mismatch *lockfile.ErrChecksumMismatch
	assert.ErrorAs(t, err, &mismatch)
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	resolved := resolvedSet()
	lf, err := lockfile.Generate(resolved, nil)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "tasks.lock.yaml")
	require.NoError(t, lockfile.Save(context.Background(), lf, path))

	loaded, err := lockfile.Load(path)
	require.NoError(t, err)
	assert.Len(t, loaded.Tasks, 2)
	assert.Equal(t, lf.Tasks["root"].Checksum, loaded.Tasks["root"].Checksum)
}

func TestLoadRejectsIncompatibleMajorVersion(t *testing.T) {
	resolved := resolvedSet()
	lf, err := lockfile.Generate(resolved, nil)
	require.NoError(t, err)
	lf.Version = "2.0"

	path := filepath.Join(t.TempDir(), "tasks.lock.yaml")
	require.NoError(t, lockfile.Save(context.Background(), lf, path))

	_, err = lockfile.Load(path)
	require.Error(t, err)
	var incompatible *lockfile.ErrIncompatibleVersion
	assert.ErrorAs(t, err, &incompatible)
}

func TestValidateDetectsExtraTaskAndVersionMismatch(t *testing.T) {
	resolved := resolvedSet()
	lf, err := lockfile.Generate(resolved, nil)
	require.NoError(t, err)

	// Drop "shared" from the freshly resolved set -> extra task in lockfile.
	onlyRoot := []depresolve.ResolvedTask{resolved[1]}
	result := lockfile.Validate(lf, onlyRoot)
	assert.False(t, result.IsValid())
	assert.Contains(t, result.ExtraTasks, "shared")

	// Bump root's version in the lockfile -> version mismatch against a
	// freshly resolved set that still reports 1.0.0.
	bumped := lf
	bumpedTasks := map[string]lockfile.LockedTask{}
	for k, v := range lf.Tasks {
		bumpedTasks[k] = v
	}
	entry := bumpedTasks["root"]
	entry.Version = "9.9.9"
	bumpedTasks["root"] = entry
	bumped.Tasks = bumpedTasks

	result2 := lockfile.Validate(bumped, resolved)
	assert.False(t, result2.IsValid())
	assert.Equal(t, [2]string{"9.9.9", "1.0.0"}, result2.VersionMismatches["root"])
}

func TestIsStaleFalseWhenMatching(t *testing.T) {
	resolved := resolvedSet()
	lf, err := lockfile.Generate(resolved, nil)
	require.NoError(t, err)

	assert.False(t, lockfile.IsStale(lf, resolved))
}

func keysOf(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}
