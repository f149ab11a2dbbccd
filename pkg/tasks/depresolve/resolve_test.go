package depresolve_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskmesh/resolver/pkg/tasks/depresolve"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

func task(name, ver string, deps ...schema.TaskDependency) schema.PredefinedTask {
	return schema.PredefinedTask{
		Metadata: schema.PredefinedTaskMeta{Name: name, Version: ver},
		Spec:     schema.PredefinedTaskSpec{Dependencies: deps},
	}
}

func dep(name, constraint string) schema.TaskDependency {
	return schema.TaskDependency{Name: name, Version: constraint}
}

// TestResolveDiamondDependency mirrors a diamond shape: root depends on
// both b and c, each of which depends on shared. shared must appear
// exactly once, before both b and c.
func TestResolveDiamondDependency(t *testing.T) {
	r := depresolve.New()
	r.AddTasks([]schema.PredefinedTask{
		task("root", "1.0.0", dep("b", "^1.0.0"), dep("c", "^1.0.0")),
		task("b", "1.0.0", dep("shared", "^1.0.0")),
		task("c", "1.0.0", dep("shared", "^1.0.0")),
		task("shared", "1.0.0"),
		task("shared", "1.5.0"),
	})

	resolved, err := r.Resolve(schema.TaskReference{Name: "root", Version: "1.0.0"})
	require.NoError(t, err)

	names := namesInOrder(resolved)
	assert.Len(t, names, 4)
	assert.Less(t, indexOfName(names, "shared"), indexOfName(names, "b"))
	assert.Less(t, indexOfName(names, "shared"), indexOfName(names, "c"))
	assert.Equal(t, "root", names[len(names)-1])
}

// TestResolveUnifiesToHighestSatisfyingVersion mirrors the spec's
// constraint-unification scenario: two dependents each constrain
// "shared" with ^1.0.0; the candidate set {1.0.0,1.5.0,2.0.0} must
// unify to 1.5.0 (the highest version still within ^1.0.0), not 2.0.0.
func TestResolveUnifiesToHighestSatisfyingVersion(t *testing.T) {
	r := depresolve.New()
	r.AddTasks([]schema.PredefinedTask{
		task("root", "1.0.0", dep("b", "^1.0.0"), dep("c", "^1.0.0")),
		task("b", "1.0.0", dep("shared", "^1.0.0")),
		task("c", "1.0.0", dep("shared", "^1.0.0")),
		task("shared", "1.0.0"),
		task("shared", "1.5.0"),
		task("shared", "2.0.0"),
	})

	resolved, err := r.Resolve(schema.TaskReference{Name: "root", Version: "1.0.0"})
	require.NoError(t, err)

	shared := find(resolved, "shared")
	require.NotNil(t, shared)
	assert.Equal(t, "1.5.0", shared.Task.Metadata.Version)
}

// TestResolveOnlyDescendsIntoChosenVersionsDependencies mirrors a
// catalog with two versions of "shared": the unselected 1.0.0 declares a
// required dependency on a task that does not exist anywhere in the
// catalog, while the selected 2.0.0 declares none. Resolution must
// succeed by descending only into 2.0.0's dependencies, not 1.0.0's.
func TestResolveOnlyDescendsIntoChosenVersionsDependencies(t *testing.T) {
	r := depresolve.New()
	r.AddTasks([]schema.PredefinedTask{
		task("root", "1.0.0", dep("shared", "^2.0.0")),
		task("shared", "1.0.0", dep("nonexistent", "^1.0.0")),
		task("shared", "2.0.0"),
	})

	resolved, err := r.Resolve(schema.TaskReference{Name: "root", Version: "1.0.0"})
	require.NoError(t, err)

	names := namesInOrder(resolved)
	assert.ElementsMatch(t, []string{"root", "shared"}, names)
	shared := find(resolved, "shared")
	require.NotNil(t, shared)
	assert.Equal(t, "2.0.0", shared.Task.Metadata.Version)
}

func TestResolveNoSatisfyingVersion(t *testing.T) {
	r := depresolve.New()
	r.AddTasks([]schema.PredefinedTask{
		task("root", "1.0.0", dep("b", "^1.0.0"), dep("c", "^2.0.0")),
		task("b", "1.0.0", dep("shared", "^1.0.0")),
		task("c", "1.0.0", dep("shared", "^2.0.0")),
		task("shared", "1.5.0"),
	})

	_, err := r.Resolve(schema.TaskReference{Name: "root", Version: "1.0.0"})
	require.Error(t, err)
	var noSatisfying *depresolve.ErrNoSatisfyingVersion
	assert.ErrorAs(t, err, &noSatisfying)
}

func TestResolveDetectsCircularDependency(t *testing.T) {
	r := depresolve.New()
	r.AddTasks([]schema.PredefinedTask{
		task("a", "1.0.0", dep("b", "^1.0.0")),
		task("b", "1.0.0", dep("c", "^1.0.0")),
		task("c", "1.0.0", dep("a", "^1.0.0")),
	})

	_, err := r.Resolve(schema.TaskReference{Name: "a", Version: "1.0.0"})
	require.Error(t, err)
	var circular *depresolve.ErrCircularDependency
	assert.ErrorAs(t, err, &circular)
}

func TestResolveMissingRequiredDependencyFails(t *testing.T) {
	r := depresolve.New()
	r.AddTasks([]schema.PredefinedTask{
		task("root", "1.0.0", dep("missing", "^1.0.0")),
	})

	_, err := r.Resolve(schema.TaskReference{Name: "root", Version: "1.0.0"})
	require.Error(t, err)
	var notFound *depresolve.ErrTaskNotFound
	assert.ErrorAs(t, err, &notFound)
}

func TestResolveOptionalMissingDependencyIsDropped(t *testing.T) {
	r := depresolve.New()
	r.AddTasks([]schema.PredefinedTask{
		task("root", "1.0.0", schema.TaskDependency{Name: "missing", Version: "^1.0.0", Optional: true}),
	})

	resolved, err := r.Resolve(schema.TaskReference{Name: "root", Version: "1.0.0"})
	require.NoError(t, err)
	assert.Len(t, resolved, 1)
	assert.Equal(t, "root", resolved[0].Task.Metadata.Name)
}

func namesInOrder(resolved []depresolve.ResolvedTask) []string {
	out := make([]string, len(resolved))
	for i, r := range resolved {
		out[i] = r.Task.Metadata.Name
	}
	return out
}

func indexOfName(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}

func find(resolved []depresolve.ResolvedTask, name string) *depresolve.ResolvedTask {
	for i := range resolved {
		if resolved[i].Task.Metadata.Name == name {
			return &resolved[i]
		}
	}
	return nil
}
