// Package depresolve resolves a predefined task's transitive dependency
// graph against a catalog of known task versions: it unifies version
// constraints per task name, detects circular dependencies, and
// produces a dependencies-first topological install order.
//
// No graph library exists anywhere in the reference corpus this module
// was grounded on, so the graph build, cycle detection, and topological
// sort below are hand-rolled on the standard library (sort, plus plain
// maps/slices for adjacency) rather than reached for a third-party
// graph package.
package depresolve

import (
	"fmt"
	"sort"

	"github.com/taskmesh/resolver/pkg/logger"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
	"github.com/taskmesh/resolver/pkg/tasks/version"
)

var log = logger.New("tasks:depresolve")

// ResolvedTask is one entry of a fully resolved, ordered dependency set:
// a concrete task version chosen to satisfy every constraint collected
// on it.
type ResolvedTask struct {
	Task         schema.PredefinedTask
	Dependencies []string // names this task depends on, in the chosen set
}

// ErrTaskNotFound reports a dependency (or the root) naming a task the
// catalog has no versions of at all.
type ErrTaskNotFound struct {
	Name string
}

func (e *ErrTaskNotFound) Error() string { return fmt.Sprintf("task %q not found in catalog", e.Name) }

// ErrNoSatisfyingVersion reports that the constraints collected for a
// task name have an empty intersection: no single version satisfies
// every dependent's requirement.
type ErrNoSatisfyingVersion struct {
	Task        string
	Constraints []string
}

func (e *ErrNoSatisfyingVersion) Error() string {
	return fmt.Sprintf("no version of %q satisfies all constraints: %v", e.Task, e.Constraints)
}

// ErrCircularDependency reports a dependency cycle, with Path listing
// the task names encountered from the point the cycle was entered back
// to itself.
type ErrCircularDependency struct {
	Path []string
}

func (e *ErrCircularDependency) Error() string {
	return fmt.Sprintf("circular dependency: %v", e.Path)
}

// Resolver holds a catalog of every known task, indexed by name then by
// exact version string.
type Resolver struct {
	catalog map[string]map[string]schema.PredefinedTask
}

// New creates an empty Resolver.
func New() *Resolver {
	return &Resolver{catalog: make(map[string]map[string]schema.PredefinedTask)}
}

// AddTask registers one concrete task version in the catalog.
func (r *Resolver) AddTask(task schema.PredefinedTask) {
	name := task.Metadata.Name
	if r.catalog[name] == nil {
		r.catalog[name] = make(map[string]schema.PredefinedTask)
	}
	r.catalog[name][task.Metadata.Version] = task
}

// AddTasks registers every task in tasks.
func (r *Resolver) AddTasks(tasks []schema.PredefinedTask) {
	for _, t := range tasks {
		r.AddTask(t)
	}
}

// constraintSet collects every version constraint string seen for one
// task name across the dependency graph, for later unification.
type constraintSet map[string][]string

// Resolve computes the dependencies-first install order for ref: it
// resolves each task name to a single chosen version and descends only
// into that version's own declared dependencies, builds the dependency
// graph over those chosen versions, rejects cycles, and returns a
// topologically sorted result (dependencies before dependents), breaking
// ties alphabetically by task name for determinism.
func (r *Resolver) Resolve(ref schema.TaskReference) ([]ResolvedTask, error) {
	chosen, err := r.resolveVersions(ref)
	if err != nil {
		return nil, err
	}

	nodes, edges, err := r.buildGraph(chosen)
	if err != nil {
		return nil, err
	}

	if cyclePath := detectCycle(nodes, edges); cyclePath != nil {
		return nil, &ErrCircularDependency{Path: cyclePath}
	}

	order := topoSort(nodes, edges)

	result := make([]ResolvedTask, 0, len(order))
	for _, name := range order {
		chosenVersion := chosen[name]
		result = append(result, ResolvedTask{
			Task:         r.catalog[name][chosenVersion],
			Dependencies: edges[name],
		})
	}
	return result, nil
}

// resolveVersions computes, for every task name reachable from ref, the
// single version satisfying every constraint collected on it. Choosing a
// version for one task can introduce new constraints on names further
// down the graph, which can in turn narrow an earlier choice, so
// collection and unification repeat to a fixed point: each round
// descends only into the dependencies declared by the *previous* round's
// chosen version (never every version in the catalog), and stops once a
// round picks exactly the same versions as the round before it.
func (r *Resolver) resolveVersions(ref schema.TaskReference) (map[string]string, error) {
	constraints := make(constraintSet)
	constraints[ref.Name] = []string{ref.Version}

	chosen := make(map[string]string)

	maxRounds := len(r.catalog) + 2
	for round := 0; ; round++ {
		next, err := r.unify(constraints)
		if err != nil {
			return nil, err
		}

		if round > 0 && chosenEqual(chosen, next) {
			return next, nil
		}
		if round >= maxRounds {
			return nil, fmt.Errorf("dependency resolution did not converge after %d rounds", maxRounds)
		}
		chosen = next

		newConstraints := constraintSet{ref.Name: append([]string{}, constraints[ref.Name]...)}
		if err := r.collectConstraints(ref.Name, chosen, make(map[string]bool), newConstraints); err != nil {
			return nil, err
		}
		constraints = newConstraints
	}
}

// chosenEqual reports whether two name->version maps agree on every key.
func chosenEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for name, v := range a {
		if b[name] != v {
			return false
		}
	}
	return true
}

// collectConstraints walks the dependency graph from name, descending
// only into the declared dependencies of the version chosen for each
// name so far, and recording every constraint string encountered.
// Missing optional dependencies are silently dropped; a missing required
// dependency fails resolution. A name not yet present in chosen simply
// stops the descent here — its own dependencies are picked up once
// unify has chosen a version for it in a later round.
func (r *Resolver) collectConstraints(name string, chosen map[string]string, visiting map[string]bool, constraints constraintSet) error {
	if visiting[name] {
		// A cycle here is caught precisely once the chosen-version graph
		// is built; collection itself only needs to avoid infinite descent.
		return nil
	}
	visiting[name] = true
	defer delete(visiting, name)

	versions, ok := r.catalog[name]
	if !ok {
		return &ErrTaskNotFound{Name: name}
	}

	ver, known := chosen[name]
	if !known {
		return nil
	}
	task, ok := versions[ver]
	if !ok {
		return &ErrTaskNotFound{Name: name}
	}

	for _, dep := range task.Spec.Dependencies {
		if _, exists := r.catalog[dep.Name]; !exists {
			if dep.Optional {
				continue
			}
			return &ErrTaskNotFound{Name: dep.Name}
		}
		constraints[dep.Name] = append(constraints[dep.Name], dep.Version)
		if err := r.collectConstraints(dep.Name, chosen, visiting, constraints); err != nil {
			return err
		}
	}
	return nil
}

// unify picks, for each task name, the highest version satisfying every
// constraint collected for it.
func (r *Resolver) unify(constraints constraintSet) (map[string]string, error) {
	chosen := make(map[string]string, len(constraints))

	for name, rawConstraints := range constraints {
		versions, ok := r.catalog[name]
		if !ok {
			return nil, &ErrTaskNotFound{Name: name}
		}

		candidates := make([]string, 0, len(versions))
		for v := range versions {
			candidates = append(candidates, v)
		}

		for _, raw := range rawConstraints {
			c, err := version.Parse(raw)
			if err != nil {
				return nil, fmt.Errorf("parsing constraint %q for %q: %w", raw, name, err)
			}
			var filtered []string
			for _, cand := range candidates {
				ok, err := c.Matches(cand)
				if err != nil {
					return nil, fmt.Errorf("matching %q against %q: %w", cand, raw, err)
				}
				if ok {
					filtered = append(filtered, cand)
				}
			}
			candidates = filtered
			if len(candidates) == 0 {
				return nil, &ErrNoSatisfyingVersion{Task: name, Constraints: rawConstraints}
			}
		}

		best, ok := version.FindBest(mustParseLatest(), candidates)
		if !ok {
			return nil, &ErrNoSatisfyingVersion{Task: name, Constraints: rawConstraints}
		}
		chosen[name] = best
		log.LazyPrintf(func() string { return fmt.Sprintf("unified %s -> %s", name, best) })
	}

	return chosen, nil
}

// mustParseLatest returns the distinguished "latest" constraint, used
// internally by unify to pick the maximum among an already-filtered
// candidate set.
func mustParseLatest() version.Constraint {
	c, _ := version.Parse("latest")
	return c
}

// buildGraph builds the node set and dependency adjacency for the
// chosen version of every task name.
func (r *Resolver) buildGraph(chosen map[string]string) (nodes []string, edges map[string][]string, err error) {
	edges = make(map[string][]string, len(chosen))
	for name := range chosen {
		nodes = append(nodes, name)
	}
	sort.Strings(nodes)

	for _, name := range nodes {
		task := r.catalog[name][chosen[name]]
		for _, dep := range task.Spec.Dependencies {
			if _, ok := chosen[dep.Name]; !ok {
				if dep.Optional {
					continue
				}
				return nil, nil, &ErrTaskNotFound{Name: dep.Name}
			}
			edges[name] = append(edges[name], dep.Name)
		}
		sort.Strings(edges[name])
	}
	return nodes, edges, nil
}

// detectCycle runs a depth-first search over the dependency graph and
// returns the cycle path the first time it finds one revisiting a node
// still on the current recursion stack, or nil if the graph is acyclic.
func detectCycle(nodes []string, edges map[string][]string) []string {
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[string]int, len(nodes))
	var path []string

	var visit func(name string) []string
	visit = func(name string) []string {
		state[name] = visiting
		path = append(path, name)

		for _, dep := range edges[name] {
			switch state[dep] {
			case visiting:
				// Found the back-edge closing the cycle: trim path to
				// start at dep's first occurrence.
				cycleStart := indexOf(path, dep)
				return append(append([]string{}, path[cycleStart:]...), dep)
			case unvisited:
				if cyc := visit(dep); cyc != nil {
					return cyc
				}
			}
		}

		path = path[:len(path)-1]
		state[name] = done
		return nil
	}

	for _, n := range nodes {
		if state[n] == unvisited {
			if cyc := visit(n); cyc != nil {
				return cyc
			}
		}
	}
	return nil
}

func indexOf(s []string, v string) int {
	for i, x := range s {
		if x == v {
			return i
		}
	}
	return -1
}

// topoSort performs a Kahn's-algorithm topological sort over the
// dependency graph, always picking the alphabetically smallest
// available node when more than one has no remaining unresolved
// dependency, so the result is deterministic and dependencies always
// precede their dependents.
func topoSort(nodes []string, edges map[string][]string) []string {
	// remaining holds, for each node, the set of its declared
	// dependencies that have not yet been emitted — the node becomes
	// available once that set is empty.
	remaining := make(map[string]map[string]bool, len(nodes))
	for _, n := range nodes {
		remaining[n] = make(map[string]bool, len(edges[n]))
		for _, dep := range edges[n] {
			remaining[n][dep] = true
		}
	}

	var order []string
	emitted := make(map[string]bool, len(nodes))

	for len(order) < len(nodes) {
		var ready []string
		for _, n := range nodes {
			if emitted[n] {
				continue
			}
			if len(remaining[n]) == 0 {
				ready = append(ready, n)
			}
		}
		sort.Strings(ready)
		// ready is guaranteed non-empty here: detectCycle already ruled
		// out a cyclic graph, and an acyclic graph always has at least
		// one node with no unresolved dependency.
		next := ready[0]
		order = append(order, next)
		emitted[next] = true
		for _, n := range nodes {
			delete(remaining[n], next)
		}
	}

	return order
}
