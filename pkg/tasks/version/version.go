// Package version implements semantic-version constraint parsing and
// matching for predefined tasks: exact pins, caret/tilde ranges,
// comparator chains, wildcards, and the "latest" sentinel.
package version

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/taskmesh/resolver/pkg/logger"
)

var log = logger.New("tasks:version")

// ErrInvalidConstraint is returned when a constraint string cannot be parsed.
type ErrInvalidConstraint struct {
	Constraint string
	Cause      error
}

func (e *ErrInvalidConstraint) Error() string {
	return fmt.Sprintf("invalid version constraint %q: %v", e.Constraint, e.Cause)
}

func (e *ErrInvalidConstraint) Unwrap() error { return e.Cause }

// ErrInvalidVersion is returned when a candidate version string isn't a
// valid semantic version.
type ErrInvalidVersion struct {
	Version string
	Cause   error
}

func (e *ErrInvalidVersion) Error() string {
	return fmt.Sprintf("invalid version %q: %v", e.Version, e.Cause)
}

func (e *ErrInvalidVersion) Unwrap() error { return e.Cause }

// Constraint is the parsed form of a version range expression. A nil
// *semver.Constraints combined with IsLatest=true represents the
// distinguished "latest" sentinel, which matches every version.
type Constraint struct {
	raw      string
	req      *semver.Constraints
	isLatest bool
}

// Parse parses a constraint expression: "latest" (case-insensitive), an
// exact pin ("=1.2.3" or a bare "1.2.3" — Masterminds/semver treats an
// unadorned version as an exact match, not a caret range), a caret/tilde
// range, a wildcard ("1.x", "*"), or a comparator chain (">=1.0.0, <2.0.0").
func Parse(s string) (Constraint, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return Constraint{}, &ErrInvalidConstraint{Constraint: s, Cause: fmt.Errorf("empty constraint")}
	}
	if strings.EqualFold(trimmed, "latest") {
		return Constraint{raw: trimmed, isLatest: true}, nil
	}

	req, err := semver.NewConstraint(trimmed)
	if err != nil {
		return Constraint{}, &ErrInvalidConstraint{Constraint: s, Cause: err}
	}
	return Constraint{raw: trimmed, req: req}, nil
}

// String returns the original constraint text.
func (c Constraint) String() string { return c.raw }

// IsLatest reports whether this constraint is the "latest" sentinel.
func (c Constraint) IsLatest() bool { return c.isLatest }

// Matches reports whether the given version string satisfies the constraint.
func (c Constraint) Matches(versionStr string) (bool, error) {
	v, err := semver.NewVersion(versionStr)
	if err != nil {
		return false, &ErrInvalidVersion{Version: versionStr, Cause: err}
	}
	if c.isLatest {
		return true, nil
	}
	return c.req.Check(v), nil
}

// FindBest returns the highest version among candidates that satisfies
// the constraint, or ("", false) if none do (including an empty
// candidate list). Pre-release versions are excluded: a range matches one
// only when the range itself names a pre-release (Masterminds/semver
// rules), and the "latest" sentinel considers pre-releases only when no
// stable candidate exists.
func FindBest(constraint Constraint, candidates []string) (string, bool) {
	if len(candidates) == 0 {
		return "", false
	}
	if constraint.isLatest {
		return findHighest(candidates)
	}

	var matching []*semver.Version
	for _, cand := range candidates {
		v, err := semver.NewVersion(cand)
		if err != nil {
			log.Printf("skipping unparseable candidate %q: %v", cand, err)
			continue
		}
		if constraint.req.Check(v) {
			matching = append(matching, v)
		}
	}
	if len(matching) == 0 {
		return "", false
	}
	sort.Sort(semver.Collection(matching))
	return matching[len(matching)-1].Original(), true
}

// findHighest returns the maximum of candidates by semver precedence,
// used for the "latest" sentinel. Pre-releases count only when no stable
// candidate parses.
func findHighest(candidates []string) (string, bool) {
	var versions, stable []*semver.Version
	for _, cand := range candidates {
		v, err := semver.NewVersion(cand)
		if err != nil {
			log.Printf("skipping unparseable candidate %q: %v", cand, err)
			continue
		}
		versions = append(versions, v)
		if v.Prerelease() == "" {
			stable = append(stable, v)
		}
	}
	if len(stable) > 0 {
		versions = stable
	}
	if len(versions) == 0 {
		return "", false
	}
	sort.Sort(semver.Collection(versions))
	return versions[len(versions)-1].Original(), true
}

// Compare compares two version strings per standard semver precedence:
// -1 if a < b, 0 if equal, 1 if a > b.
func Compare(a, b string) (int, error) {
	va, err := semver.NewVersion(a)
	if err != nil {
		return 0, &ErrInvalidVersion{Version: a, Cause: err}
	}
	vb, err := semver.NewVersion(b)
	if err != nil {
		return 0, &ErrInvalidVersion{Version: b, Cause: err}
	}
	return va.Compare(vb), nil
}
