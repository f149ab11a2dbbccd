// Package update checks configured sources for newer versions of
// already-resolved tasks and classifies the size of each available
// bump (patch/minor/breaking) into an actionable recommendation.
package update

import (
	"context"
	"fmt"
	"sort"

	"github.com/Masterminds/semver/v3"

	"github.com/taskmesh/resolver/pkg/logger"
	"github.com/taskmesh/resolver/pkg/tasks/source"
)

var log = logger.New("tasks:update")

// Recommendation classifies what a caller should do about an available
// update.
type Recommendation string

const (
	RecommendationUpToDate         Recommendation = "up_to_date"
	RecommendationRecommended      Recommendation = "recommended"
	RecommendationReviewRequired   Recommendation = "review_required"
	RecommendationCheckDependencies Recommendation = "check_dependencies"
)

// Policy gates which bump sizes AutoUpdate is allowed to apply
// automatically.
type Policy string

const (
	PolicyManual        Policy = "manual"
	PolicyPatchOnly      Policy = "patch_only"
	PolicyMinorAndPatch  Policy = "minor_and_patch"
	PolicyAll            Policy = "all"
)

// Info is the result of checking one task for updates.
type Info struct {
	TaskName          string
	CurrentVersion    string
	LatestVersion     string
	AvailableVersions []string // sorted newest-first
	UpdateSource      string
	IsBreaking        bool
	IsMinor           bool
	IsPatch           bool
	Recommendation    Recommendation
}

// HasUpdates reports whether LatestVersion is newer than CurrentVersion.
// Versions that do not parse as semver fall back to a string comparison.
func (i Info) HasUpdates() bool {
	if i.LatestVersion == "" {
		return false
	}
	latest, errLatest := semver.NewVersion(i.LatestVersion)
	current, errCurrent := semver.NewVersion(i.CurrentVersion)
	if errLatest != nil || errCurrent != nil {
		return i.LatestVersion != i.CurrentVersion
	}
	return latest.GreaterThan(current)
}

// IsAllowed reports whether this update is permitted to apply
// automatically under policy.
func (i Info) IsAllowed(policy Policy) bool {
	switch policy {
	case PolicyManual:
		return false
	case PolicyPatchOnly:
		return i.IsPatch && !i.IsMinor && !i.IsBreaking
	case PolicyMinorAndPatch:
		return (i.IsPatch || i.IsMinor) && !i.IsBreaking
	case PolicyAll:
		return true
	default:
		return false
	}
}

// ErrPolicyViolation is returned by AutoUpdate when the available
// update's bump size is not permitted by policy.
type ErrPolicyViolation struct {
	Task   string
	From   string
	To     string
	Policy Policy
}

func (e *ErrPolicyViolation) Error() string {
	return fmt.Sprintf("update of %s from %s to %s is not allowed under policy %q", e.Task, e.From, e.To, e.Policy)
}

// Result reports the outcome of an AutoUpdate call.
type Result struct {
	TaskName    string
	Success     bool
	FromVersion string
	ToVersion   string
	Error       error
}

// Checker queries a set of sources for available task versions and
// caches each source's metadata listing between RefreshCache calls.
type Checker struct {
	sources           []source.Source
	metadataCache     map[string][]source.Metadata // source name -> its listing
	includePrerelease bool
}

// NewChecker creates a Checker over sources.
func NewChecker(sources []source.Source) *Checker {
	return &Checker{sources: sources, metadataCache: make(map[string][]source.Metadata)}
}

// SetIncludePrerelease toggles whether pre-release versions (e.g.
// "2.0.0-rc.1") are considered when looking for the latest version.
func (c *Checker) SetIncludePrerelease(include bool) { c.includePrerelease = include }

// RefreshCache re-lists every source's tasks, warning and continuing
// past any source that fails.
func (c *Checker) RefreshCache(ctx context.Context) {
	for _, s := range c.sources {
		tasks, err := s.DiscoverTasks(ctx)
		if err != nil {
			log.Printf("source %s: refresh failed: %v", s.Name(), err)
			continue
		}
		c.metadataCache[s.Name()] = tasks
	}
}

// allVersions collects every cached (version, sourceName) pair for
// name across every source, filtering out pre-releases unless opted
// in.
func (c *Checker) allVersions(name string) []source.Metadata {
	var out []source.Metadata
	for _, entries := range c.metadataCache {
		for _, m := range entries {
			if m.Name != name {
				continue
			}
			if !c.includePrerelease {
				if v, err := semver.NewVersion(m.Version); err == nil && v.Prerelease() != "" {
					continue
				}
			}
			out = append(out, m)
		}
	}
	return out
}

// CheckUpdate reports the latest available version of name across
// every source, classified against currentVersion.
func (c *Checker) CheckUpdate(name, currentVersion string) (Info, error) {
	candidates := c.allVersions(name)
	if len(candidates) == 0 {
		return Info{TaskName: name, CurrentVersion: currentVersion, Recommendation: RecommendationUpToDate}, nil
	}

	sort.Slice(candidates, func(i, j int) bool {
		vi, errI := semver.NewVersion(candidates[i].Version)
		vj, errJ := semver.NewVersion(candidates[j].Version)
		if errI != nil || errJ != nil {
			return candidates[i].Version > candidates[j].Version
		}
		return vi.GreaterThan(vj)
	})

	latest := candidates[0]
	available := make([]string, len(candidates))
	for i, m := range candidates {
		available[i] = m.Version
	}

	current, err := semver.NewVersion(currentVersion)
	if err != nil {
		return Info{}, fmt.Errorf("parsing current version %q for %q: %w", currentVersion, name, err)
	}
	latestVer, err := semver.NewVersion(latest.Version)
	if err != nil {
		return Info{}, fmt.Errorf("parsing latest version %q for %q: %w", latest.Version, name, err)
	}

	info := Info{
		TaskName:          name,
		CurrentVersion:    currentVersion,
		LatestVersion:     latest.Version,
		AvailableVersions: available,
		UpdateSource:      latest.SourceName,
	}

	if !latestVer.GreaterThan(current) {
		info.Recommendation = RecommendationUpToDate
		return info, nil
	}

	info.IsBreaking = latestVer.Major() != current.Major()
	info.IsMinor = !info.IsBreaking && latestVer.Minor() != current.Minor()
	info.IsPatch = !info.IsBreaking && !info.IsMinor && latestVer.Patch() != current.Patch()

	switch {
	case info.IsBreaking:
		info.Recommendation = RecommendationReviewRequired
	case info.IsMinor || info.IsPatch:
		info.Recommendation = RecommendationRecommended
	default:
		info.Recommendation = RecommendationCheckDependencies
	}

	return info, nil
}

// TaskRef names a task and the version currently in use, for a batch
// CheckUpdates call.
type TaskRef struct {
	Name           string
	CurrentVersion string
}

// CheckUpdates checks every ref, warning and continuing past any task
// whose current version fails to parse, and returns only the infos that
// succeeded.
func (c *Checker) CheckUpdates(refs []TaskRef) []Info {
	var out []Info
	for _, ref := range refs {
		info, err := c.CheckUpdate(ref.Name, ref.CurrentVersion)
		if err != nil {
			log.Printf("checking update for %s: %v", ref.Name, err)
			continue
		}
		out = append(out, info)
	}
	return out
}

// AutoUpdate checks for and reports applying an update to name, gated
// by policy. The reference implementation this mirrors stops short of
// actually installing anything (the resolver core never executes or
// writes task files on a caller's behalf); Success here means the
// update was found and permitted, not that any file was changed.
func (c *Checker) AutoUpdate(name, currentVersion string, policy Policy) (Result, error) {
	info, err := c.CheckUpdate(name, currentVersion)
	if err != nil {
		return Result{}, err
	}

	if !info.HasUpdates() {
		return Result{TaskName: name, Success: true, FromVersion: currentVersion, ToVersion: currentVersion}, nil
	}

	if !info.IsAllowed(policy) {
		violation := &ErrPolicyViolation{Task: name, From: currentVersion, To: info.LatestVersion, Policy: policy}
		return Result{TaskName: name, Success: false, FromVersion: currentVersion, ToVersion: info.LatestVersion, Error: violation}, violation
	}

	return Result{TaskName: name, Success: true, FromVersion: currentVersion, ToVersion: info.LatestVersion}, nil
}
