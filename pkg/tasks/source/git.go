package source

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-git/go-git/v5"
	"github.com/go-git/go-git/v5/plumbing"

	"github.com/taskmesh/resolver/pkg/logger"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

var gitLog = logger.New("tasks:source:git")

// GitOptions configures a Git-backed task source.
type GitOptions struct {
	Name     string
	URL      string
	Branch   string // mutually exclusive with Tag
	Tag      string
	CacheDir string // defaults to ~/.claude/cache/<name>
	Priority uint8
	Trusted  bool

	UpdatePolicy UpdatePolicy
}

// Git is a task source backed by a persistent local mirror of a remote
// git repository. The mirror is cloned on first access and refreshed
// according to UpdatePolicy; a source pinned to a Tag is immutable and
// is never refreshed regardless of policy, since a tag names a fixed
// commit.
type Git struct {
	opts      GitOptions
	cacheDir  string
	lastFetch time.Time
}

// NewGit validates options and builds a Git source. It does not touch
// the network or filesystem; the mirror is materialized lazily on the
// first DiscoverTasks/LoadTask/Update call.
func NewGit(opts GitOptions) (*Git, error) {
	if opts.URL == "" {
		return nil, fmt.Errorf("git source %q: url is required", opts.Name)
	}
	if opts.Branch != "" && opts.Tag != "" {
		return nil, fmt.Errorf("git source %q: branch and tag are mutually exclusive", opts.Name)
	}
	if opts.UpdatePolicy == "" {
		opts.UpdatePolicy = UpdatePolicyDaily
	}

	cacheDir := opts.CacheDir
	if cacheDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolving cache directory for git source %q: %w", opts.Name, err)
		}
		cacheDir = filepath.Join(home, ".claude", "cache", opts.Name)
	} else {
		expanded, err := expandPath(cacheDir)
		if err != nil {
			return nil, err
		}
		cacheDir = expanded
	}

	return &Git{opts: opts, cacheDir: cacheDir}, nil
}

func (g *Git) Name() string     { return g.opts.Name }
func (g *Git) SourceType() Type { return TypeGit }
func (g *Git) Priority() uint8  { return g.opts.Priority }
func (g *Git) IsTrusted() bool  { return g.opts.Trusted }

// isPinned reports whether this source is checked out at an immutable
// tag, which shouldRefresh never refreshes.
func (g *Git) isPinned() bool { return g.opts.Tag != "" }

// ensureMirror clones the repository into cacheDir if it is not already
// present, then checks out the configured branch or tag.
func (g *Git) ensureMirror(ctx context.Context) (*git.Repository, error) {
	if _, err := os.Stat(filepath.Join(g.cacheDir, ".git")); err == nil {
		return git.PlainOpen(g.cacheDir)
	} else if !os.IsNotExist(err) {
		return nil, err
	}

	if err := os.MkdirAll(filepath.Dir(g.cacheDir), 0o755); err != nil {
		return nil, fmt.Errorf("creating cache directory for git source %q: %w", g.opts.Name, err)
	}

	gitLog.Printf("cloning %s into %s", g.opts.URL, g.cacheDir)

	cloneOpts := &git.CloneOptions{
		URL: g.opts.URL,
	}
	if g.opts.Branch != "" {
		cloneOpts.ReferenceName = plumbing.NewBranchReferenceName(g.opts.Branch)
	}

	repo, err := git.PlainCloneContext(ctx, g.cacheDir, false, cloneOpts)
	if err != nil {
		return nil, fmt.Errorf("cloning git source %q: %w", g.opts.Name, err)
	}

	if g.opts.Tag != "" {
		if err := checkoutTag(repo, g.opts.Tag); err != nil {
			return nil, err
		}
	}

	return repo, nil
}

func checkoutTag(repo *git.Repository, tag string) error {
	wt, err := repo.Worktree()
	if err != nil {
		return err
	}
	ref, err := repo.Reference(plumbing.NewTagReferenceName(tag), true)
	if err != nil {
		return fmt.Errorf("resolving tag %q: %w", tag, err)
	}
	return wt.Checkout(&git.CheckoutOptions{Hash: ref.Hash()})
}

// shouldRefresh decides, per UpdatePolicy, whether an Update call should
// actually perform a fetch right now. A pinned tag source never
// refreshes.
func (g *Git) shouldRefresh() bool {
	if g.isPinned() {
		return false
	}
	switch g.opts.UpdatePolicy {
	case UpdatePolicyManual:
		return false
	case UpdatePolicyAlways:
		return true
	case UpdatePolicyDaily:
		return g.lastFetch.IsZero() || time.Since(g.lastFetch) >= 24*time.Hour
	case UpdatePolicyWeekly:
		return g.lastFetch.IsZero() || time.Since(g.lastFetch) >= 7*24*time.Hour
	default:
		return false
	}
}

// Update fetches and fast-forwards the local mirror when the update
// policy calls for it. A tagged checkout is immutable and is reported
// as already up to date without attempting any fetch.
func (g *Git) Update(ctx context.Context) (UpdateResult, error) {
	repo, err := g.ensureMirror(ctx)
	if err != nil {
		return UpdateResult{}, err
	}
	return g.pull(ctx, repo)
}

// refreshIfDue ensures the mirror is present and, if UpdatePolicy calls
// for it right now, pulls before returning the repository — the same
// "ensure, then optionally update" sequence DiscoverTasks and LoadTask
// both need so an always/daily/weekly Git source actually gets refreshed
// on discovery and lookup, not only via an explicit Update call.
func (g *Git) refreshIfDue(ctx context.Context) error {
	repo, err := g.ensureMirror(ctx)
	if err != nil {
		return err
	}
	if !g.shouldRefresh() {
		return nil
	}
	_, err = g.pull(ctx, repo)
	return err
}

// pull fetches and fast-forwards an already-open repository.
func (g *Git) pull(ctx context.Context, repo *git.Repository) (UpdateResult, error) {
	if !g.shouldRefresh() {
		return UpdateResult{Updated: false, Message: "update policy does not require a refresh yet"}, nil
	}

	wt, err := repo.Worktree()
	if err != nil {
		return UpdateResult{}, err
	}

	pullOpts := &git.PullOptions{}
	if g.opts.Branch != "" {
		pullOpts.ReferenceName = plumbing.NewBranchReferenceName(g.opts.Branch)
	}

	err = wt.PullContext(ctx, pullOpts)
	g.lastFetch = time.Now()
	if err != nil {
		if errors.Is(err, git.NoErrAlreadyUpToDate) {
			return UpdateResult{Updated: false, Message: "already up to date"}, nil
		}
		return UpdateResult{}, fmt.Errorf("pulling git source %q: %w", g.opts.Name, err)
	}

	return UpdateResult{Updated: true, Message: "pulled latest changes"}, nil
}

// HealthCheck reports whether the local mirror exists on disk, without
// performing any network I/O — a remote-reachability probe is
// deliberately out of scope here.
func (g *Git) HealthCheck(ctx context.Context) (HealthStatus, error) {
	info, err := os.Stat(g.cacheDir)
	if err != nil {
		if os.IsNotExist(err) {
			return HealthStatus{Available: false, Message: "mirror not yet cloned", LastCheck: time.Now()}, nil
		}
		return HealthStatus{Available: false, Message: err.Error(), LastCheck: time.Now()}, nil
	}
	if !info.IsDir() {
		return HealthStatus{Available: false, Message: g.cacheDir + " is not a directory", LastCheck: time.Now()}, nil
	}
	return HealthStatus{Available: true, Message: "ok", LastCheck: time.Now()}, nil
}

// DiscoverTasks materializes (or reuses) the local mirror, refreshes it
// first if UpdatePolicy is due, and scans it exactly as a Local source
// would.
func (g *Git) DiscoverTasks(ctx context.Context) ([]Metadata, error) {
	if err := g.refreshIfDue(ctx); err != nil {
		return nil, err
	}
	local, err := NewLocal(g.opts.Name, g.cacheDir, g.opts.Priority)
	if err != nil {
		return nil, err
	}
	return local.DiscoverTasks(ctx)
}

// LoadTask materializes (or reuses) the local mirror, refreshes it first
// if UpdatePolicy is due, and loads from it exactly as a Local source
// would.
func (g *Git) LoadTask(ctx context.Context, name, version string) (schema.PredefinedTask, error) {
	if err := g.refreshIfDue(ctx); err != nil {
		return schema.PredefinedTask{}, err
	}
	local, err := NewLocal(g.opts.Name, g.cacheDir, g.opts.Priority)
	if err != nil {
		return schema.PredefinedTask{}, err
	}
	return local.LoadTask(ctx, name, version)
}
