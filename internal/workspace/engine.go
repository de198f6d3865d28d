// Package workspace materialises and tears down composite directories of
// git worktrees, one worktree per member of a repository set.
//
// The engine is the only writer of the workspaces directory. Workspaces are
// keyed by the canonical sorted member set; two sets that differ in
// membership never share a directory.
package workspace

import (
	"context"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/davis7dotsh/betterctx/internal/domain"
	cerrors "github.com/davis7dotsh/betterctx/internal/errors"
	"github.com/davis7dotsh/betterctx/internal/gitx"
	"github.com/davis7dotsh/betterctx/internal/logging"
	"github.com/davis7dotsh/betterctx/internal/query"
	"github.com/davis7dotsh/betterctx/internal/registry"
	"github.com/davis7dotsh/betterctx/internal/repocache"
)

// metadataFileName is the per-workspace metadata document.
const metadataFileName = ".betterctx.yaml"

// Engine creates and destroys workspaces under a single root directory.
type Engine struct {
	root     string
	registry *registry.Registry
	cache    *repocache.Cache
	git      *gitx.Engine
	logger   *logging.Logger

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// New creates a workspace engine rooted at workspacesRoot.
func New(workspacesRoot string, reg *registry.Registry, cache *repocache.Cache, git *gitx.Engine, logger *logging.Logger) *Engine {
	return &Engine{
		root:     workspacesRoot,
		registry: reg,
		cache:    cache,
		git:      git,
		logger:   logger,
		locks:    make(map[string]*sync.Mutex),
	}
}

// EnsureOptions adjusts a single Ensure call.
type EnsureOptions struct {
	// Quiet suppresses clone/fetch progress logging.
	Quiet bool
}

// Ensure materialises the workspace for the given repository set, reusing
// an intact existing one. An existing directory missing an expected member
// worktree is treated as corrupt, torn down, and rebuilt.
func (e *Engine) Ensure(ctx context.Context, names []string, opts EnsureOptions) (domain.Workspace, error) {
	key, err := query.WorkspaceKey(names)
	if err != nil {
		return domain.Workspace{}, err
	}

	resources, err := e.registry.Resolve(query.SplitKey(key))
	if err != nil {
		return domain.Workspace{}, err
	}

	unlock := e.lockKey(key)
	defer unlock()

	// Refresh all cache entries concurrently; the cache serialises per name.
	g, gctx := errgroup.WithContext(ctx)
	for _, res := range resources {
		g.Go(func() error {
			return e.cache.EnsureFresh(gctx, res, repocache.Options{Quiet: opts.Quiet})
		})
	}

	if err := g.Wait(); err != nil {
		return domain.Workspace{}, err
	}

	wsPath := filepath.Join(e.root, key)
	members := buildMembers(resources)

	if _, err := os.Stat(wsPath); err == nil {
		if e.intact(wsPath, resources) {
			ws := domain.Workspace{Key: key, Path: wsPath, Members: members}
			if meta, metaErr := e.readMetadata(wsPath); metaErr == nil {
				ws.CreatedAt = meta.CreatedAt
			}

			return ws, nil
		}

		if e.logger != nil {
			e.logger.Warn("workspace is missing member worktrees, rebuilding", "key", key)
		}

		if err := e.teardown(ctx, key, wsPath); err != nil {
			return domain.Workspace{}, err
		}
	} else if !os.IsNotExist(err) {
		return domain.Workspace{}, cerrors.NewIOFailed("stat workspace", err)
	}

	ws := domain.Workspace{
		Key:       key,
		Path:      wsPath,
		Members:   members,
		CreatedAt: time.Now().UTC(),
	}

	if err := e.create(ctx, ws, resources); err != nil {
		return domain.Workspace{}, err
	}

	return ws, nil
}

// List enumerates existing workspace keys, sorted.
func (e *Engine) List() ([]string, error) {
	entries, err := os.ReadDir(e.root)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}

		return nil, cerrors.NewIOFailed("read workspaces root", err)
	}

	var keys []string

	for _, entry := range entries {
		if entry.IsDir() {
			keys = append(keys, entry.Name())
		}
	}

	sort.Strings(keys)

	return keys, nil
}

// Get returns the workspace record for an existing key.
func (e *Engine) Get(key string) (domain.Workspace, error) {
	wsPath := filepath.Join(e.root, key)

	if _, err := os.Stat(wsPath); err != nil {
		return domain.Workspace{}, cerrors.NewWorkspaceMissing(key)
	}

	ws := domain.Workspace{Key: key, Path: wsPath}

	if meta, err := e.readMetadata(wsPath); err == nil {
		ws.Members = meta.Members
		ws.CreatedAt = meta.CreatedAt
	} else {
		for _, name := range query.SplitKey(key) {
			ws.Members = append(ws.Members, domain.WorkspaceMember{Name: name, RelativePath: name})
		}
	}

	return ws, nil
}

// Clear removes the workspace for key: every member worktree registration
// is dropped from its central clone, then the directory is deleted.
func (e *Engine) Clear(ctx context.Context, key string) error {
	unlock := e.lockKey(key)
	defer unlock()

	wsPath := filepath.Join(e.root, key)

	if _, err := os.Stat(wsPath); err != nil {
		if os.IsNotExist(err) {
			return cerrors.NewWorkspaceMissing(key)
		}

		return cerrors.NewIOFailed("stat workspace", err)
	}

	return e.teardown(ctx, key, wsPath)
}

// ClearAll removes every workspace under the root.
func (e *Engine) ClearAll(ctx context.Context) error {
	keys, err := e.List()
	if err != nil {
		return err
	}

	for _, key := range keys {
		if err := e.Clear(ctx, key); err != nil {
			return err
		}
	}

	return nil
}

// lockKey acquires the per-key exclusive lock and returns its release func.
// Concurrent Ensure calls for the same set serialise here; both observe the
// resulting workspace.
func (e *Engine) lockKey(key string) func() {
	e.mu.Lock()

	lock, ok := e.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		e.locks[key] = lock
	}

	e.mu.Unlock()

	lock.Lock()

	return lock.Unlock
}

// intact reports whether every expected member worktree is present.
func (e *Engine) intact(wsPath string, resources []domain.Resource) bool {
	for _, res := range resources {
		if !e.git.IsWorktree(filepath.Join(wsPath, res.Name)) {
			return false
		}
	}

	return true
}

// create builds the workspace directory with one worktree per member.
// Mid-creation failure removes everything created in this attempt before
// surfacing, preserving the all-or-nothing invariant.
func (e *Engine) create(ctx context.Context, ws domain.Workspace, resources []domain.Resource) error {
	if err := os.MkdirAll(ws.Path, 0o755); err != nil {
		return cerrors.NewIOFailed("create workspace directory", err)
	}

	for i, res := range resources {
		if err := e.git.AddWorktree(ctx, res.Name, filepath.Join(ws.Path, res.Name), res.Branch); err != nil {
			e.rollback(ctx, ws.Path, resources[:i])

			return err
		}
	}

	if err := e.writeMetadata(ws); err != nil {
		e.rollback(ctx, ws.Path, resources)

		return err
	}

	if e.logger != nil {
		e.logger.Debug("workspace materialised", "key", ws.Key, "path", ws.Path, "members", len(ws.Members))
	}

	return nil
}

// rollback removes the worktrees created so far plus the workspace
// directory. Cleanup runs on a fresh context so a cancelled caller still
// leaves no partial workspace behind.
func (e *Engine) rollback(ctx context.Context, wsPath string, created []domain.Resource) {
	cleanupCtx := context.WithoutCancel(ctx)

	for _, res := range created {
		if err := e.git.RemoveWorktree(cleanupCtx, res.Name, filepath.Join(wsPath, res.Name)); err != nil && e.logger != nil {
			e.logger.Warn("failed to remove worktree during rollback", "name", res.Name, "error", err)
		}
	}

	if err := os.RemoveAll(wsPath); err != nil && e.logger != nil {
		e.logger.Warn("failed to remove partial workspace", "path", wsPath, "error", err)
	}
}

// teardown is rollback for a fully-built workspace, keyed by directory name.
func (e *Engine) teardown(ctx context.Context, key, wsPath string) error {
	for _, name := range query.SplitKey(key) {
		if err := e.git.RemoveWorktree(ctx, name, filepath.Join(wsPath, name)); err != nil {
			return err
		}

		if err := e.git.PruneWorktrees(ctx, name); err != nil && e.logger != nil {
			e.logger.Warn("failed to prune worktrees", "name", name, "error", err)
		}
	}

	if err := os.RemoveAll(wsPath); err != nil {
		return cerrors.NewIOFailed("remove workspace directory", err)
	}

	return nil
}

func buildMembers(resources []domain.Resource) []domain.WorkspaceMember {
	members := make([]domain.WorkspaceMember, 0, len(resources))

	for _, res := range resources {
		rel := res.Name
		if res.Subpath != "" {
			rel = path.Join(res.Name, res.Subpath)
		}

		members = append(members, domain.WorkspaceMember{
			Name:         res.Name,
			RelativePath: rel,
			Branch:       res.Branch,
			Notes:        res.Notes,
		})
	}

	return members
}

func (e *Engine) writeMetadata(ws domain.Workspace) error {
	data, err := yaml.Marshal(ws)
	if err != nil {
		return cerrors.NewIOFailed("encode workspace metadata", err)
	}

	if err := os.WriteFile(filepath.Join(ws.Path, metadataFileName), data, 0o644); err != nil {
		return cerrors.NewIOFailed("write workspace metadata", err)
	}

	return nil
}

func (e *Engine) readMetadata(wsPath string) (domain.Workspace, error) {
	data, err := os.ReadFile(filepath.Join(wsPath, metadataFileName))
	if err != nil {
		return domain.Workspace{}, cerrors.NewIOFailed("read workspace metadata", err)
	}

	var ws domain.Workspace
	if err := yaml.Unmarshal(data, &ws); err != nil {
		return domain.Workspace{}, cerrors.NewIOFailed("decode workspace metadata", err)
	}

	return ws, nil
}
