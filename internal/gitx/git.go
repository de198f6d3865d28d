// Package gitx wraps the git operations betterctx performs against the
// central clone cache and workspace worktrees.
//
// go-git (github.com/go-git/go-git/v5) covers clone and fetch. Worktree
// add/remove/prune go through the git CLI via [Engine.RunCommand]: go-git
// cannot create a worktree detached at an arbitrary remote-tracking ref,
// and worktree removal is unsupported entirely.
package gitx

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-git/go-git/v5"
	gitconfig "github.com/go-git/go-git/v5/config"

	cerrors "github.com/davis7dotsh/betterctx/internal/errors"
	"github.com/davis7dotsh/betterctx/internal/logging"
)

// DefaultNetworkTimeout is the default timeout for clone and fetch.
const DefaultNetworkTimeout = 5 * time.Minute

// DefaultLocalTimeout is the default timeout for local git operations.
const DefaultLocalTimeout = 30 * time.Second

// CommandResult holds the output and exit code from a git command execution.
type CommandResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Engine performs git operations for a central repos directory.
type Engine struct {
	ReposRoot   string
	RetryConfig RetryConfig
	Logger      *logging.Logger
}

// New creates an Engine with default retry configuration.
func New(reposRoot string, logger *logging.Logger) *Engine {
	return &Engine{
		ReposRoot:   reposRoot,
		RetryConfig: DefaultRetryConfig(),
		Logger:      logger,
	}
}

// NewWithRetry creates an Engine with custom retry configuration.
func NewWithRetry(reposRoot string, retryCfg RetryConfig, logger *logging.Logger) *Engine {
	return &Engine{
		ReposRoot:   reposRoot,
		RetryConfig: retryCfg,
		Logger:      logger,
	}
}

// ClonePath returns the cache location for a named repository.
func (g *Engine) ClonePath(name string) string {
	return filepath.Join(g.ReposRoot, name)
}

// HasRepo reports whether a cache entry directory exists for name.
func (g *Engine) HasRepo(name string) bool {
	_, err := os.Stat(g.ClonePath(name))

	return err == nil
}

// Clone creates the central clone for name. The working copy is never read
// directly (all reads go through worktrees), so the clone is bare. Partial
// clones are removed before a retry or before surfacing the error.
func (g *Engine) Clone(ctx context.Context, url, name string) error {
	path := g.ClonePath(name)

	ctx, cancel := g.withNetworkTimeout(ctx)
	defer cancel()

	err := WithRetryNoResult(ctx, g.RetryConfig, g.Logger, func() error {
		_, cloneErr := git.PlainCloneContext(ctx, path, true, &git.CloneOptions{
			URL: url,
		})
		if cloneErr != nil {
			if cleanupErr := os.RemoveAll(path); cleanupErr != nil && g.Logger != nil {
				g.Logger.Warn("failed to cleanup partial clone", "path", path, "error", cleanupErr)
			}
		}

		return cloneErr
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return cerrors.NewOperationCancelled("clone", name)
		}

		if errors.Is(err, context.DeadlineExceeded) {
			return cerrors.NewOperationTimeout("clone", name)
		}

		return cerrors.WrapGitError(err, fmt.Sprintf("clone %s", logging.RedactSensitive(url)))
	}

	return nil
}

// Fetch updates the central clone's remote-tracking refs from origin.
func (g *Engine) Fetch(ctx context.Context, name string) error {
	path := g.ClonePath(name)

	r, err := git.PlainOpen(path)
	if err != nil {
		return cerrors.WrapGitError(err, "open repo")
	}

	remote, err := r.Remote("origin")
	if err != nil {
		return cerrors.WrapGitError(err, "resolve origin remote")
	}

	ctx, cancel := g.withNetworkTimeout(ctx)
	defer cancel()

	refSpec := gitconfig.RefSpec("+refs/heads/*:refs/remotes/origin/*")

	fetchErr := WithRetryNoResult(ctx, g.RetryConfig, g.Logger, func() error {
		return remote.FetchContext(ctx, &git.FetchOptions{
			RefSpecs: []gitconfig.RefSpec{refSpec},
			Prune:    true,
		})
	})
	if fetchErr != nil && !errors.Is(fetchErr, git.NoErrAlreadyUpToDate) {
		if errors.Is(fetchErr, context.Canceled) {
			return cerrors.NewOperationCancelled("fetch", name)
		}

		if errors.Is(fetchErr, context.DeadlineExceeded) {
			return cerrors.NewOperationTimeout("fetch", name)
		}

		return cerrors.WrapGitError(fetchErr, "fetch")
	}

	return nil
}

// OriginURL returns the first URL of the clone's origin remote. An empty
// string with a nil error is never returned: a clone without an origin
// remote is reported as an error.
func (g *Engine) OriginURL(name string) (string, error) {
	r, err := git.PlainOpen(g.ClonePath(name))
	if err != nil {
		return "", cerrors.WrapGitError(err, "open repo")
	}

	remote, err := r.Remote("origin")
	if err != nil {
		return "", cerrors.WrapGitError(err, "resolve origin remote")
	}

	urls := remote.Config().URLs
	if len(urls) == 0 {
		return "", cerrors.WrapGitError(fmt.Errorf("origin remote has no URL"), "resolve origin remote")
	}

	return urls[0], nil
}

// AddWorktree creates a worktree of the named central clone at worktreePath,
// checked out detached at origin/<branch>. Detached HEADs keep the central
// clone's branch namespace untouched no matter how many workspaces share it.
func (g *Engine) AddWorktree(ctx context.Context, name, worktreePath, branch string) error {
	ctx, cancel := g.withLocalTimeout(ctx)
	defer cancel()

	ref := "origin/" + branch

	result, err := g.RunCommand(ctx, g.ClonePath(name), "worktree", "add", "--detach", worktreePath, ref)
	if err != nil {
		return err
	}

	if result.ExitCode != 0 {
		return cerrors.NewCommandFailed(
			fmt.Sprintf("git worktree add --detach %s %s", worktreePath, ref),
			fmt.Errorf("exit code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr)),
		)
	}

	return nil
}

// RemoveWorktree removes a worktree registration from the named central
// clone. Already-removed worktrees and missing clones are tolerated so
// concurrent clears race benignly.
func (g *Engine) RemoveWorktree(ctx context.Context, name, worktreePath string) error {
	path := g.ClonePath(name)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	ctx, cancel := g.withLocalTimeout(ctx)
	defer cancel()

	result, err := g.RunCommand(ctx, path, "worktree", "remove", "--force", worktreePath)
	if err != nil {
		return err
	}

	// Exit code 128 means the worktree is unknown or already gone.
	if result.ExitCode != 0 && result.ExitCode != 128 {
		return cerrors.NewCommandFailed(
			fmt.Sprintf("git worktree remove %s", worktreePath),
			fmt.Errorf("exit code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr)),
		)
	}

	return nil
}

// PruneWorktrees drops stale worktree registrations from the named clone.
func (g *Engine) PruneWorktrees(ctx context.Context, name string) error {
	path := g.ClonePath(name)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	ctx, cancel := g.withLocalTimeout(ctx)
	defer cancel()

	result, err := g.RunCommand(ctx, path, "worktree", "prune")
	if err != nil {
		return err
	}

	if result.ExitCode != 0 {
		return cerrors.NewCommandFailed("git worktree prune",
			fmt.Errorf("exit code %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr)))
	}

	return nil
}

// IsWorktree reports whether path is a linked git worktree (its .git is a
// gitdir pointer file, not a directory).
func (g *Engine) IsWorktree(path string) bool {
	info, err := os.Stat(filepath.Join(path, ".git"))

	return err == nil && !info.IsDir()
}

// RunCommand executes a git command in the specified repository path. It is
// the escape hatch for worktree operations go-git does not support. The git
// binary is hardcoded and arguments are passed as separate parameters.
func (g *Engine) RunCommand(ctx context.Context, repoPath string, args ...string) (*CommandResult, error) {
	if len(args) == 0 {
		return nil, cerrors.NewInvalidArgument("args", "git command requires at least one argument")
	}

	cmdArgs := append([]string{"-C", repoPath}, args...)
	cmd := exec.CommandContext(ctx, "git", cmdArgs...)

	var stdout, stderr strings.Builder

	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	result := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		ExitCode: 0,
	}

	if err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, cerrors.NewOperationCancelled("git command", strings.Join(args, " "))
		}

		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, cerrors.NewOperationTimeout("git command", strings.Join(args, " "))
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			return nil, cerrors.NewCommandFailed("git", err)
		}
	}

	return result, nil
}

func (g *Engine) withNetworkTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, DefaultNetworkTimeout)
}

func (g *Engine) withLocalTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if _, ok := ctx.Deadline(); ok {
		return ctx, func() {}
	}

	return context.WithTimeout(ctx, DefaultLocalTimeout)
}
