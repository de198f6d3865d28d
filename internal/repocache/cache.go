// Package repocache keeps the central per-repository clones fresh and
// serialises access to each of them.
//
// One in-flight clone-or-fetch is allowed per repository name; additional
// callers for the same name await the first result. Different names may
// refresh in parallel.
package repocache

import (
	"context"
	"errors"

	"golang.org/x/sync/singleflight"

	"github.com/davis7dotsh/betterctx/internal/domain"
	cerrors "github.com/davis7dotsh/betterctx/internal/errors"
	"github.com/davis7dotsh/betterctx/internal/gitx"
	"github.com/davis7dotsh/betterctx/internal/logging"
)

// Cache owns <reposDir>/<name> for every known resource. Nothing else may
// mutate those paths.
type Cache struct {
	engine *gitx.Engine
	group  singleflight.Group
	logger *logging.Logger
}

// Options adjusts a single EnsureFresh call.
type Options struct {
	// Quiet suppresses per-repository progress logging.
	Quiet bool
}

// New creates a Cache over the given git engine.
func New(engine *gitx.Engine, logger *logging.Logger) *Cache {
	return &Cache{engine: engine, logger: logger}
}

// Path returns the on-disk location of the cache entry for name.
func (c *Cache) Path(name string) string {
	return c.engine.ClonePath(name)
}

// EnsureFresh guarantees the cache entry for res exists and has up-to-date
// remote-tracking refs. A missing entry is cloned; an existing one is
// fetched. The entry's origin remote is verified against the registered URL
// first: a mismatch is RepoCorrupt and fatal for this request (deletion and
// re-clone is left to the user).
//
// Concurrent calls for the same name coalesce into one clone-or-fetch;
// every caller observes its outcome.
func (c *Cache) EnsureFresh(ctx context.Context, res domain.Resource, opts Options) error {
	_, err, _ := c.group.Do(res.Name, func() (interface{}, error) {
		return nil, c.refresh(ctx, res, opts)
	})

	return err
}

func (c *Cache) refresh(ctx context.Context, res domain.Resource, opts Options) error {
	if !c.engine.HasRepo(res.Name) {
		if !opts.Quiet && c.logger != nil {
			c.logger.Info("cloning repository", "name", res.Name, "url", logging.RedactSensitive(res.URL))
		}

		if err := c.engine.Clone(ctx, res.URL, res.Name); err != nil {
			return c.classify(err, "clone", res.Name)
		}

		return nil
	}

	originURL, err := c.engine.OriginURL(res.Name)
	if err != nil {
		return cerrors.NewRepoCorrupt(res.Name, res.URL, "<unreadable>")
	}

	if originURL != res.URL {
		return cerrors.NewRepoCorrupt(res.Name, res.URL, originURL)
	}

	if !opts.Quiet && c.logger != nil {
		c.logger.Info("fetching repository", "name", res.Name)
	}

	if err := c.engine.Fetch(ctx, res.Name); err != nil {
		return c.classify(err, "fetch", res.Name)
	}

	return nil
}

// classify maps engine failures onto the cache's error surface: anything
// short of cancellation becomes NetworkError so callers know a retry is
// their call to make.
func (c *Cache) classify(err error, operation, name string) error {
	var typed *cerrors.Error
	if errors.As(err, &typed) && typed.Code == cerrors.ErrOperationCancelled {
		return err
	}

	return cerrors.WrapNetwork(operation, name, err)
}
