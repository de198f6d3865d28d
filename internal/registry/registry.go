// Package registry persists and looks up resource definitions: the mapping
// from repository names to remote origins and branches.
package registry

import (
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"github.com/davis7dotsh/betterctx/internal/domain"
	cerrors "github.com/davis7dotsh/betterctx/internal/errors"
)

// namePattern is the only shape a resource name may take. Names never
// contain '+', which keeps workspace keys parseable.
var namePattern = regexp.MustCompile(`^[a-z0-9_-]+$`)

// document is the on-disk shape: a JSON object whose "resources" field
// holds the array of resources.
type document struct {
	Resources []domain.Resource `json:"resources"`
}

// Registry is the in-memory view of the resource document. It loads once
// at construction and writes the whole document back on every mutation.
type Registry struct {
	mu        sync.Mutex
	path      string
	resources []domain.Resource
}

// Load reads the registry document at path. A missing file yields an empty
// registry; the file is created on the first mutation.
func Load(path string) (*Registry, error) {
	r := &Registry{path: path}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return r, nil
		}

		return nil, cerrors.NewIOFailed("read resource registry", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, cerrors.NewConfigInvalid("resource registry is not valid JSON: " + err.Error())
	}

	r.resources = doc.Resources

	return r, nil
}

// List returns all resources in insertion order.
func (r *Registry) List() []domain.Resource {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]domain.Resource, len(r.resources))
	copy(out, r.resources)

	return out
}

// Get looks up a resource by name.
func (r *Registry) Get(name string) (domain.Resource, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, res := range r.resources {
		if res.Name == name {
			return res, nil
		}
	}

	return domain.Resource{}, cerrors.NewUnknownResource(name)
}

// Add registers a new resource. Names must match ^[a-z0-9_-]+$ and must not
// collide case-insensitively with an existing name. The branch defaults to
// "main" when unset.
func (r *Registry) Add(res domain.Resource) (domain.Resource, error) {
	if !namePattern.MatchString(res.Name) {
		return domain.Resource{}, cerrors.NewInvalidResourceName(res.Name)
	}

	if strings.TrimSpace(res.URL) == "" {
		return domain.Resource{}, cerrors.NewInvalidArgument("url", "a git-clonable URL is required")
	}

	if res.Branch == "" {
		res.Branch = "main"
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.resources {
		if strings.EqualFold(existing.Name, res.Name) {
			return domain.Resource{}, cerrors.NewDuplicateResource(existing.Name)
		}
	}

	r.resources = append(r.resources, res)

	if err := r.writeLocked(); err != nil {
		r.resources = r.resources[:len(r.resources)-1]

		return domain.Resource{}, err
	}

	return res, nil
}

// Remove deletes a resource by name. The cached clone is never touched.
func (r *Registry) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i, res := range r.resources {
		if res.Name == name {
			original := r.resources

			updated := make([]domain.Resource, 0, len(original)-1)
			updated = append(updated, original[:i]...)
			updated = append(updated, original[i+1:]...)
			r.resources = updated

			if err := r.writeLocked(); err != nil {
				r.resources = original

				return err
			}

			return nil
		}
	}

	return cerrors.NewUnknownResource(name)
}

// Resolve maps a set of names to resources, failing on the first unknown name.
func (r *Registry) Resolve(names []string) ([]domain.Resource, error) {
	out := make([]domain.Resource, 0, len(names))

	for _, name := range names {
		res, err := r.Get(name)
		if err != nil {
			return nil, err
		}

		out = append(out, res)
	}

	return out, nil
}

// writeLocked persists the document via temp file + rename so readers never
// observe a partially written registry. Caller holds r.mu.
func (r *Registry) writeLocked() error {
	if err := os.MkdirAll(filepath.Dir(r.path), 0o755); err != nil {
		return cerrors.NewIOFailed("create registry directory", err)
	}

	doc := document{Resources: r.resources}
	if doc.Resources == nil {
		doc.Resources = []domain.Resource{}
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return cerrors.NewIOFailed("encode resource registry", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(r.path), ".resources-*.json")
	if err != nil {
		return cerrors.NewIOFailed("create registry temp file", err)
	}

	tmpName := tmp.Name()

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		os.Remove(tmpName)

		return cerrors.NewIOFailed("write resource registry", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)

		return cerrors.NewIOFailed("close registry temp file", err)
	}

	if err := os.Rename(tmpName, r.path); err != nil {
		os.Remove(tmpName)

		return cerrors.NewIOFailed("replace resource registry", err)
	}

	return nil
}
