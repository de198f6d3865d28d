// Package domain contains core domain models for betterctx.
//
// Domain types are pure data with no external dependencies, making them
// safe to use across all layers of the architecture.
package domain

import "time"

// Resource is a named source of context: a git repository tracked by the
// registry. Names are unique, lowercase, and match ^[a-z0-9_-]+$.
type Resource struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Branch  string `json:"branch"`
	Notes   string `json:"specialNotes,omitempty"`
	Subpath string `json:"searchPath,omitempty"`
}

// WorkspaceMember is one repository inside a materialised workspace.
// RelativePath is the member's path relative to the workspace root,
// including the resource's search subpath when one is configured.
type WorkspaceMember struct {
	Name         string `yaml:"name"`
	RelativePath string `yaml:"relative_path"`
	Branch       string `yaml:"branch"`
	Notes        string `yaml:"notes,omitempty"`
}

// Workspace is a composite directory holding one git worktree per member.
// Key is the canonical `+`-joined sorted identifier for the member set.
type Workspace struct {
	Key       string            `yaml:"key"`
	Path      string            `yaml:"-"`
	Members   []WorkspaceMember `yaml:"members"`
	CreatedAt time.Time         `yaml:"created_at"`
}

// MemberNames returns the member names in workspace order. Members are
// stored in key order, so the result is already sorted.
func (w Workspace) MemberNames() []string {
	names := make([]string, 0, len(w.Members))
	for _, m := range w.Members {
		names = append(names, m.Name)
	}

	return names
}
