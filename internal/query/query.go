// Package query parses free-form questions into a canonical repository
// set and a cleaned prompt, and computes stable workspace keys.
package query

import (
	"regexp"
	"sort"
	"strings"

	cerrors "github.com/davis7dotsh/betterctx/internal/errors"
)

// mentionPattern extracts @name tokens. A trailing @version segment is a
// reserved extension and is discarded.
var mentionPattern = regexp.MustCompile(`@([a-zA-Z0-9_-]+)(@[a-zA-Z0-9_.-]+)?`)

// whitespaceRuns collapses the holes left behind by stripped mentions.
var whitespaceRuns = regexp.MustCompile(`\s+`)

// KeySeparator joins sorted member names into a workspace key. Resource
// names can never contain it.
const KeySeparator = "+"

// Parsed is the result of splitting a raw question.
type Parsed struct {
	// Repos is the canonical ordered set of mentioned repositories:
	// lowercased, deduplicated, sorted by code point.
	Repos []string
	// Prompt is the question with all mentions removed and whitespace
	// collapsed.
	Prompt string
}

// Parse extracts @repo mentions from input and returns the canonical set
// plus the cleaned prompt. Mentions referring to unknown repositories are
// not filtered here; resolution is the workspace engine's responsibility.
func Parse(input string) Parsed {
	var names []string

	for _, m := range mentionPattern.FindAllStringSubmatch(input, -1) {
		names = append(names, m[1])
	}

	prompt := mentionPattern.ReplaceAllString(input, " ")
	prompt = strings.TrimSpace(whitespaceRuns.ReplaceAllString(prompt, " "))

	return Parsed{
		Repos:  Merge(names),
		Prompt: prompt,
	}
}

// Merge flattens the provided name lists into one canonical ordered set:
// lowercased, deduplicated, sorted lexicographically by code point.
func Merge(lists ...[]string) []string {
	seen := make(map[string]struct{})

	var out []string

	for _, list := range lists {
		for _, name := range list {
			name = strings.ToLower(strings.TrimSpace(name))
			if name == "" {
				continue
			}

			if _, ok := seen[name]; ok {
				continue
			}

			seen[name] = struct{}{}
			out = append(out, name)
		}
	}

	sort.Strings(out)

	return out
}

// WorkspaceKey returns the canonical key for a non-empty repository set:
// sorted lowercase names joined with "+". The same set always yields the
// same key regardless of input order.
func WorkspaceKey(set []string) (string, error) {
	canonical := Merge(set)
	if len(canonical) == 0 {
		return "", cerrors.NewEmptyRepoSet()
	}

	return strings.Join(canonical, KeySeparator), nil
}

// SplitKey parses a workspace key back into its member names.
func SplitKey(key string) []string {
	if key == "" {
		return nil
	}

	return strings.Split(key, KeySeparator)
}

// Render produces the canonical textual form of a parsed question: each
// repository prefixed with @, then the prompt.
func Render(repos []string, prompt string) string {
	parts := make([]string, 0, len(repos)+1)
	for _, r := range Merge(repos) {
		parts = append(parts, "@"+r)
	}

	if prompt != "" {
		parts = append(parts, prompt)
	}

	return strings.Join(parts, " ")
}
