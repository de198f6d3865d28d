package query

import (
	"errors"
	"regexp"
	"testing"

	cerrors "github.com/davis7dotsh/betterctx/internal/errors"
)

func TestParse(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		input      string
		wantRepos  []string
		wantPrompt string
	}{
		{
			name:       "two mentions with prompt",
			input:      "@svelte @daytona how do stores work?",
			wantRepos:  []string{"daytona", "svelte"},
			wantPrompt: "how do stores work?",
		},
		{
			name:       "case folding and dedupe",
			input:      "@Svelte @SVELTE @daytona x",
			wantRepos:  []string{"daytona", "svelte"},
			wantPrompt: "x",
		},
		{
			name:       "mentions only",
			input:      "@a @b @A",
			wantRepos:  []string{"a", "b"},
			wantPrompt: "",
		},
		{
			name:       "mention in the middle",
			input:      "how does @svelte handle reactivity in components?",
			wantRepos:  []string{"svelte"},
			wantPrompt: "how does handle reactivity in components?",
		},
		{
			name:       "version suffix ignored",
			input:      "@svelte@v5 runes?",
			wantRepos:  []string{"svelte"},
			wantPrompt: "runes?",
		},
		{
			name:       "no mentions",
			input:      "  plain question  ",
			wantRepos:  nil,
			wantPrompt: "plain question",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := Parse(tt.input)

			if len(got.Repos) != len(tt.wantRepos) {
				t.Fatalf("repos = %v, want %v", got.Repos, tt.wantRepos)
			}

			for i := range tt.wantRepos {
				if got.Repos[i] != tt.wantRepos[i] {
					t.Errorf("repos[%d] = %q, want %q", i, got.Repos[i], tt.wantRepos[i])
				}
			}

			if got.Prompt != tt.wantPrompt {
				t.Errorf("prompt = %q, want %q", got.Prompt, tt.wantPrompt)
			}
		})
	}
}

func TestParsePromptNeverContainsMention(t *testing.T) {
	t.Parallel()

	mention := regexp.MustCompile(`@[a-zA-Z0-9_-]+`)

	inputs := []string{
		"@a@b@c tangled",
		"@x@1.2.3 pinned",
		"email-like foo@bar stays? @repo",
		"@a @b @c @d @e",
	}

	for _, input := range inputs {
		if got := Parse(input).Prompt; mention.MatchString(got) {
			t.Errorf("Parse(%q).Prompt = %q still contains a mention", input, got)
		}
	}
}

func TestWorkspaceKey(t *testing.T) {
	t.Parallel()

	t.Run("permutation invariance", func(t *testing.T) {
		t.Parallel()

		a, err := WorkspaceKey([]string{"svelte", "daytona"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		b, err := WorkspaceKey([]string{"daytona", "svelte"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if a != b || a != "daytona+svelte" {
			t.Errorf("keys differ: %q vs %q", a, b)
		}
	})

	t.Run("empty set rejected", func(t *testing.T) {
		t.Parallel()

		_, err := WorkspaceKey(nil)
		if !errors.Is(err, cerrors.EmptyRepoSet) {
			t.Errorf("expected EmptyRepoSet, got %v", err)
		}

		_, err = WorkspaceKey([]string{"  ", ""})
		if !errors.Is(err, cerrors.EmptyRepoSet) {
			t.Errorf("expected EmptyRepoSet for blank names, got %v", err)
		}
	})

	t.Run("case folded", func(t *testing.T) {
		t.Parallel()

		key, err := WorkspaceKey([]string{"Svelte", "DAYTONA"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}

		if key != "daytona+svelte" {
			t.Errorf("key = %q", key)
		}
	})
}

func TestSplitKeyRoundTrip(t *testing.T) {
	t.Parallel()

	key, err := WorkspaceKey([]string{"b", "a", "c"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	names := SplitKey(key)
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Errorf("SplitKey(%q) = %v", key, names)
	}

	if SplitKey("") != nil {
		t.Error("SplitKey of empty string should be nil")
	}
}

func TestRenderParseRoundTrip(t *testing.T) {
	t.Parallel()

	parsed := Parsed{Repos: []string{"daytona", "svelte"}, Prompt: "how do stores work?"}
	rendered := Render(parsed.Repos, parsed.Prompt)

	if rendered != "@daytona @svelte how do stores work?" {
		t.Fatalf("rendered = %q", rendered)
	}

	again := Parse(rendered)
	if len(again.Repos) != 2 || again.Repos[0] != "daytona" || again.Repos[1] != "svelte" {
		t.Errorf("round-trip repos = %v", again.Repos)
	}

	if again.Prompt != parsed.Prompt {
		t.Errorf("round-trip prompt = %q, want %q", again.Prompt, parsed.Prompt)
	}
}

func TestMerge(t *testing.T) {
	t.Parallel()

	got := Merge([]string{"B", "a"}, []string{"b", "c", "a"})
	want := []string{"a", "b", "c"}

	if len(got) != len(want) {
		t.Fatalf("Merge = %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Merge[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
