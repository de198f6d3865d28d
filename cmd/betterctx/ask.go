package main

import (
	"strings"

	"github.com/spf13/cobra"

	cerrors "github.com/davis7dotsh/betterctx/internal/errors"
	"github.com/davis7dotsh/betterctx/internal/output"
	"github.com/davis7dotsh/betterctx/internal/query"
)

var askCmd = &cobra.Command{
	Use:   "ask \"@repo [@repo…] question\"",
	Short: "Ask a single question against the mentioned repositories",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		explicit, _ := cmd.Flags().GetStringSlice("repo")

		parsed := query.Parse(strings.Join(args, " "))
		repos := query.Merge(explicit, parsed.Repos)

		if len(repos) == 0 {
			return cerrors.NewEmptyRepoSet()
		}

		if strings.TrimSpace(parsed.Prompt) == "" {
			return cerrors.NewInvalidArgument("question", "the question text is empty after removing mentions")
		}

		answer, err := a.Orchestrator.Ask(cmd.Context(), repos, parsed.Prompt)
		if err != nil {
			return err
		}

		output.Print(answer)

		if !strings.HasSuffix(answer, "\n") {
			output.Info("")
		}

		return nil
	},
}

func init() {
	askCmd.Flags().StringSlice("repo", nil, "repository to include (repeatable, additive with @mentions)")
}
