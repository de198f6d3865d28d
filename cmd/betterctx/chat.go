package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/davis7dotsh/betterctx/internal/agent"
	cerrors "github.com/davis7dotsh/betterctx/internal/errors"
	"github.com/davis7dotsh/betterctx/internal/output"
	"github.com/davis7dotsh/betterctx/internal/query"
)

var chatCmd = &cobra.Command{
	Use:   "chat @repo [@repo…]",
	Short: "Start a thread that reuses one agent session across prompts",
	Long:  "Reads questions from stdin line by line. The agent session and its workspace stay alive between prompts, so follow-up questions keep their context. Exit with ctrl-d or an empty line.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		repos := query.Parse(strings.Join(args, " ")).Repos
		if len(repos) == 0 {
			return cerrors.NewEmptyRepoSet()
		}

		sess, err := a.Orchestrator.Start(cmd.Context(), repos)
		if err != nil {
			return err
		}
		defer sess.EndSession()

		output.Infof("chatting about %s (empty line to quit)", strings.Join(repos, ", "))

		scanner := bufio.NewScanner(os.Stdin)

		for {
			fmt.Print("> ")

			if !scanner.Scan() {
				break
			}

			question := strings.TrimSpace(scanner.Text())
			if question == "" {
				break
			}

			stream, err := sess.Prompt(cmd.Context(), question, nil)
			if err != nil {
				return err
			}

			for ev := range stream.Events() {
				if ev.Type == agent.EventMessagePartUpdated && ev.Part != nil && ev.Part.Type == "text" {
					output.Print(ev.Part.Text)
				}
			}

			if err := stream.Err(); err != nil {
				return err
			}

			output.Info("")
		}

		return scanner.Err()
	},
}
