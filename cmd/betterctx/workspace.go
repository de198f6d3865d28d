package main

import (
	"github.com/spf13/cobra"

	"github.com/davis7dotsh/betterctx/internal/output"
	"github.com/davis7dotsh/betterctx/internal/query"
	"github.com/davis7dotsh/betterctx/internal/workspace"
)

var workspaceCmd = &cobra.Command{
	Use:     "workspace",
	Aliases: []string{"ws"},
	Short:   "Manage materialised workspaces",
}

var workspaceListCmd = &cobra.Command{
	Use:   "list",
	Short: "List workspaces",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		keys, err := a.Workspaces.List()
		if err != nil {
			return err
		}

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.PrintJSON(map[string]interface{}{"workspaces": keys})
		}

		if len(keys) == 0 {
			output.Info("No workspaces.")

			return nil
		}

		for _, key := range keys {
			output.Info(key)
		}

		return nil
	},
}

var workspaceEnsureCmd = &cobra.Command{
	Use:   "ensure <name> [name…]",
	Short: "Materialise the workspace for a repository set without asking anything",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		ws, err := a.Workspaces.Ensure(cmd.Context(), args, workspace.EnsureOptions{})
		if err != nil {
			return err
		}

		output.Success("Workspace ready at", ws.Path)

		return nil
	},
}

var workspaceClearCmd = &cobra.Command{
	Use:   "clear <key|name…>",
	Short: "Remove a workspace and its worktree registrations",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		// Accept either a full key or the member names that form one.
		key := args[0]
		if len(args) > 1 {
			key, err = query.WorkspaceKey(args)
			if err != nil {
				return err
			}
		}

		if err := a.Workspaces.Clear(cmd.Context(), key); err != nil {
			return err
		}

		output.Success("Cleared workspace", key)

		return nil
	},
}

var workspaceClearAllCmd = &cobra.Command{
	Use:   "clear-all",
	Short: "Remove every workspace",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		if err := a.Workspaces.ClearAll(cmd.Context()); err != nil {
			return err
		}

		output.Info("Cleared all workspaces.")

		return nil
	},
}

func init() {
	workspaceListCmd.Flags().Bool("json", false, "output as JSON")

	workspaceCmd.AddCommand(workspaceListCmd)
	workspaceCmd.AddCommand(workspaceEnsureCmd)
	workspaceCmd.AddCommand(workspaceClearCmd)
	workspaceCmd.AddCommand(workspaceClearAllCmd)
}
