package main

import (
	"os"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/davis7dotsh/betterctx/internal/domain"
	"github.com/davis7dotsh/betterctx/internal/output"
	"github.com/davis7dotsh/betterctx/internal/repocache"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage registered repositories",
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List registered repositories",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		resources := a.Registry.List()

		jsonOutput, _ := cmd.Flags().GetBool("json")
		if jsonOutput {
			return output.PrintJSON(map[string]interface{}{"resources": resources})
		}

		if len(resources) == 0 {
			output.Info("No repositories registered. Add one with: betterctx repo add <name> <url>")

			return nil
		}

		table := tablewriter.NewWriter(os.Stdout)
		table.Header("Name", "URL", "Branch", "Subpath", "Cached")

		for _, res := range resources {
			cached := ""
			if a.Git.HasRepo(res.Name) {
				cached = "yes"
			}

			if err := table.Append(res.Name, res.URL, res.Branch, res.Subpath, cached); err != nil {
				return err
			}
		}

		return table.Render()
	},
}

var repoAddCmd = &cobra.Command{
	Use:   "add <name> <url>",
	Short: "Register a repository",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		branch, _ := cmd.Flags().GetString("branch")
		notes, _ := cmd.Flags().GetString("notes")
		subpath, _ := cmd.Flags().GetString("subpath")

		res, err := a.Registry.Add(domain.Resource{
			Name:    args[0],
			URL:     args[1],
			Branch:  branch,
			Notes:   notes,
			Subpath: subpath,
		})
		if err != nil {
			return err
		}

		output.Success("Registered repository", res.Name)

		return nil
	},
}

var repoRemoveCmd = &cobra.Command{
	Use:   "remove <name>",
	Short: "Remove a repository from the registry (keeps the cached clone)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		if err := a.Registry.Remove(args[0]); err != nil {
			return err
		}

		output.Success("Removed repository", args[0])

		return nil
	},
}

var repoFetchCmd = &cobra.Command{
	Use:   "fetch [name…]",
	Short: "Refresh cached clones (all registered repositories by default)",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := buildApp(cmd)
		if err != nil {
			return err
		}

		var resources []domain.Resource

		if len(args) == 0 {
			resources = a.Registry.List()
		} else {
			resources, err = a.Registry.Resolve(args)
			if err != nil {
				return err
			}
		}

		for _, res := range resources {
			if err := a.Cache.EnsureFresh(cmd.Context(), res, repocache.Options{}); err != nil {
				return err
			}
		}

		output.Infof("Refreshed %d repositories", len(resources))

		return nil
	},
}

func init() {
	repoAddCmd.Flags().String("branch", "", "tracked remote branch (default: main)")
	repoAddCmd.Flags().String("notes", "", "free-text notes passed to the agent")
	repoAddCmd.Flags().String("subpath", "", "restrict the agent to a subdirectory of the checkout")
	repoListCmd.Flags().Bool("json", false, "output as JSON")

	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoAddCmd)
	repoCmd.AddCommand(repoRemoveCmd)
	repoCmd.AddCommand(repoFetchCmd)
}
