// Command betterctx answers natural-language questions against one or more
// source-code repositories by handing a composite worktree workspace to a
// coding-agent backend.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/davis7dotsh/betterctx/internal/agent"
	"github.com/davis7dotsh/betterctx/internal/config"
	"github.com/davis7dotsh/betterctx/internal/gitx"
	"github.com/davis7dotsh/betterctx/internal/logging"
	"github.com/davis7dotsh/betterctx/internal/registry"
	"github.com/davis7dotsh/betterctx/internal/repocache"
	"github.com/davis7dotsh/betterctx/internal/session"
	"github.com/davis7dotsh/betterctx/internal/workspace"
)

var version = "dev"

// app holds the wired application services for one command invocation.
type app struct {
	Config       *config.Config
	Logger       *logging.Logger
	Registry     *registry.Registry
	Git          *gitx.Engine
	Cache        *repocache.Cache
	Workspaces   *workspace.Engine
	Orchestrator *session.Orchestrator
}

func buildApp(cmd *cobra.Command) (*app, error) {
	configPath, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger := logging.New(debug || cfg.Debug)

	reg, err := registry.Load(cfg.RegistryPath())
	if err != nil {
		return nil, err
	}

	retry := gitx.DefaultRetryConfig()
	if parsed, err := cfg.Git.Retry.Parse(); err == nil {
		retry = gitx.RetryConfig(parsed)
	}

	git := gitx.NewWithRetry(cfg.ReposRoot, retry, logger)
	cache := repocache.New(git, logger)
	workspaces := workspace.New(cfg.WorkspacesRoot, reg, cache, git, logger)

	launcher := &agent.ProcessLauncher{Command: cfg.Agent.Command, Logger: logger}
	orchestrator := session.New(
		workspaces,
		launcher,
		cfg.Agent.Provider,
		cfg.Agent.Model,
		cfg.Agent.BasePort,
		cfg.Agent.MaxPortAttempts,
		logger,
	)

	return &app{
		Config:       cfg,
		Logger:       logger,
		Registry:     reg,
		Git:          git,
		Cache:        cache,
		Workspaces:   workspaces,
		Orchestrator: orchestrator,
	}, nil
}

var rootCmd = &cobra.Command{
	Use:           "betterctx",
	Short:         "Ask questions across multiple repositories",
	Long:          "betterctx assembles a workspace of git worktrees for the repositories you mention and lets a coding agent answer questions against them.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "path to config file")
	rootCmd.PersistentFlags().Bool("debug", false, "enable debug logging")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(repoCmd)
	rootCmd.AddCommand(workspaceCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the betterctx version",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(version)
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
