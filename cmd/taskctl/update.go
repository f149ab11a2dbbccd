package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskmesh/resolver/pkg/tasks/schema"
	"github.com/taskmesh/resolver/pkg/tasks/source"
	"github.com/taskmesh/resolver/pkg/tasks/update"
)

var (
	includePrerelease bool
	updatePolicyFlag  string
)

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Check for and apply task updates",
}

var updateCheckCmd = &cobra.Command{
	Use:   "check <name@version>",
	Short: "Check whether a newer version of a task is available",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := schema.ParseTaskReference(args[0])
		if err != nil {
			return err
		}

		checker, err := buildChecker()
		if err != nil {
			return err
		}

		info, err := checker.CheckUpdate(ref.Name, ref.Version)
		if err != nil {
			return err
		}

		if !info.HasUpdates() {
			fmt.Printf("%s is up to date at %s\n", ref.Name, ref.Version)
			return nil
		}

		fmt.Printf("%s: %s -> %s (%s)\n", ref.Name, info.CurrentVersion, info.LatestVersion, info.Recommendation)
		return nil
	},
}

var updateApplyCmd = &cobra.Command{
	Use:   "apply <name@version>",
	Short: "Apply an update if permitted by the configured policy",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := schema.ParseTaskReference(args[0])
		if err != nil {
			return err
		}

		checker, err := buildChecker()
		if err != nil {
			return err
		}

		result, err := checker.AutoUpdate(ref.Name, ref.Version, update.Policy(updatePolicyFlag))
		if err != nil {
			return err
		}

		fmt.Printf("%s: %s -> %s\n", result.TaskName, result.FromVersion, result.ToVersion)
		return nil
	},
}

func init() {
	updateCmd.PersistentFlags().BoolVar(&includePrerelease, "include-prerelease", false, "consider pre-release versions when checking for updates")
	updateCmd.PersistentFlags().StringVar(&updatePolicyFlag, "policy", string(update.PolicyManual), "update policy: manual, patch_only, minor_and_patch, all")
	updateCmd.AddCommand(updateCheckCmd, updateApplyCmd)
}

// buildChecker rebuilds the configured source list directly (rather
// than through Discovery, which caches loaded tasks rather than
// version listings) and wraps it in an update.Checker.
func buildChecker() (*update.Checker, error) {
	sources, err := configuredSources()
	if err != nil {
		return nil, err
	}

	checker := update.NewChecker(sources)
	checker.SetIncludePrerelease(includePrerelease)
	checker.RefreshCache(context.Background())
	return checker, nil
}

func configuredSources() ([]source.Source, error) {
	cfg, err := source.LoadSourcesConfigFile(sourcesConfigPath)
	if err == nil {
		return cfg.Build()
	}

	project, err := source.NewLocal("project-tasks", "./.claude/tasks", 10)
	if err != nil {
		return nil, err
	}
	user, err := source.NewLocal("user-tasks", "~/.claude/tasks", 8)
	if err != nil {
		return nil, err
	}
	return []source.Source{project, user}, nil
}
