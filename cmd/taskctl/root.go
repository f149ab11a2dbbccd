package main

import (
	"github.com/spf13/cobra"

	"github.com/taskmesh/resolver/pkg/tasks/discovery"
	"github.com/taskmesh/resolver/pkg/tasks/source"
)

// version is overwritten at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	verbose           bool
	sourcesConfigPath string
	assumeYes         bool
)

var rootCmd = &cobra.Command{
	Use:     "taskctl",
	Short:   "Discover, resolve, and lock predefined tasks across multiple sources",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&sourcesConfigPath, "sources-config", source.DefaultConfigPath, "path to task-sources.yaml")
	rootCmd.PersistentFlags().BoolVarP(&assumeYes, "yes", "y", false, "assume yes for any confirmation prompt")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(lockCmd)
	rootCmd.AddCommand(updateCmd)
	rootCmd.AddCommand(groupCmd)
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// buildDiscovery loads the configured sources file, falling back to the
// conventional project/user local tiers when no sources file exists.
func buildDiscovery() (*discovery.Discovery, error) {
	cfg, err := source.LoadSourcesConfigFile(sourcesConfigPath)
	if err != nil {
		return discovery.WithDefaultSources()
	}
	return discovery.FromSourcesConfig(cfg)
}
