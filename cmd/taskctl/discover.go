package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var discoverCmd = &cobra.Command{
	Use:   "discover",
	Short: "List every task discovered across configured sources",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := buildDiscovery()
		if err != nil {
			return err
		}

		tasks, err := d.DiscoverAll(context.Background())
		if err != nil {
			return err
		}

		for _, t := range tasks {
			fmt.Printf("%s@%s\t%s\t(%s)\n", t.Name, t.Version, t.Description, t.SourceName)
		}
		if verbose {
			fmt.Printf("%d tasks found across configured sources\n", len(tasks))
		}
		return nil
	},
}
