package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/taskmesh/resolver/pkg/tasks/depresolve"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve <name@version>",
	Short: "Resolve a task's dependency graph and print its install order",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := schema.ParseTaskReference(args[0])
		if err != nil {
			return err
		}

		d, err := buildDiscovery()
		if err != nil {
			return err
		}

		ctx := context.Background()
		all, err := d.DiscoverAll(ctx)
		if err != nil {
			return err
		}

		r := depresolve.New()
		for _, meta := range all {
			task, err := d.Find(ctx, meta.Name, meta.Version)
			if err != nil {
				continue
			}
			r.AddTask(task)
		}

		resolved, err := r.Resolve(ref)
		if err != nil {
			return err
		}

		for i, rt := range resolved {
			fmt.Printf("%d. %s@%s\n", i+1, rt.Task.Metadata.Name, rt.Task.Metadata.Version)
		}
		return nil
	},
}
