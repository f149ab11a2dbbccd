package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/taskmesh/resolver/pkg/tasks/group"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

var groupCmd = &cobra.Command{
	Use:   "group",
	Short: "Task group loading and namespace resolution",
}

var groupResolveCmd = &cobra.Command{
	Use:   "resolve <group@version> <namespace>:<name>",
	Short: "Load a task group under a namespace and resolve one reference from it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		groupRef, err := schema.ParseTaskGroupReference(args[0])
		if err != nil {
			return err
		}

		namespace, _, ok := strings.Cut(args[1], ":")
		if !ok {
			return fmt.Errorf("invalid namespaced reference %q: expected ns:name", args[1])
		}

		d, err := buildDiscovery()
		if err != nil {
			return err
		}

		loader := group.NewLoader(group.DefaultSearchPaths(), func(ctx context.Context, name, version string) (schema.PredefinedTask, error) {
			return d.Find(ctx, name, version)
		})

		resolved, err := loader.Load(context.Background(), groupRef)
		if err != nil {
			return err
		}

		resolver := group.NewNamespaceResolver()
		if err := resolver.Import(namespace, resolved); err != nil {
			return err
		}

		if groupRef.Workflow != "" {
			wf, err := resolver.ResolveWorkflowReference(args[1])
			if err != nil {
				return err
			}
			fmt.Printf("workflow %s: %s\n", wf.Name, wf.Description)
			return nil
		}

		task, err := resolver.ResolveTaskReference(args[1])
		if err != nil {
			return err
		}
		fmt.Printf("%s@%s: %s\n", task.Metadata.Name, task.Metadata.Version, task.Spec.AgentTemplate.Description)
		return nil
	},
}

func init() {
	groupCmd.AddCommand(groupResolveCmd)
}
