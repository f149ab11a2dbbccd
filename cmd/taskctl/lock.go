package main

import (
	"bufio"
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/taskmesh/resolver/pkg/tasks/depresolve"
	"github.com/taskmesh/resolver/pkg/tasks/lockfile"
	"github.com/taskmesh/resolver/pkg/tasks/schema"
)

var lockPath string

var lockCmd = &cobra.Command{
	Use:   "lock",
	Short: "Lockfile lifecycle: generate, verify, validate",
}

var lockGenerateCmd = &cobra.Command{
	Use:   "generate <name@version>",
	Short: "Resolve a task and write a lockfile pinning its dependency set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolved, err := resolveForCLI(args[0])
		if err != nil {
			return err
		}

		if _, err := os.Stat(lockPath); err == nil && !assumeYes {
			if !confirm(fmt.Sprintf("%s already exists; overwrite?", lockPath)) {
				return fmt.Errorf("aborted")
			}
		}

		lf, err := lockfile.Generate(resolved, nil)
		if err != nil {
			return err
		}

		if err := lockfile.Save(context.Background(), lf, lockPath); err != nil {
			return err
		}
		fmt.Printf("wrote %s with %d tasks\n", lockPath, len(lf.Tasks))
		return nil
	},
}

var lockVerifyCmd = &cobra.Command{
	Use:   "verify <name@version>",
	Short: "Verify a resolved task's checksum against the lockfile",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ref, err := schema.ParseTaskReference(args[0])
		if err != nil {
			return err
		}

		lf, err := lockfile.Load(lockPath)
		if err != nil {
			return err
		}

		d, err := buildDiscovery()
		if err != nil {
			return err
		}
		task, err := d.Find(context.Background(), ref.Name, ref.Version)
		if err != nil {
			return err
		}

		if err := lf.VerifyTask(ref.Name, task); err != nil {
			return err
		}
		fmt.Printf("%s@%s matches the lockfile\n", ref.Name, ref.Version)
		return nil
	},
}

var lockValidateCmd = &cobra.Command{
	Use:   "validate <name@version>",
	Short: "Validate a lockfile against a freshly resolved dependency set",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		resolved, err := resolveForCLI(args[0])
		if err != nil {
			return err
		}

		lf, err := lockfile.Load(lockPath)
		if err != nil {
			return err
		}

		result := lockfile.Validate(lf, resolved)
		if result.IsValid() {
			fmt.Println("lockfile is up to date")
			return nil
		}

		for _, name := range result.MissingTasks {
			fmt.Printf("missing from lockfile: %s\n", name)
		}
		for _, name := range result.ExtraTasks {
			fmt.Printf("extra entry in lockfile: %s\n", name)
		}
		for name, versions := range result.VersionMismatches {
			fmt.Printf("version mismatch for %s: locked %s, resolved %s\n", name, versions[0], versions[1])
		}
		for name, reason := range result.DependencyMismatches {
			fmt.Printf("dependency mismatch for %s: %s\n", name, reason)
		}
		for name, err := range result.ChecksumFailures {
			fmt.Printf("checksum failure for %s: %v\n", name, err)
		}
		return fmt.Errorf("lockfile is stale")
	},
}

func init() {
	lockCmd.PersistentFlags().StringVar(&lockPath, "file", "tasks.lock.yaml", "path to the lockfile")
	lockCmd.AddCommand(lockGenerateCmd, lockVerifyCmd, lockValidateCmd)
}

// resolveForCLI discovers every configured task and resolves ref's
// dependency graph, sharing the same catalog-building logic between
// "lock generate" and "lock validate".
func resolveForCLI(refStr string) ([]depresolve.ResolvedTask, error) {
	ref, err := schema.ParseTaskReference(refStr)
	if err != nil {
		return nil, err
	}

	d, err := buildDiscovery()
	if err != nil {
		return nil, err
	}

	ctx := context.Background()
	all, err := d.DiscoverAll(ctx)
	if err != nil {
		return nil, err
	}

	r := depresolve.New()
	for _, meta := range all {
		task, err := d.Find(ctx, meta.Name, meta.Version)
		if err != nil {
			continue
		}
		r.AddTask(task)
	}

	return r.Resolve(ref)
}

// confirm prompts the operator on stdin/stdout. --yes bypasses it
// entirely for scripted/CI use.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	return line == "y\n" || line == "Y\n" || line == "yes\n"
}
