// Command taskctl is a thin CLI wrapping the task-resolver core
// packages: source discovery, dependency resolution, lockfile
// lifecycle, update checking, and namespace resolution.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
