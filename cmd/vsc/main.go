// Package main implements the Volume Sync Container entry point.
package main

import (
	"fmt"
	"os"

	"github.com/volume-sync/vsc/internal/cli"
)

func main() {
	if err := cli.NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
