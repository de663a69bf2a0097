package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the container version reported by the CLI and API.
const Version = "1.0.0"

// NewRootCommand builds the vsc command tree.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "vsc",
		Short:         "Volume Sync Container",
		Long:          "vsc runs the volume sync task service and provides client commands for it.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(
		newServeCommand(),
		newInitSpawnCommand(),
		newListMountsCommand(),
		newVersionCommand(),
	)

	return root
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "vsc "+Version)
		},
	}
}
