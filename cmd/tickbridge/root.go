package main

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

const appName = "tickbridge"

// Set at build time with -ldflags "-X main.version=...".
var version = "dev"

// NewRootCommand creates the root command for the tickbridge CLI.
func NewRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Bridge background producers into a tick-driven host",
		Long: `tickbridge runs a fixed-rate tick loop and feeds it from goroutines
through typed bridge channels, journaling every bridged message to the
configured storage backend.`,
		SilenceUsage: true,
	}

	cmd.AddCommand(NewRunCommand())
	cmd.AddCommand(NewVersionCommand())

	return cmd
}

// NewVersionCommand creates the version command.
func NewVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "%s %s (%s %s/%s)\n",
				appName, version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			return err
		},
	}
}
