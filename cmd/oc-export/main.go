// Command oc-export downloads an OrderCloud marketplace into a seed file.
package main

import (
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "0.1.0"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		color.New(color.FgRed).Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "oc-export",
		Short:         "Export OrderCloud marketplaces",
		Long:          "Downloads every resource of an OrderCloud marketplace into a portable YAML or JSON snapshot",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "oc-export version %s\n", version)
		},
	}

	rootCmd.AddCommand(newDownloadCmd(), versionCmd)
	return rootCmd
}
