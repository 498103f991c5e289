// Package cli implements the burrow command tree.
package cli

import (
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/burrowapp/burrow/cli.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "burrow",
	Short: "Semantic file indexing for the burrow launcher",
	Long: `burrow keeps a semantic index of your files so the launcher can find
documents by meaning rather than by name.

Indexing runs inside the background daemon when one is running, and
in-process otherwise.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.Version = Version
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}
