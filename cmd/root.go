// Package cmd defines and implements the CLI commands for the
// scholarsync executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scholarsync",
		Short: "Mirrors pinned scholarship notices into a document database.",
		Long: `scholarsync harvests the pinned announcements of a university
scholarship board and reconciles them into an external document database,
creating, updating, and retiring mirrored records so the database always
reflects what is currently pinned at the source.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (optional; environment variables suffice)")

	cmd.AddCommand(newSyncCmd())
	cmd.AddCommand(newInspectCmd())

	return cmd
}

// Execute is the main entry point. A .env file in the working directory
// is loaded first so local runs need no exported environment.
func Execute() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
