package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "gnn-tracking",
	Short: "Train and evaluate condensation networks for particle track reconstruction",
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// init attaches the subcommands to `root`
func init() {
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(scanCmd)
}
