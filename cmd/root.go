// Package cmd contains all the CLI commands for the application,
// built using the Cobra library.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/naka-gawa/github-gitlog/internal/apperr"
)

// version is set at build time with -ldflags "-X github.com/naka-gawa/github-gitlog/cmd.version=...".
var version = "0.0.0-dev"

var rootCmd = &cobra.Command{
	Use:   "github-gitlog",
	Short: "A CLI tool to mirror a GitHub organization and extract its commit log.",
	Long: `github-gitlog clones or updates every repository of a GitHub organization
and writes the commit history of all of them into a CSV file, a SQLite
database, or both.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version number of github-gitlog",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "github-gitlog version %s\n", version)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(apperr.ExitCodeOf(err))
	}
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "Enable verbose/debug logging")
	rootCmd.PersistentFlags().BoolP("quiet", "q", false, "Suppress progress output and the run summary")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return apperr.New(apperr.KindConfig, "parse flags", err)
	})
	rootCmd.AddCommand(versionCmd)
}
