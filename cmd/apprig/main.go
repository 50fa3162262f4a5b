package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

var rootCmd = &cobra.Command{
	Use:           "apprig",
	Short:         "apprig turns feature requests into edits of a Flutter project",
	Long:          "apprig plans file operations for a natural-language instruction, generates Dart source with a model backend, validates and repairs it, and applies it to the project tree.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("apprig version %s\n", version)
	},
}

func main() {
	rootCmd.PersistentFlags().StringP("config", "c", defaultConfigPath, "Path to config file")
	rootCmd.PersistentFlags().String("log-level", "", "Override log.level (debug|info|warn|error)")

	execCmd.Flags().Bool("dry-run", false, "Generate and validate, then print diffs instead of writing")
	runCmd.Flags().Bool("dry-run", false, "Preview every instruction instead of applying it")
	serveCmd.Flags().IntP("port", "p", 0, "Override server.port")
	serveCmd.Flags().Bool("no-watch", false, "Do not watch the project tree for out-of-band edits")
	statusCmd.Flags().Int("limit", 10, "Number of recent turns to list")
	statusCmd.Flags().Duration("window", 0, "Stats window (default 30 days)")
	logsCmd.Flags().BoolP("follow", "f", false, "Follow logs in real-time (polls every 2s)")
	initCmd.Flags().String("name", "", "Application name (default: directory name)")
	initCmd.Flags().String("backend", "local", "Backend kind for the config template (local|hosted)")
	doctorCmd.Flags().Bool("skip-backend", false, "Do not contact the model backend")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(logsCmd)
	rootCmd.AddCommand(doctorCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
