package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"shelltest/pkg/logging"
)

var logLevel string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "shelltest",
	Short: "Integration-test harness for a graphical shell",
	Long: `shelltest validates the runtime behavior of a graphical shell under
controlled, simulated conditions: private message buses, a fabricated
hardware device tree and scripted mock service backends.

The shell is spawned as an opaque child process inside a nested session
and observed only through its output transcript and exit state.`,
	// SilenceUsage prevents printing the usage message on errors we
	// handle ourselves (setup failures, failed scenarios).
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logging.Init(logging.ParseLevel(logLevel), os.Stderr)
	},
}

// SetVersion sets the version for the root command.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "shelltest version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		// Cobra prints the error, we just exit non-zero
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(newRunCmd())
	rootCmd.AddCommand(newListCmd())
	rootCmd.AddCommand(newVersionCmd())
}
