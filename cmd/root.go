package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

// configPath is the directory holding config.yaml. Empty means defaults.
var configPath string

// rootCmd is the entry point when the binary is called without subcommands.
var rootCmd = &cobra.Command{
	Use:   "studioprov",
	Short: "Provision notebook workshop environments",
	Long: `studioprov reconciles notebook workshop resources: the shared studio
domain, lifecycle scripts, per-attendee user profiles and their home
content. It accepts lifecycle events over HTTP, from a spool directory,
or from a file via the reconcile subcommand.`,
	// SilenceUsage prevents cobra from printing usage on handled errors.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command, injected at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command. Called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "studioprov version %s\n" .Version}}`)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config-path", "",
		"Directory containing config.yaml (default: built-in configuration)")
	rootCmd.AddCommand(newVersionCmd())
}
