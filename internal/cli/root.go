// Package cli wires the broker's cobra commands.
package cli

import (
	"github.com/spf13/cobra"
)

// configFile holds the --config flag value shared by all commands
var configFile string

// NewRootCmd creates the root command
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "acsbroker",
		Short: "OAuth2 security token broker for hosted app contexts",
		Long: `acsbroker validates launch context tokens from the resource provider,
caches the refresh material they carry, and mints user and app-only access
tokens for registered client applications on demand.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&configFile, "config", "", "path to configuration file")

	cmd.AddCommand(NewServeCmd())

	return cmd
}

// Execute runs the root command
func Execute() error {
	return NewRootCmd().Execute()
}
