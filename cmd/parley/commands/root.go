package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	version string
	commit  string
	date    string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "parley",
	Short: "Parley - agent-driven negotiations over Redis pub/sub",
	Long: `Parley runs one party of a multi-party negotiation. Parties exchange
JSON envelopes over Redis pub/sub; every incoming message is shown to a
decision agent, and the agent's answer is only published if the protocol
allows it.

The built-in protocol is a compute marketplace: buyers broadcast offers,
sellers counter, buyers attest payment and sellers attest delivery.`,
	Version: version,
	// Show help rather than silently succeeding when no subcommand is given
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
	FParseErrWhitelist: cobra.FParseErrWhitelist{},
}

// Execute runs the root command. Cobra's own error and usage output is silenced:
// commands print formatted errors through the printer package.
func Execute() error {
	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true
	return rootCmd.Execute()
}

// SetVersionInfo sets the version information for the CLI
func SetVersionInfo(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = fmt.Sprintf("%s (commit: %s, built: %s)", v, c, d)
}
