// Package cli implements the pointsledger command line.
package cli

import (
	"github.com/spf13/cobra"

	"github.com/pointsledger/pointsledger/internal/daemon"
)

// Version is set at build time with -ldflags "-X ...cli.Version=...".
var Version = "0.1.0"

var (
	flagConfig string
	flagServer string
)

var rootCmd = &cobra.Command{
	Use:   "pointsledger",
	Short: "Rewards points ledger",
	Long: `pointsledger keeps a ledger of reward points credited by payers.
Points are spent oldest first across all payers, and no payer's balance
may ever go negative.

Run 'pointsledger serve' to start the HTTP API, then use the client
commands (add, balance, spend, records) against it.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Path to config.toml (default $POINTSLEDGER_HOME/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "Ledger server URL for client commands (default from config)")
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

// loadConfig reads the config file named by --config, or the default one.
func loadConfig() (daemon.Config, error) {
	path := flagConfig
	if path == "" {
		path = daemon.DefaultConfigPath()
	}
	return daemon.LoadConfig(path)
}
