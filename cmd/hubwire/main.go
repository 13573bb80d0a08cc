package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information set at build time.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var (
	flagConfig   string
	flagEndpoint string
	flagToken    string
	flagVerbose  bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "hubwire",
		Short: "Command-line client for hubwire real-time hubs",
		Long: `hubwire talks to real-time hubs over websocket.

It negotiates the hub protocol, authenticates with a bearer token,
and invokes hub methods from the command line. Configuration comes
from flags or a hubwire.toml file.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagConfig, "config", "c", "", "Path to hubwire.toml (default: ./hubwire.toml)")
	pf.StringVarP(&flagEndpoint, "endpoint", "e", "", "Hub websocket URL (overrides config)")
	pf.StringVarP(&flagToken, "token", "t", "", "Bearer token (overrides config)")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "Enable debug logging")

	rootCmd.AddCommand(
		invokeCmd(),
		sendCmd(),
		pingCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "\033[31mError:\033[0m %s\n", err)
		os.Exit(1)
	}
}
