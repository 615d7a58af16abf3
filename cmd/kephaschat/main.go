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

func main() {
	rootCmd := &cobra.Command{
		Use:   "kephaschat",
		Short: "Real-time chat relay over WebSocket",
		Long: `kephaschat authenticates WebSocket clients, keeps track of who is online
and relays direct messages, typing indicators, read receipts, edits,
deletes and pins between them.

Settings are read from KEPHASCHAT_* environment variables; flags override them.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		tokenCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
