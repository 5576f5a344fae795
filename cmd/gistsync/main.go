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
		Use:   "gistsync",
		Short: "Collaborative markdown sync for gists",
		Long: `gistsync keeps a collaboratively edited markdown document in
sync with its canonical gist content.

Each open gist gets a room: editors connect over websocket, edits are
relayed live, and the room debounces, pulls, and persists the
canonical markdown with retries and conflict surfacing.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(
		serveCmd(),
		getCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		os.Exit(1)
	}
}
