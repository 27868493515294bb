// Command fabricd runs the farm-management coordination daemon. Process
// lifecycle is the only thing this command line exposes; the client-facing
// CLI surface (the companion to the XML-RPC endpoint) is out of scope.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signal18/fabricd/internal/fabricd"
)

var rootCmd = &cobra.Command{
	Use:   "fabricd",
	Short: "MySQL farm-management coordination daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fabricd.Run(cmd.Context())
	},
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon in the foreground",
	RunE: func(cmd *cobra.Command, args []string) error {
		return fabricd.Run(cmd.Context())
	},
}

func main() {
	rootCmd.AddCommand(startCmd)
	rootCmd.SetContext(context.Background())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
