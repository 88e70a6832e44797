package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "tentspec",
	Short: "Conformance tests for Tent servers.",
	Long: `tentspec checks a Tent server against the protocol. It drives the
server over HTTP, hosts a local peer the server talks back to, and scores
every response against the Tent JSON schemas.`,
	SilenceUsage: true,
}

func Execute(v, bt string) {
	version = v
	buildTime = bt
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(ExitTestFailure)
	}
}

func init() {
	rootCmd.SilenceErrors = true
	rootCmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return withCode(ExitUsageError, fmt.Errorf("%w\n\n%s", err, c.UsageString()))
	})
	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(versionCmd)
}
