package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "hostsentry",
	Short: "VM, remote access, and screen sharing detection for hosts",
	Long: `Hostsentry inspects a host for virtualization, remote access, and screen
sharing signals, scores each category against a signature set, and tracks
detection state over time for behavioral anomalies.

Run a one-shot scan, a continuous monitor with an HTTP API, or summarize
the recorded detection history.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
