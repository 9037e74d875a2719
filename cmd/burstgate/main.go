// Package main is the entry point for the burstgate CLI.
//
// burstgate sends a burst of concurrent GET requests to one URL once an
// authorization gate approves the job, printing each outcome as it lands.
//
// Usage:
//
//	burstgate run -u https://staging.example.com/health -n 50
//	burstgate run -c job.yaml
//	burstgate run                          # prompts for count and URL
//	burstgate validate -c job.yaml         # Validate a job file
//	burstgate history --history runs.db    # List recorded runs
//	burstgate version                      # Show version info
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/burstgate"
)

// Version information - set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitDenied      = 2
	exitInterrupted = 130
)

// newRootCmd builds the command tree. Each call returns fresh flag state.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "burstgate",
		Short: "Fire a gated burst of concurrent HTTP requests",
		Long: `burstgate sends N concurrent GET requests to a single URL and reports
the outcome of each one as it completes.

Every run passes through an authorization gate first. A denied run sends
nothing and exits with status 2.

Quick start:
  burstgate run -u https://staging.example.com/health -n 20

Example job file:
  url: https://staging.example.com/health
  count: 20
  timeout: 5s
  gate: quota:100`,
		SilenceUsage: true,
		// No Run/RunE means this just shows help when called without subcommands
	}

	root.AddCommand(
		newRunCmd(),
		newValidateCmd(),
		newHistoryCmd(),
		newVersionCmd(),
	)
	return root
}

// newVersionCmd prints version information.
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Long:  `Print the version, commit hash, and build date of this burstgate binary.`,
		Run: func(cmd *cobra.Command, args []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "burstgate %s\n", version)
			fmt.Fprintf(out, "  commit: %s\n", commit)
			fmt.Fprintf(out, "  built:  %s\n", date)
		},
	}
}

// exitCode maps a command error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, burstgate.ErrUnauthorized):
		return exitDenied
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	default:
		return exitError
	}
}

// execute runs cmd and returns the exit status.
func execute(cmd *cobra.Command) int {
	// cobra already prints the error
	return exitCode(cmd.Execute())
}

func main() {
	os.Exit(execute(newRootCmd()))
}
