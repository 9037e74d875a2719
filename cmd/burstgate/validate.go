package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/burstgate/config"
)

// newValidateCmd validates a job file without sending requests.
func newValidateCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Validate a job file",
		Long: `Validate a burstgate job file without sending any request.

This command parses the YAML, expands environment variables, and validates
all fields. It's useful for CI/CD pipelines or pre-deployment checks.

Exit codes:
  0 - Job file is valid
  1 - Job file is invalid (error details printed to stderr)

Example:
  burstgate validate -c job.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, configFile)
		},
	}

	cmd.Flags().StringVarP(&configFile, "config", "c", "", "path to job file (required)")
	_ = cmd.MarkFlagRequired("config")

	return cmd
}

func runValidate(cmd *cobra.Command, configFile string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	if _, err := config.BuildOptions(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Config is valid!\n")
	fmt.Fprintf(out, "  URL:      %s\n", orPrompt(cfg.URL))
	if cfg.Count != nil {
		fmt.Fprintf(out, "  Count:    %d\n", *cfg.Count)
	} else {
		fmt.Fprintf(out, "  Count:    %s\n", orPrompt(""))
	}
	if cfg.Timeout != 0 {
		fmt.Fprintf(out, "  Timeout:  %s\n", cfg.Timeout.Duration())
	}
	if cfg.Pacing.Delay != nil {
		fmt.Fprintf(out, "  Delay:    %s\n", cfg.Pacing.Delay.Duration())
	}
	if cfg.Pacing.Rate > 0 {
		fmt.Fprintf(out, "  Rate:     %g/s (burst %d)\n", cfg.Pacing.Rate, cfg.Pacing.Burst)
	}
	fmt.Fprintf(out, "  Gate:     %s\n", describeGate(cfg.Gate))
	if cfg.Listen != "" {
		fmt.Fprintf(out, "  Listen:   %s\n", cfg.Listen)
	}
	if cfg.History != "" {
		fmt.Fprintf(out, "  History:  %s\n", cfg.History)
	}

	return nil
}

func orPrompt(s string) string {
	if s == "" {
		return "(prompted)"
	}
	return s
}

// describeGate renders a gate configuration on one line. Credentials are
// never printed.
func describeGate(g config.GateConfig) string {
	switch g.Type {
	case "", "allow":
		return "allow"
	case "quota":
		return fmt.Sprintf("quota(%d)", g.MaxRequests)
	case "hosts":
		return fmt.Sprintf("hosts(%s)", strings.Join(g.Hosts, ", "))
	case "all":
		members := make([]string, 0, len(g.Gates))
		for _, m := range g.Gates {
			members = append(members, describeGate(m))
		}
		return fmt.Sprintf("all(%s)", strings.Join(members, ", "))
	default:
		return g.Type
	}
}
