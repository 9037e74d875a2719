package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/burstgate"
	"github.com/jpalmerr/burstgate/config"
	"github.com/jpalmerr/burstgate/internal/history"
)

// runFlags holds the run command's flag values.
type runFlags struct {
	configFile  string
	url         string
	count       string
	timeout     time.Duration
	delay       time.Duration
	rate        float64
	burst       int
	token       string
	expectToken string
	maxRequests int
	allowHosts  []string
	listen      string
	historyFile string
	verbose     bool
}

// newLogger creates a JSON logger for CLI use.
func newLogger(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}

// newRunCmd builds the run command.
func newRunCmd() *cobra.Command {
	f := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Send a burst of concurrent requests",
		Long: `Send COUNT concurrent GET requests to URL and print each outcome as it
completes.

URL and COUNT come from flags, then from the job file. Anything still
missing is asked for on stdin: first the count, then the URL.

Flags override the job file. Gate flags are combined with the job file's
gate; every gate must approve the run.

Exit codes:
  0   - every request settled (successes and failures alike)
  1   - invalid input or configuration
  2   - the authorization gate denied the run
  130 - interrupted

Example:
  burstgate run -u https://staging.example.com/health -n 50
  burstgate run -c job.yaml --listen 127.0.0.1:9090
  burstgate run -n 10 -u http://localhost:8080 --max-requests 100`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(cmd, f)
		},
	}

	flags := cmd.Flags()
	flags.StringVarP(&f.configFile, "config", "c", "", "path to job file")
	flags.StringVarP(&f.url, "url", "u", "", "target URL")
	flags.StringVarP(&f.count, "count", "n", "", "number of requests")
	flags.DurationVar(&f.timeout, "timeout", 0, "per-request timeout (default 10s)")
	flags.DurationVar(&f.delay, "delay", 0, "pause after each response (default 10ms, 0 disables)")
	flags.Float64Var(&f.rate, "rate", 0, "token-bucket rate in requests per second (0 disables)")
	flags.IntVar(&f.burst, "burst", 1, "token-bucket burst size")
	flags.StringVar(&f.token, "token", os.Getenv("BURSTGATE_TOKEN"), "credential presented to the token gate (env BURSTGATE_TOKEN)")
	flags.StringVar(&f.expectToken, "expect-token", "", "require this credential before running")
	flags.IntVar(&f.maxRequests, "max-requests", 0, "deny runs with more requests than this")
	flags.StringSliceVar(&f.allowHosts, "allow-host", nil, "only allow these target hosts (repeatable)")
	flags.StringVar(&f.listen, "listen", "", "serve live outcomes and metrics on this address during the run")
	flags.StringVar(&f.historyFile, "history", "", "record the run in this SQLite file")
	flags.BoolVarP(&f.verbose, "verbose", "v", false, "log every outcome")

	return cmd
}

func runRun(cmd *cobra.Command, f *runFlags) error {
	logger := newLogger(cmd.ErrOrStderr(), f.verbose)
	out := cmd.OutOrStdout()

	cfg := &config.Config{}
	if f.configFile != "" {
		loaded, err := config.Load(f.configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		cfg = loaded
	}

	if err := applyTargetFlags(cmd, f, cfg); err != nil {
		return err
	}
	rawURL, count, err := resolveTarget(cmd, cfg)
	if err != nil {
		return err
	}

	opts, err := buildRunOptions(cmd, f, cfg)
	if err != nil {
		return err
	}
	opts = append(opts,
		burstgate.WithLogger(logger),
		burstgate.WithOutcomeCallback(func(o burstgate.Outcome) {
			fmt.Fprintln(out, o)
		}),
	)

	job, err := burstgate.New(rawURL, count, opts...)
	if err != nil {
		return err
	}

	// set up context with signal handling - cancel on SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, runErr := job.Run(ctx)

	historyFile := cfg.History
	if f.historyFile != "" {
		historyFile = f.historyFile
	}
	if historyFile != "" && !errors.Is(runErr, burstgate.ErrAlreadyRun) {
		// record interrupted runs too
		if err := recordRun(context.WithoutCancel(ctx), historyFile, report); err != nil {
			logger.Error("failed to record run", "history", historyFile, "error", err)
		}
	}

	if errors.Is(runErr, burstgate.ErrUnauthorized) {
		fmt.Fprintf(cmd.ErrOrStderr(), "authorization denied: %s x%d\n", rawURL, count)
		return runErr
	}

	if report.Authorized {
		fmt.Fprintf(out, "%d requests: %d succeeded, %d failed in %s\n",
			len(report.Outcomes), report.Succeeded(), report.Failed(),
			report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	}
	return runErr
}

// applyTargetFlags copies -u and -n onto cfg.
func applyTargetFlags(cmd *cobra.Command, f *runFlags, cfg *config.Config) error {
	if cmd.Flags().Changed("url") {
		if err := burstgate.ValidateURL(f.url); err != nil {
			return err
		}
		cfg.URL = f.url
	}
	if cmd.Flags().Changed("count") {
		n, err := burstgate.ParseCount(f.count)
		if err != nil {
			return err
		}
		cfg.Count = &n
	}
	return nil
}

// resolveTarget returns the URL and count, prompting for whatever is missing.
func resolveTarget(cmd *cobra.Command, cfg *config.Config) (string, int, error) {
	rawURL, count, err := cfg.Complete()
	if err == nil {
		return rawURL, count, nil
	}
	if !errors.Is(err, config.ErrIncomplete) {
		return "", 0, err
	}

	in, out := cmd.InOrStdin(), cmd.OutOrStdout()
	switch {
	case cfg.URL == "" && cfg.Count == nil:
		return burstgate.Prompt(in, out)
	case cfg.Count == nil:
		count, err = burstgate.PromptCount(in, out)
		return cfg.URL, count, err
	default:
		rawURL, err = burstgate.PromptURL(in, out)
		return rawURL, *cfg.Count, err
	}
}

// buildRunOptions merges the job file with flag overrides.
func buildRunOptions(cmd *cobra.Command, f *runFlags, cfg *config.Config) ([]burstgate.Option, error) {
	opts, err := config.BuildOptions(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to build options: %w", err)
	}

	flags := cmd.Flags()
	if flags.Changed("timeout") {
		opts = append(opts, burstgate.WithTimeout(f.timeout))
	}
	if flags.Changed("delay") {
		opts = append(opts, burstgate.WithPacingDelay(f.delay))
	}
	if rate := effectiveRate(flags.Changed("rate"), f.rate, cfg.Pacing.Rate); rate > 0 {
		burst := cfg.Pacing.Burst
		if flags.Changed("burst") || burst < 1 {
			burst = f.burst
		}
		opts = append(opts, burstgate.WithRateLimit(rate, burst))
	}
	if flags.Changed("listen") {
		opts = append(opts, burstgate.WithListenAddr(f.listen))
	}

	gate, err := config.BuildGate(cfg.Gate)
	if err != nil {
		return nil, err
	}
	gates := []burstgate.Gate{gate}
	if flags.Changed("expect-token") {
		gates = append(gates, burstgate.TokenGate(f.expectToken, f.token))
	}
	if flags.Changed("max-requests") {
		gates = append(gates, burstgate.QuotaGate(f.maxRequests))
	}
	if len(f.allowHosts) > 0 {
		gates = append(gates, burstgate.HostGate(f.allowHosts...))
	}
	if len(gates) > 1 {
		opts = append(opts, burstgate.WithGate(burstgate.AllOf(gates...)))
	}

	return opts, nil
}

// effectiveRate returns the flag rate when it was given, otherwise the job
// file's rate.
func effectiveRate(flagSet bool, flagRate, fileRate float64) float64 {
	if flagSet {
		return flagRate
	}
	return fileRate
}

// recordRun appends report to the history ledger at path.
func recordRun(ctx context.Context, path string, report burstgate.Report) error {
	ledger, err := history.Open(ctx, path)
	if err != nil {
		return err
	}
	defer func() { _ = ledger.Close() }()

	return ledger.Record(ctx, history.Run{
		ID:         report.RunID,
		URL:        report.Target.URL,
		Count:      report.Target.Count,
		Authorized: report.Authorized,
		Succeeded:  report.Succeeded(),
		Failed:     report.Failed(),
		StartedAt:  report.StartedAt,
		FinishedAt: report.FinishedAt,
	})
}
