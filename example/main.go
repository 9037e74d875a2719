package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/jpalmerr/burstgate"
)

func main() {
	// start mock target (see mock_server.go)
	var peak atomic.Int64
	go StartMockTarget(":9999", &peak)
	time.Sleep(100 * time.Millisecond)

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// only local targets, and never more than 100 requests in one run
	job, err := burstgate.New("http://localhost:9999/health", 40,
		burstgate.WithGate(burstgate.AllOf(
			burstgate.HostGate("localhost"),
			burstgate.QuotaGate(100),
		)),
		burstgate.WithTimeout(time.Second),
		burstgate.WithListenAddr(":8080"),
		burstgate.WithLogger(logger),
		burstgate.WithOutcomeCallback(func(o burstgate.Outcome) {
			fmt.Println(o)
		}),
	)
	if err != nil {
		slog.Error("failed to create job", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("  burstgate demo: 40 requests to a flaky local target")
	fmt.Println("  live page at http://localhost:8080 while the run lasts")
	fmt.Println()

	// set up context with signal handling so Ctrl+C cancels in-flight requests
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	report, err := job.Run(ctx)
	if err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run failed", "error", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Printf("  %d succeeded, %d failed in %s\n",
		report.Succeeded(), report.Failed(),
		report.FinishedAt.Sub(report.StartedAt).Round(time.Millisecond))
	fmt.Printf("  peak concurrent requests at the target: %d\n", peak.Load())
}
