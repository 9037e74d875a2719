// Package burstgate sends a fixed number of concurrent GET requests to one
// target, behind an authorization gate, and reports every outcome.
//
// A [Job] couples a target URL with a request count. Running it consults a
// [Gate] once; if the gate approves, every request is launched at the same
// time over a connection pool owned by that run, and Run returns once all of
// them have settled. One [Outcome] is recorded per request, in completion
// order, and a failing request never stops its siblings.
//
// # Quick Start
//
//	job, err := burstgate.New("https://staging.example.com/health", 20,
//	    burstgate.WithOutcomeCallback(func(o burstgate.Outcome) {
//	        fmt.Println(o)
//	    }),
//	)
//	if err != nil {
//	    return err
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
//	defer stop()
//
//	report, err := job.Run(ctx)
//
// # Gates
//
// Gates are supplied at construction with [WithGate]:
//
//   - [AllowAll], [DenyAll]: static decisions
//   - [TokenGate]: compares a presented credential with the expected one
//   - [QuotaGate]: caps the request count of a job
//   - [HostGate]: restricts the target host
//   - [AllOf]: requires every gate to approve
//
// # Pacing
//
// Each request task pauses for a fixed delay after its response (10ms by
// default, [WithPacingDelay]). The pause does not throttle the run; use
// [WithRateLimit] for a token bucket that spaces request starts.
//
// # Architecture
//
// burstgate consists of several internal packages (under internal/):
//
//   - internal/dispatch: connection pool, request tasks and the fan-out
//   - internal/pacing: post-response delay and token-bucket limiter
//   - internal/store: completion-ordered outcome log with pub/sub
//   - internal/server: optional monitor with a live page plus JSON, SSE and
//     Prometheus routes (page assets live in package dashboard)
//   - internal/metrics: Prometheus collectors
//   - internal/history: SQLite ledger of past runs, used by the CLI
package burstgate
