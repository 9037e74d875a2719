package burstgate

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/burstgate/dashboard"
	"github.com/jpalmerr/burstgate/internal/dispatch"
	"github.com/jpalmerr/burstgate/internal/metrics"
	"github.com/jpalmerr/burstgate/internal/pacing"
	"github.com/jpalmerr/burstgate/internal/server"
	"github.com/jpalmerr/burstgate/internal/store"
)

const (
	defaultTimeout     = 10 * time.Second
	defaultPacingDelay = 10 * time.Millisecond

	monitorShutdownWait = 6 * time.Second
)

// Job is one dispatch run: a target URL and a request count.
//
// Job is immutable after creation via [New] and runs at most once.
// The typical lifecycle is:
//
//	job, err := burstgate.New("https://staging.example.com/health", 20)
//	if err != nil {
//	    return err
//	}
//
//	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
//	defer stop()
//
//	report, err := job.Run(ctx)
type Job struct {
	url   string
	count int

	gate             Gate
	timeout          time.Duration
	headers          map[string]string
	pacer            pacing.Pacer
	logger           *slog.Logger
	outcomeCallbacks []func(Outcome)
	registerer       prometheus.Registerer
	listenAddr       string
	newPool          dispatch.PoolFactory

	ran atomic.Bool
}

// New creates a [Job] sending count GET requests to rawURL.
//
// rawURL must be an absolute http or https URL and count must not be
// negative; violations return an [*InputError]. Other settings have
// defaults:
//   - Gate: [AllowAll]
//   - Timeout: 10 seconds per request
//   - Pacing delay: 10ms after each response
//
// Returns an error if any option is invalid.
func New(rawURL string, count int, opts ...Option) (*Job, error) {
	if err := ValidateURL(rawURL); err != nil {
		return nil, err
	}
	if count < 0 {
		return nil, &InputError{Field: "count", Value: fmt.Sprint(count), Err: fmt.Errorf("must not be negative")}
	}

	cfg := &jobConfig{
		gate:        AllowAll(),
		timeout:     defaultTimeout,
		pacingDelay: defaultPacingDelay,
	}

	for _, opt := range opts {
		if err := opt(cfg); err != nil {
			return nil, err
		}
	}

	logger := cfg.logger
	if logger == nil {
		logger = slog.Default()
	}

	registerer := cfg.registerer
	if registerer == nil {
		registerer = prometheus.NewRegistry()
	}

	return &Job{
		url:              rawURL,
		count:            count,
		gate:             cfg.gate,
		timeout:          cfg.timeout,
		headers:          copyMap(cfg.headers),
		pacer:            pacing.Chain(pacing.Limiter(cfg.rateLimit, cfg.rateBurst), pacing.Delay(cfg.pacingDelay)),
		logger:           logger,
		outcomeCallbacks: cfg.outcomeCallbacks,
		registerer:       registerer,
		listenAddr:       cfg.listenAddr,
		newPool:          cfg.newPool,
	}, nil
}

// Target returns the job's URL and request count.
func (j *Job) Target() Target {
	return Target{URL: j.url, Count: j.count}
}

// Run checks the gate and, if approved, issues every request concurrently.
//
// Run blocks until every request has reached a terminal state. It returns:
//   - [ErrUnauthorized] with an unauthorized Report when the gate denies
//     the job; no request is sent
//   - a Report holding exactly one [Outcome] per request and a nil error
//     once all requests have settled, however many of them failed
//   - the same complete Report and an error wrapping ctx.Err() when ctx was
//     cancelled during the run; cancelled requests are recorded as failures
//   - [ErrAlreadyRun] if Run was called before
func (j *Job) Run(ctx context.Context) (Report, error) {
	if !j.ran.CompareAndSwap(false, true) {
		return Report{}, ErrAlreadyRun
	}

	report := Report{
		RunID:     uuid.NewString(),
		Target:    j.Target(),
		StartedAt: time.Now(),
		Outcomes:  []Outcome{},
	}
	logger := j.logger.With("run_id", report.RunID)

	m, err := metrics.New(j.registerer)
	if err != nil {
		return report, fmt.Errorf("failed to register metrics: %w", err)
	}

	allowed := j.gate.Check(ctx, report.Target)
	m.GateDecision(allowed)
	if !allowed {
		report.FinishedAt = time.Now()
		logger.Warn("job denied by authorization gate", "url", j.url, "count", j.count)
		return report, ErrUnauthorized
	}
	report.Authorized = true

	logger.Info("dispatch starting", "url", j.url, "count", j.count)

	outcomeStore := store.NewMemoryStore()
	stopMonitor, err := j.startMonitor(ctx, outcomeStore, logger)
	if err != nil {
		report.FinishedAt = time.Now()
		return report, err
	}
	defer stopMonitor()

	dispatcher := dispatch.NewDispatcher(dispatch.Config{
		Timeout:  j.timeout,
		Headers:  j.headers,
		Pacer:    j.pacer,
		NewPool:  j.newPool,
		Observer: m,
		OnOutcome: func(o dispatch.Outcome) {
			outcomeStore.Append(toRecord(report.RunID, o))
			j.handleOutcome(fromDispatch(o), logger)
		},
	}, logger)

	for _, o := range dispatcher.Dispatch(ctx, j.url, j.count) {
		report.Outcomes = append(report.Outcomes, fromDispatch(o))
	}
	report.FinishedAt = time.Now()

	logger.Info("dispatch finished",
		"count", j.count,
		"succeeded", report.Succeeded(),
		"failed", report.Failed(),
		"duration_ms", report.FinishedAt.Sub(report.StartedAt).Milliseconds(),
	)

	if err := ctx.Err(); err != nil {
		return report, fmt.Errorf("dispatch interrupted: %w", err)
	}
	return report, nil
}

// handleOutcome logs an outcome and hands it to the callbacks.
func (j *Job) handleOutcome(o Outcome, logger *slog.Logger) {
	attrs := []any{
		"seq", o.Seq,
		"status", o.StatusCode,
		"latency_ms", o.Latency.Milliseconds(),
	}
	if o.Err != nil {
		logger.Warn("request failed", append(attrs, "error", o.Err.Error())...)
	} else {
		logger.Debug("request completed", attrs...)
	}

	for _, cb := range j.outcomeCallbacks {
		invokeCallbackSafe(cb, o, logger)
	}
}

// startMonitor starts the monitor server when a listen address is set and
// returns a function that shuts it down and waits for it.
func (j *Job) startMonitor(ctx context.Context, st store.Store, logger *slog.Logger) (func(), error) {
	if j.listenAddr == "" {
		return func() {}, nil
	}

	var gatherer prometheus.Gatherer
	if g, ok := j.registerer.(prometheus.Gatherer); ok {
		gatherer = g
	}

	monitorCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	srv := server.NewServer(st, j.listenAddr, dashboard.Assets, fmt.Sprintf("%s x%d", j.url, j.count), gatherer, logger)
	if err := srv.Start(monitorCtx); err != nil {
		cancel()
		return nil, fmt.Errorf("failed to start monitor: %w", err)
	}

	return func() {
		cancel()
		select {
		case <-srv.Done():
		case <-time.After(monitorShutdownWait):
			logger.Warn("monitor shutdown timed out")
		}
	}, nil
}

// toRecord converts an internal outcome to its storage representation.
func toRecord(runID string, o dispatch.Outcome) store.OutcomeRecord {
	var errStr *string
	if o.Err != nil {
		s := o.Err.Error()
		errStr = &s
	}

	return store.OutcomeRecord{
		RunID:       runID,
		Seq:         o.Seq,
		URL:         o.URL,
		StatusCode:  o.StatusCode,
		LatencyMs:   o.Latency.Milliseconds(),
		CompletedAt: o.CompletedAt,
		Error:       errStr,
	}
}

// invokeCallbackSafe calls an outcome callback with panic recovery.
// Panics are logged but do not propagate.
func invokeCallbackSafe(cb func(Outcome), o Outcome, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("outcome callback panicked",
				"panic", r,
				"seq", o.Seq,
			)
		}
	}()
	cb(o)
}

// copyMap returns a shallow copy of the map.
func copyMap(m map[string]string) map[string]string {
	if m == nil {
		return nil
	}
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
