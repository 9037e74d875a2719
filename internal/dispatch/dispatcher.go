package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jpalmerr/burstgate/internal/pacing"
)

// Observer is notified of dispatch lifecycle events.
//
// Methods are called from task goroutines and must be safe for concurrent use.
// A panic in a method is recovered and logged.
type Observer interface {
	TaskStarted()
	TaskFinished(o Outcome)
	PoolReleased(err error)
}

type nopObserver struct{}

func (nopObserver) TaskStarted()         {}
func (nopObserver) TaskFinished(Outcome) {}
func (nopObserver) PoolReleased(error)   {}

// Config holds the settings applied to every task of a dispatch call.
type Config struct {
	// Timeout bounds each request. Zero means no per-request bound.
	Timeout time.Duration

	// Headers are sent with every request.
	Headers map[string]string

	// Pacer spaces requests. nil means no pacing.
	Pacer pacing.Pacer

	// NewPool creates the pool for each dispatch call.
	// nil means [DefaultPoolFactory].
	NewPool PoolFactory

	// Observer receives lifecycle events. nil means none.
	Observer Observer

	// OnOutcome is called for each outcome as it is collected, in
	// completion order, from the goroutine running [Dispatcher.Dispatch].
	OnOutcome func(Outcome)
}

// Dispatcher issues a fixed number of concurrent GET requests per call.
//
// Each call to [Dispatcher.Dispatch] owns its own [Pool]; pools are never
// shared between calls. Dispatcher itself holds only configuration and is
// safe for concurrent use.
type Dispatcher struct {
	timeout   time.Duration
	headers   map[string]string
	pacer     pacing.Pacer
	newPool   PoolFactory
	observer  Observer
	onOutcome func(Outcome)
	logger    *slog.Logger
}

// NewDispatcher creates a [Dispatcher] from cfg.
func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	d := &Dispatcher{
		timeout:   cfg.Timeout,
		headers:   cfg.Headers,
		pacer:     cfg.Pacer,
		newPool:   cfg.NewPool,
		observer:  cfg.Observer,
		onOutcome: cfg.OnOutcome,
		logger:    logger,
	}
	if d.pacer == nil {
		d.pacer = pacing.Nop()
	}
	if d.newPool == nil {
		d.newPool = DefaultPoolFactory
	}
	if d.observer == nil {
		d.observer = nopObserver{}
	}
	if d.logger == nil {
		d.logger = slog.Default()
	}
	return d
}

// Dispatch sends count GET requests to url concurrently and returns one
// [Outcome] per request, ordered by completion.
//
// A count of zero or less returns an empty slice without creating a pool.
// Otherwise every task is launched before any result is read, there is no
// cap on in-flight requests, and Dispatch returns only once every task has
// finished. Failing tasks never stop their siblings. The pool is released
// exactly once before Dispatch returns, including when ctx is cancelled.
func (d *Dispatcher) Dispatch(ctx context.Context, url string, count int) []Outcome {
	if count <= 0 {
		return []Outcome{}
	}

	pool := d.newPool(count)
	defer d.release(pool)

	results := make(chan Outcome, count)

	var wg sync.WaitGroup
	wg.Add(count)
	for seq := 0; seq < count; seq++ {
		t := task{seq: seq, url: url, headers: d.headers, timeout: d.timeout}
		go func() {
			defer wg.Done()
			d.notify("task_started", d.observer.TaskStarted)
			out := t.safeExecute(ctx, pool, d)
			d.notify("task_finished", func() { d.observer.TaskFinished(out) })
			results <- out
		}()
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	outcomes := make([]Outcome, 0, count)
	for out := range results {
		outcomes = append(outcomes, out)
		if d.onOutcome != nil {
			d.onOutcome(out)
		}
	}

	return outcomes
}

// release closes the pool and reports the result. A release failure is
// logged but never changes the outcomes already collected.
func (d *Dispatcher) release(pool Pool) {
	err := pool.Close()
	d.notify("pool_released", func() { d.observer.PoolReleased(err) })
	if err != nil {
		d.logger.Warn("connection pool release failed", "error", err)
	}
}

// notify calls an observer hook with panic recovery. A panicking observer
// is logged and never costs a task its outcome.
func (d *Dispatcher) notify(event string, hook func()) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("observer panic",
				"event", event,
				"panic", fmt.Sprintf("%v", r),
			)
		}
	}()
	hook()
}
