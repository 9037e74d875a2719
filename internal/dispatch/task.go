package dispatch

import (
	"context"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/google/uuid"
)

// Outcome is the recorded result of one request attempt.
//
// Exactly one Outcome is produced per task. It is immutable once sent.
type Outcome struct {
	// Seq is the submission index of the task, starting at 0.
	// It does not reflect the position in the completion-ordered results.
	Seq int

	// URL is the target that was requested.
	URL string

	// StatusCode is the HTTP status received. Zero when Err is set before
	// any response arrived.
	StatusCode int

	// Err describes a transport-level failure, a pacing wait that was
	// interrupted before the request was sent, or a recovered panic.
	Err error

	// Latency is the request round trip, excluding pacing.
	Latency time.Duration

	// CompletedAt is when the task reached its terminal state.
	CompletedAt time.Time
}

// Failed reports whether the attempt ended without a usable response.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// task executes one GET against url through a shared pool.
type task struct {
	seq     int
	url     string
	headers map[string]string
	timeout time.Duration
}

// execute runs the task and always returns an Outcome, never an error.
func (t task) execute(ctx context.Context, pool Pool, d *Dispatcher) Outcome {
	out := Outcome{Seq: t.seq, URL: t.url}

	if err := d.pacer.Before(ctx); err != nil {
		out.Err = fmt.Errorf("pacing: %w", err)
		out.CompletedAt = time.Now()
		return out
	}

	resp := pool.Get(ctx, t.url, t.headers, t.timeout)
	out.StatusCode = resp.StatusCode
	out.Latency = resp.Latency
	out.Err = resp.Error

	if resp.Error == nil {
		// a cancelled pause does not invalidate the status already received
		if err := d.pacer.After(ctx); err != nil {
			d.logger.Debug("pacing delay interrupted", "seq", t.seq, "error", err)
		}
	}

	out.CompletedAt = time.Now()
	return out
}

// safeExecute calls execute with panic recovery.
// A panic is logged with its stack under a correlation ID and turned into
// a failed Outcome carrying that ID.
func (t task) safeExecute(ctx context.Context, pool Pool, d *Dispatcher) (out Outcome) {
	defer func() {
		if r := recover(); r != nil {
			correlationID := uuid.NewString()

			d.logger.Error("request task panic",
				"correlation_id", correlationID,
				"seq", t.seq,
				"panic", fmt.Sprintf("%v", r),
				"stack", string(debug.Stack()),
			)

			out = Outcome{
				Seq:         t.seq,
				URL:         t.url,
				Err:         fmt.Errorf("task panic (correlation_id: %s)", correlationID),
				CompletedAt: time.Now(),
			}
		}
	}()
	return t.execute(ctx, pool, d)
}
