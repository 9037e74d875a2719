package burstgate

import (
	"fmt"
	"time"

	"github.com/jpalmerr/burstgate/internal/dispatch"
)

// Outcome is the recorded result of a single request attempt.
//
// Exactly one Outcome is produced per request, whether it succeeded or not.
// Outcomes are immutable once delivered.
type Outcome struct {
	// Seq is the submission index of the request, starting at 0.
	// Outcomes are delivered in completion order, so Seq values arrive
	// out of order.
	Seq int

	// URL is the target that was requested.
	URL string

	// StatusCode is the HTTP status received.
	// Zero if the request failed before receiving a response.
	StatusCode int

	// Err describes why the request failed: a connection error, a timeout,
	// cancellation, or a recovered panic. nil when a response was received,
	// whatever its status.
	Err error

	// Latency is the request round trip, excluding pacing.
	Latency time.Duration

	// CompletedAt is when the request task finished.
	CompletedAt time.Time
}

// Failed reports whether the request ended without a response.
func (o Outcome) Failed() bool {
	return o.Err != nil
}

// OK reports whether a response with a 2xx or 3xx status was received.
func (o Outcome) OK() bool {
	return o.Err == nil && o.StatusCode >= 200 && o.StatusCode < 400
}

// String renders the outcome as a single report line, numbering requests
// from 1.
func (o Outcome) String() string {
	if o.Err != nil {
		return fmt.Sprintf("request %d: failed: %v", o.Seq+1, o.Err)
	}
	return fmt.Sprintf("request %d: status %d (%s)", o.Seq+1, o.StatusCode, o.Latency.Round(time.Millisecond))
}

// Report summarises one [Job.Run].
type Report struct {
	// RunID uniquely identifies the run.
	RunID string

	// Target is the job's URL and request count.
	Target Target

	// Authorized is false when the gate denied the job.
	Authorized bool

	// StartedAt is when Run was called.
	StartedAt time.Time

	// FinishedAt is when Run returned.
	FinishedAt time.Time

	// Outcomes holds one entry per request, in completion order.
	// Empty when the job was not authorized.
	Outcomes []Outcome
}

// Succeeded counts outcomes for which [Outcome.OK] is true.
func (r Report) Succeeded() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed counts outcomes for which [Outcome.OK] is false, including
// non-success statuses.
func (r Report) Failed() int {
	return len(r.Outcomes) - r.Succeeded()
}

// fromDispatch converts an internal outcome to the public type.
func fromDispatch(o dispatch.Outcome) Outcome {
	return Outcome{
		Seq:         o.Seq,
		URL:         o.URL,
		StatusCode:  o.StatusCode,
		Err:         o.Err,
		Latency:     o.Latency,
		CompletedAt: o.CompletedAt,
	}
}
