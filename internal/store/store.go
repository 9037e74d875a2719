package store

import "time"

// OutcomeRecord is the storage representation of one request outcome,
// shaped for JSON (used by the monitor API and SSE stream).
type OutcomeRecord struct {
	// RunID identifies the job run the request belonged to.
	RunID string `json:"run_id"`

	// Seq is the submission index of the request within its run.
	Seq int `json:"seq"`

	// URL is the target that was requested.
	URL string `json:"url"`

	// StatusCode is the HTTP status, 0 when the request failed first.
	StatusCode int `json:"status_code"`

	// LatencyMs is the request round trip in milliseconds.
	LatencyMs int64 `json:"latency_ms"`

	// CompletedAt is when the request task finished.
	CompletedAt time.Time `json:"completed_at"`

	// Error contains the failure description, nil on success.
	Error *string `json:"error"`
}

// Store defines the interface for recording and subscribing to outcomes.
//
// Store implementations must be safe for concurrent access.
type Store interface {
	// Append records an outcome and notifies all subscribers.
	Append(record OutcomeRecord)

	// GetAll returns every record in append order.
	// The returned slice is a snapshot; modifications do not affect the store.
	GetAll() []OutcomeRecord

	// Subscribe returns a channel that receives newly appended records.
	// Caller must call Unsubscribe when done to prevent resource leaks.
	Subscribe() <-chan OutcomeRecord

	// Unsubscribe removes a subscription and closes the channel.
	// Safe to call with a channel that was already unsubscribed.
	Unsubscribe(ch <-chan OutcomeRecord)
}
