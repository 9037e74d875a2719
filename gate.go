package burstgate

import (
	"context"
	"crypto/subtle"
	"net/url"
	"strings"
)

// Target is the view of a job handed to a [Gate].
type Target struct {
	// URL is the address every request is sent to.
	URL string

	// Count is the number of requests the job will issue.
	Count int
}

// Gate decides, at dispatch time, whether a job may run.
//
// Check is called exactly once per [Job.Run], before any network activity.
// Returning false stops the job with [ErrUnauthorized] and no requests sent.
// Implementations should not have side effects beyond the decision itself.
type Gate interface {
	Check(ctx context.Context, t Target) bool
}

// GateFunc adapts a function to the [Gate] interface.
type GateFunc func(ctx context.Context, t Target) bool

// Check calls f.
func (f GateFunc) Check(ctx context.Context, t Target) bool {
	return f(ctx, t)
}

// AllowAll returns a [Gate] that approves every job.
// This is the gate used when none is configured.
func AllowAll() Gate {
	return GateFunc(func(context.Context, Target) bool { return true })
}

// DenyAll returns a [Gate] that rejects every job.
func DenyAll() Gate {
	return GateFunc(func(context.Context, Target) bool { return false })
}

// TokenGate returns a [Gate] approving jobs only when presented matches
// expected. The comparison runs in constant time. An empty expected token
// denies every job, so a missing secret never opens the gate.
func TokenGate(expected, presented string) Gate {
	return GateFunc(func(context.Context, Target) bool {
		if expected == "" {
			return false
		}
		return subtle.ConstantTimeCompare([]byte(expected), []byte(presented)) == 1
	})
}

// QuotaGate returns a [Gate] rejecting jobs that would issue more than limit
// requests.
func QuotaGate(limit int) Gate {
	return GateFunc(func(_ context.Context, t Target) bool {
		return t.Count <= limit
	})
}

// HostGate returns a [Gate] approving only targets whose host name is one
// of hosts. Host names are compared case-insensitively, without port.
func HostGate(hosts ...string) Gate {
	allowed := make(map[string]struct{}, len(hosts))
	for _, h := range hosts {
		allowed[strings.ToLower(h)] = struct{}{}
	}

	return GateFunc(func(_ context.Context, t Target) bool {
		u, err := url.Parse(t.URL)
		if err != nil {
			return false
		}
		_, ok := allowed[strings.ToLower(u.Hostname())]
		return ok
	})
}

// AllOf returns a [Gate] approving a job only when every gate approves.
// Gates are consulted in order and evaluation stops at the first denial.
// AllOf with no gates approves every job.
func AllOf(gates ...Gate) Gate {
	return GateFunc(func(ctx context.Context, t Target) bool {
		for _, g := range gates {
			if !g.Check(ctx, t) {
				return false
			}
		}
		return true
	})
}
