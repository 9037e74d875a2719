package main

import (
	"log/slog"
	"math/rand"
	"net/http"
	"sync/atomic"
	"time"
)

// StartMockTarget runs a flaky target on addr: latency varies between 20ms
// and 200ms, roughly one request in eight gets a 503, and one in twenty
// hangs for two seconds. It also tracks how many requests were in flight at
// once. Call this in a goroutine before running a job against it.
func StartMockTarget(addr string, peak *atomic.Int64) {
	var inFlight atomic.Int64

	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		defer inFlight.Add(-1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}

		// slow enough to trip a one-second request timeout
		delay := time.Duration(20+rand.Intn(180)) * time.Millisecond
		if rand.Intn(20) == 0 {
			delay = 2 * time.Second
		}
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			return
		}

		if rand.Intn(8) == 0 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("mock target error", "error", err)
	}
}
