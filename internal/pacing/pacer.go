// Package pacing spaces out requests issued by the dispatcher.
//
// A [Pacer] has two hooks: Before runs ahead of a request and After runs once
// its response has been received. [Delay] implements the fixed post-response
// pause, [Limiter] a token bucket shared by every task of a run.
package pacing

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Pacer controls when a request may start and when its task may complete.
//
// Implementations must be safe for concurrent use; one Pacer is shared by
// all tasks of a dispatch call.
type Pacer interface {
	// Before blocks until the request may be sent.
	Before(ctx context.Context) error

	// After blocks once the response has been received.
	After(ctx context.Context) error
}

// Nop returns a Pacer that never waits.
func Nop() Pacer {
	return nopPacer{}
}

type nopPacer struct{}

func (nopPacer) Before(context.Context) error { return nil }
func (nopPacer) After(context.Context) error  { return nil }

// Delay returns a Pacer that pauses for d after each response.
//
// The pause only stretches the completion time of the task it belongs to;
// it does not limit how many requests are in flight. A non-positive d
// returns [Nop].
func Delay(d time.Duration) Pacer {
	if d <= 0 {
		return Nop()
	}
	return delayPacer{d: d}
}

type delayPacer struct {
	d time.Duration
}

func (p delayPacer) Before(context.Context) error { return nil }

func (p delayPacer) After(ctx context.Context) error {
	timer := time.NewTimer(p.d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Limiter returns a token-bucket Pacer allowing perSecond requests per
// second with the given burst. A burst below 1 is raised to 1.
// A non-positive perSecond returns [Nop].
func Limiter(perSecond float64, burst int) Pacer {
	if perSecond <= 0 {
		return Nop()
	}
	if burst < 1 {
		burst = 1
	}
	return &limiterPacer{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

type limiterPacer struct {
	lim *rate.Limiter
}

func (p *limiterPacer) Before(ctx context.Context) error {
	return p.lim.Wait(ctx)
}

func (p *limiterPacer) After(context.Context) error { return nil }

// Chain runs pacers in order, stopping at the first error.
func Chain(pacers ...Pacer) Pacer {
	filtered := make([]Pacer, 0, len(pacers))
	for _, p := range pacers {
		if p == nil {
			continue
		}
		if _, ok := p.(nopPacer); ok {
			continue
		}
		filtered = append(filtered, p)
	}

	switch len(filtered) {
	case 0:
		return Nop()
	case 1:
		return filtered[0]
	}
	return chain(filtered)
}

type chain []Pacer

func (c chain) Before(ctx context.Context) error {
	for _, p := range c {
		if err := p.Before(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (c chain) After(ctx context.Context) error {
	for _, p := range c {
		if err := p.After(ctx); err != nil {
			return err
		}
	}
	return nil
}
