package burstgate

import (
	"errors"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/burstgate/internal/dispatch"
)

// jobConfig holds mutable state during Job construction.
type jobConfig struct {
	gate             Gate
	timeout          time.Duration
	headers          map[string]string
	pacingDelay      time.Duration
	rateLimit        float64
	rateBurst        int
	logger           *slog.Logger
	outcomeCallbacks []func(Outcome)
	registerer       prometheus.Registerer
	listenAddr       string
	newPool          dispatch.PoolFactory
}

// Option is a function that configures a [Job] during construction.
//
// Option implements the functional options pattern, allowing optional
// configuration to be passed to [New] in a type-safe, extensible way.
// Options return an error if validation fails.
type Option func(*jobConfig) error

// WithGate sets the [Gate] consulted before the job runs.
//
// Defaults to [AllowAll]. Use [AllOf] to combine several policies.
//
// Example:
//
//	job, err := burstgate.New(url, 50,
//	    burstgate.WithGate(burstgate.AllOf(
//	        burstgate.HostGate("staging.example.com"),
//	        burstgate.QuotaGate(100),
//	    )),
//	)
//
// Returns an error if the gate is nil.
func WithGate(g Gate) Option {
	return func(cfg *jobConfig) error {
		if g == nil {
			return errors.New("gate cannot be nil")
		}
		cfg.gate = g
		return nil
	}
}

// WithTimeout bounds each request. A request that has not completed within
// d is recorded as a failed [Outcome]. Defaults to 10 seconds.
//
// Returns an error if the duration is zero or negative.
func WithTimeout(d time.Duration) Option {
	return func(cfg *jobConfig) error {
		if d <= 0 {
			return errors.New("timeout must be positive")
		}
		cfg.timeout = d
		return nil
	}
}

// WithHeaders adds HTTP headers sent with every request.
//
// Accepts variadic key-value pairs. The number of arguments must be even.
//
// Example:
//
//	job, err := burstgate.New(url, 10,
//	    burstgate.WithHeaders("Authorization", "Bearer token123"),
//	)
//
// Returns an error if an odd number of arguments is provided.
func WithHeaders(keyValues ...string) Option {
	return func(cfg *jobConfig) error {
		if len(keyValues)%2 != 0 {
			return errors.New("WithHeaders requires an even number of arguments (key-value pairs)")
		}
		if cfg.headers == nil {
			cfg.headers = make(map[string]string, len(keyValues)/2)
		}
		for i := 0; i < len(keyValues); i += 2 {
			cfg.headers[keyValues[i]] = keyValues[i+1]
		}
		return nil
	}
}

// WithPacingDelay sets the pause each request task takes after its response
// arrives. The pause lengthens that task only; it does not limit how many
// requests are in flight (see [WithRateLimit] for that). Defaults to 10ms.
// Zero disables the pause.
//
// Returns an error if the duration is negative.
func WithPacingDelay(d time.Duration) Option {
	return func(cfg *jobConfig) error {
		if d < 0 {
			return errors.New("pacing delay cannot be negative")
		}
		cfg.pacingDelay = d
		return nil
	}
}

// WithRateLimit spaces request starts with a token bucket allowing
// perSecond requests per second and bursts of up to burst requests.
// Every task is still launched at once; tasks wait for a token before
// sending. Disabled by default.
//
// Returns an error if perSecond is not positive or burst is below 1.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(cfg *jobConfig) error {
		if perSecond <= 0 {
			return errors.New("rate limit must be positive")
		}
		if burst < 1 {
			return errors.New("rate limit burst must be at least 1")
		}
		cfg.rateLimit = perSecond
		cfg.rateBurst = burst
		return nil
	}
}

// WithLogger sets a custom [slog.Logger] for the job.
//
// If not specified, [slog.Default] is used.
//
// Returns an error if the logger is nil.
func WithLogger(logger *slog.Logger) Option {
	return func(cfg *jobConfig) error {
		if logger == nil {
			return errors.New("logger cannot be nil")
		}
		cfg.logger = logger
		return nil
	}
}

// WithOutcomeCallback registers a function called once per request as its
// [Outcome] is collected, in completion order.
//
// Multiple callbacks may be registered; they execute in registration order.
// Callbacks run synchronously on the goroutine collecting results and must
// not block. Panics within callbacks are recovered and logged.
//
// Example:
//
//	job, err := burstgate.New(url, 10,
//	    burstgate.WithOutcomeCallback(func(o burstgate.Outcome) {
//	        fmt.Println(o)
//	    }),
//	)
//
// Nil callbacks are silently ignored.
func WithOutcomeCallback(cb func(Outcome)) Option {
	return func(cfg *jobConfig) error {
		if cb == nil {
			return nil
		}
		cfg.outcomeCallbacks = append(cfg.outcomeCallbacks, cb)
		return nil
	}
}

// WithRegisterer registers the job's Prometheus collectors with reg.
//
// If not specified, each job gets its own registry. When reg also
// implements [prometheus.Gatherer] it backs the monitor's /metrics route.
//
// Returns an error if reg is nil.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(cfg *jobConfig) error {
		if reg == nil {
			return errors.New("registerer cannot be nil")
		}
		cfg.registerer = reg
		return nil
	}
}

// WithListenAddr starts a monitor HTTP server on addr for the duration of
// the run. It serves a live outcome page at /, the outcomes so far at
// /api/outcomes, a Server-Sent Events stream at /api/sse and the job's
// metrics at /metrics.
//
// Returns an error if addr is empty.
func WithListenAddr(addr string) Option {
	return func(cfg *jobConfig) error {
		if addr == "" {
			return errors.New("listen address cannot be empty")
		}
		cfg.listenAddr = addr
		return nil
	}
}

// withPoolFactory replaces the connection pool factory.
func withPoolFactory(f dispatch.PoolFactory) Option {
	return func(cfg *jobConfig) error {
		cfg.newPool = f
		return nil
	}
}
