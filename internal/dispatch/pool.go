package dispatch

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

const maxResponseBodySize = 1 << 20 // 1MB

const (
	defaultIdleConnTimeout = 60 * time.Second
	minIdleConnsPerHost    = 2
)

// ErrPoolClosed is returned by [Pool.Close] when the pool was already released.
var ErrPoolClosed = errors.New("connection pool already closed")

// Response holds the result of a single request made through a [Pool].
type Response struct {
	// StatusCode is the HTTP status code (e.g., 200, 404, 500).
	// Zero if the request failed before receiving a response.
	StatusCode int

	// BytesRead is the number of body bytes drained, capped at 1MB.
	BytesRead int64

	// Latency is the time from sending the request to draining the body.
	Latency time.Duration

	// Error contains any transport-level error.
	// nil indicates a response was received, whatever its status.
	Error error
}

// Pool is the transport resource shared by all tasks of one dispatch call.
//
// Pool exposes only two capabilities: issuing a GET and being released.
// It carries no per-task state, so tasks may call [Pool.Get] concurrently
// without further locking.
type Pool interface {
	Get(ctx context.Context, url string, headers map[string]string, timeout time.Duration) Response
	Close() error
}

// PoolFactory creates the [Pool] for one dispatch call. size is the
// number of requests that will be issued through it.
type PoolFactory func(size int) Pool

// HTTPPool is the default [Pool], backed by a dedicated http.Transport.
//
// Timeouts are applied per request via context rather than as a client-wide
// timeout. No cap is placed on connections per host: every task of a
// dispatch call may hold its own connection at the same time.
type HTTPPool struct {
	httpClient *http.Client
	transport  *http.Transport
	closed     atomic.Bool
}

// NewHTTPPool creates an [HTTPPool] whose idle pool can keep size
// connections to the target host.
func NewHTTPPool(size int) *HTTPPool {
	idle := size
	if idle < minIdleConnsPerHost {
		idle = minIdleConnsPerHost
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        idle,
		MaxIdleConnsPerHost: idle,
		IdleConnTimeout:     defaultIdleConnTimeout,
	}

	return &HTTPPool{
		// no client timeout - per-request timeouts come from the context
		httpClient: &http.Client{Transport: transport},
		transport:  transport,
	}
}

// Get issues a GET request and returns a structured [Response].
//
// Get always returns a Response; errors are captured in the Error field
// rather than returned separately. The body is drained (up to 1MB) so the
// connection can go back to the idle pool.
func (p *HTTPPool) Get(ctx context.Context, url string, headers map[string]string, timeout time.Duration) Response {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return Response{
			Latency: time.Since(start),
			Error:   fmt.Errorf("failed to create request: %w", err),
		}
	}

	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		// the client error already names the method and URL
		return Response{
			Latency: time.Since(start),
			Error:   err,
		}
	}
	defer func() { _ = resp.Body.Close() }()

	n, err := io.Copy(io.Discard, io.LimitReader(resp.Body, maxResponseBodySize))
	if err != nil {
		return Response{
			StatusCode: resp.StatusCode,
			BytesRead:  n,
			Latency:    time.Since(start),
			Error:      fmt.Errorf("failed to read response body: %w", err),
		}
	}

	return Response{
		StatusCode: resp.StatusCode,
		BytesRead:  n,
		Latency:    time.Since(start),
	}
}

// Close releases every idle connection held by the pool.
//
// The first call returns nil; later calls return [ErrPoolClosed].
// In-flight requests are not interrupted by Close, cancel their
// context for that.
func (p *HTTPPool) Close() error {
	if p == nil || p.transport == nil {
		return ErrPoolClosed
	}
	if !p.closed.CompareAndSwap(false, true) {
		return ErrPoolClosed
	}
	p.transport.CloseIdleConnections()
	return nil
}

// DefaultPoolFactory creates an [HTTPPool] per dispatch call.
func DefaultPoolFactory(size int) Pool {
	return NewHTTPPool(size)
}
