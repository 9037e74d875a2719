package burstgate

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/jpalmerr/burstgate/internal/dispatch"
)

// testLogger returns a logger that discards all output for clean test output.
func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// trackingPool counts pool acquisitions and releases around a real pool.
type trackingPool struct {
	acquired atomic.Int32
	released atomic.Int32
}

func (tp *trackingPool) factory(size int) dispatch.Pool {
	tp.acquired.Add(1)
	return &releaseCounter{Pool: dispatch.NewHTTPPool(size), released: &tp.released}
}

type releaseCounter struct {
	dispatch.Pool
	released *atomic.Int32
}

func (r *releaseCounter) Close() error {
	r.released.Add(1)
	return r.Pool.Close()
}

// fakePool returns canned responses in call order.
type fakePool struct {
	mu        sync.Mutex
	calls     int
	responses []dispatch.Response
}

func (f *fakePool) Get(context.Context, string, map[string]string, time.Duration) dispatch.Response {
	f.mu.Lock()
	defer f.mu.Unlock()
	resp := f.responses[f.calls%len(f.responses)]
	f.calls++
	return resp
}

func (f *fakePool) Close() error { return nil }

func newTestJob(t *testing.T, url string, count int, opts ...Option) *Job {
	t.Helper()
	opts = append([]Option{WithLogger(testLogger()), WithPacingDelay(0)}, opts...)
	job, err := New(url, count, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return job
}

func okServer(t *testing.T, hits *atomic.Int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits != nil {
			hits.Add(1)
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRun_AllSucceed(t *testing.T) {
	var hits atomic.Int32
	server := okServer(t, &hits)
	pools := &trackingPool{}

	job := newTestJob(t, server.URL, 3, withPoolFactory(pools.factory))
	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if !report.Authorized {
		t.Error("report should be authorized")
	}
	if report.RunID == "" {
		t.Error("report should carry a run ID")
	}
	if len(report.Outcomes) != 3 {
		t.Fatalf("len(Outcomes) = %d, want 3", len(report.Outcomes))
	}
	for _, o := range report.Outcomes {
		if o.StatusCode != http.StatusOK || o.Err != nil {
			t.Errorf("unexpected outcome %+v", o)
		}
	}
	if report.Succeeded() != 3 || report.Failed() != 0 {
		t.Errorf("Succeeded/Failed = %d/%d, want 3/0", report.Succeeded(), report.Failed())
	}
	if hits.Load() != 3 {
		t.Errorf("server hits = %d, want 3", hits.Load())
	}
	if pools.acquired.Load() != 1 || pools.released.Load() != 1 {
		t.Errorf("pool acquired/released = %d/%d, want 1/1", pools.acquired.Load(), pools.released.Load())
	}
	if report.FinishedAt.Before(report.StartedAt) {
		t.Error("FinishedAt should not precede StartedAt")
	}
}

func TestRun_ZeroCount(t *testing.T) {
	pools := &trackingPool{}
	job := newTestJob(t, "http://127.0.0.1:1", 0, withPoolFactory(pools.factory))

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if report.Outcomes == nil || len(report.Outcomes) != 0 {
		t.Errorf("Outcomes = %v, want empty non-nil slice", report.Outcomes)
	}
	if pools.acquired.Load() != 0 {
		t.Error("no pool should be created for a zero count")
	}
}

func TestRun_Unreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	job := newTestJob(t, "http://"+addr, 1, WithTimeout(time.Second))

	done := make(chan struct{})
	var report Report
	go func() {
		defer close(done)
		report, err = job.Run(context.Background())
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run() hung on unreachable target")
	}

	if err != nil {
		t.Fatalf("Run() error = %v, want nil (failures are outcomes)", err)
	}
	if len(report.Outcomes) != 1 || !report.Outcomes[0].Failed() {
		t.Errorf("expected one failed outcome, got %+v", report.Outcomes)
	}
}

func TestRun_Denied(t *testing.T) {
	var hits atomic.Int32
	server := okServer(t, &hits)
	pools := &trackingPool{}

	var calls atomic.Int32
	job := newTestJob(t, server.URL, 5,
		WithGate(DenyAll()),
		withPoolFactory(pools.factory),
		WithOutcomeCallback(func(Outcome) { calls.Add(1) }),
	)

	report, err := job.Run(context.Background())
	if !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("Run() error = %v, want ErrUnauthorized", err)
	}
	if report.Authorized {
		t.Error("report should not be authorized")
	}
	if len(report.Outcomes) != 0 {
		t.Errorf("len(Outcomes) = %d, want 0", len(report.Outcomes))
	}
	if hits.Load() != 0 || pools.acquired.Load() != 0 || calls.Load() != 0 {
		t.Errorf("denied job caused activity: hits=%d pools=%d callbacks=%d",
			hits.Load(), pools.acquired.Load(), calls.Load())
	}
}

func TestRun_GateCalledOnceWithTarget(t *testing.T) {
	server := okServer(t, nil)

	var calls atomic.Int32
	var seen Target
	gate := GateFunc(func(_ context.Context, tg Target) bool {
		calls.Add(1)
		seen = tg
		return true
	})

	job := newTestJob(t, server.URL, 4, WithGate(gate))
	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if calls.Load() != 1 {
		t.Errorf("gate called %d times, want 1", calls.Load())
	}
	if seen != (Target{URL: server.URL, Count: 4}) {
		t.Errorf("gate saw %+v", seen)
	}
}

func TestRun_MixedOutcomes(t *testing.T) {
	pool := &fakePool{responses: []dispatch.Response{
		{StatusCode: 200}, {StatusCode: 200}, {StatusCode: 200},
		{StatusCode: 404},
		{Error: errors.New("request failed: connection refused")},
	}}

	job := newTestJob(t, "http://target.test", 5,
		withPoolFactory(func(int) dispatch.Pool { return pool }),
	)

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Outcomes) != 5 {
		t.Fatalf("len(Outcomes) = %d, want 5", len(report.Outcomes))
	}

	counts := map[string]int{}
	for _, o := range report.Outcomes {
		switch {
		case o.Failed():
			counts["error"]++
		case o.StatusCode == 200:
			counts["200"]++
		case o.StatusCode == 404:
			counts["404"]++
		}
	}
	if counts["200"] != 3 || counts["404"] != 1 || counts["error"] != 1 {
		t.Errorf("outcome mix = %v", counts)
	}
	if report.Succeeded() != 3 || report.Failed() != 2 {
		t.Errorf("Succeeded/Failed = %d/%d, want 3/2", report.Succeeded(), report.Failed())
	}
}

func TestRun_Cancelled(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer server.Close()

	pools := &trackingPool{}
	job := newTestJob(t, server.URL, 3, withPoolFactory(pools.factory), WithTimeout(time.Minute))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)

	report, err := job.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run() error = %v, want context.Canceled", err)
	}
	if len(report.Outcomes) != 3 {
		t.Errorf("len(Outcomes) = %d, want 3", len(report.Outcomes))
	}
	if pools.released.Load() != 1 {
		t.Errorf("pool released %d times, want 1", pools.released.Load())
	}
}

func TestRun_Twice(t *testing.T) {
	job := newTestJob(t, "http://127.0.0.1:1", 0)

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("first Run() error = %v", err)
	}
	if _, err := job.Run(context.Background()); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("second Run() error = %v, want ErrAlreadyRun", err)
	}
}

func TestRun_CallbacksSeeEveryOutcome(t *testing.T) {
	server := okServer(t, nil)

	var mu sync.Mutex
	var lines []string
	job := newTestJob(t, server.URL, 4,
		WithOutcomeCallback(func(Outcome) { panic("misbehaving callback") }),
		WithOutcomeCallback(func(o Outcome) {
			mu.Lock()
			defer mu.Unlock()
			lines = append(lines, o.String())
		}),
	)

	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(lines) != 4 {
		t.Fatalf("callback saw %d outcomes, want 4", len(lines))
	}
	for i, o := range report.Outcomes {
		if lines[i] != o.String() {
			t.Errorf("callback order differs from report at %d: %q vs %q", i, lines[i], o.String())
		}
	}
}

func TestRun_HeadersSent(t *testing.T) {
	var got atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("X-Api-Key"))
	}))
	defer server.Close()

	job := newTestJob(t, server.URL, 1, WithHeaders("X-Api-Key", "k1"))
	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got.Load() != "k1" {
		t.Errorf("X-Api-Key = %v, want k1", got.Load())
	}
}

func counterTotal(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	total := 0.0
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func TestRun_Metrics(t *testing.T) {
	server := okServer(t, nil)
	reg := prometheus.NewRegistry()

	job := newTestJob(t, server.URL, 2, WithRegisterer(reg))
	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	denied := newTestJob(t, server.URL, 2, WithRegisterer(reg), WithGate(DenyAll()))
	_, _ = denied.Run(context.Background())

	if got := counterTotal(t, reg, "burstgate_requests_total"); got != 2 {
		t.Errorf("requests_total = %v, want 2", got)
	}
	if got := counterTotal(t, reg, "burstgate_gate_decisions_total"); got != 2 {
		t.Errorf("gate_decisions_total = %v, want 2", got)
	}
	if got := counterTotal(t, reg, "burstgate_pool_releases_total"); got != 1 {
		t.Errorf("pool_releases_total = %v, want 1", got)
	}
}

func TestRun_MonitorAddressInUse(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	var hits atomic.Int32
	server := okServer(t, &hits)

	job := newTestJob(t, server.URL, 2, WithListenAddr(ln.Addr().String()))
	_, err = job.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "failed to start monitor") {
		t.Fatalf("Run() error = %v, want monitor start failure", err)
	}
	if hits.Load() != 0 {
		t.Errorf("no request should be sent when the monitor fails, got %d", hits.Load())
	}
}

func TestRun_WithMonitor(t *testing.T) {
	server := okServer(t, nil)

	job := newTestJob(t, server.URL, 2, WithListenAddr("127.0.0.1:0"))
	report, err := job.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(report.Outcomes) != 2 {
		t.Errorf("len(Outcomes) = %d, want 2", len(report.Outcomes))
	}
}

func TestRun_MonitorServesLivePageDuringRun(t *testing.T) {
	server := okServer(t, nil)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	var (
		once sync.Once
		page string
		code int
	)
	job := newTestJob(t, server.URL, 2,
		WithListenAddr(addr),
		WithOutcomeCallback(func(Outcome) {
			once.Do(func() {
				resp, err := http.Get("http://" + addr + "/")
				if err != nil {
					return
				}
				defer resp.Body.Close()
				body, _ := io.ReadAll(resp.Body)
				code, page = resp.StatusCode, string(body)
			})
		}),
	)

	if _, err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if code != http.StatusOK {
		t.Fatalf("live page status = %d, want 200", code)
	}
	if !strings.Contains(page, server.URL+" x2") {
		t.Errorf("live page should be titled with the target, got: %s", page)
	}
}
