package server

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"io/fs"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/jpalmerr/burstgate/internal/store"
)

const (
	// sseWriteTimeout is the maximum time allowed for a single SSE write operation.
	// This prevents goroutine leaks when clients are slow or disconnected.
	sseWriteTimeout = 5 * time.Second

	shutdownTimeout = 5 * time.Second

	// titlePlaceholder is replaced with the page title in index.html.
	titlePlaceholder = "{{.Title}}"

	defaultTitle = "burstgate"
)

// Server exposes the outcomes and metrics of a running job over HTTP.
//
// Server provides these endpoints:
//   - GET /: Live outcome page (when assets are configured)
//   - GET /api/outcomes: Returns all outcomes recorded so far as JSON
//   - GET /api/sse: Server-Sent Events stream of outcomes
//   - GET /metrics: Prometheus metrics from the configured gatherer
type Server struct {
	store      store.Store
	addr       string
	assets     fs.FS
	title      string
	gatherer   prometheus.Gatherer
	httpServer *http.Server
	logger     *slog.Logger

	mu       sync.Mutex
	boundTo  net.Addr
	shutdown chan struct{}
}

// NewServer creates a new monitor [Server].
//
// Parameters:
//   - st: Store holding the run's outcomes
//   - addr: TCP address to listen on (e.g. ":9090", "127.0.0.1:0")
//   - assets: Filesystem holding assets/index.html (may be nil)
//   - title: Page title; defaults to "burstgate" when empty
//   - gatherer: Source for /metrics; nil disables the route
//   - logger: Logger for server events
//
// The server is not started until [Server.Start] is called.
func NewServer(st store.Store, addr string, assets fs.FS, title string, gatherer prometheus.Gatherer, logger *slog.Logger) *Server {
	return &Server{
		store:    st,
		addr:     addr,
		assets:   assets,
		title:    title,
		gatherer: gatherer,
		logger:   logger,
		shutdown: make(chan struct{}),
	}
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/outcomes", s.handleOutcomes)
	mux.HandleFunc("/api/sse", s.handleSSE)
	if s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	if s.assets != nil {
		mux.HandleFunc("/", s.handleDashboard)
	}
	return mux
}

// Start begins serving HTTP requests in a background goroutine.
//
// Start is non-blocking and returns immediately after confirming the server
// is listening. The server runs until ctx is cancelled, then shuts down
// gracefully; [Server.Done] is closed once shutdown completes.
//
// Returns an error if the server fails to bind to the configured address.
func (s *Server) Start(ctx context.Context) error {
	// create listener first to verify address availability synchronously
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to bind to %s: %w", s.addr, err)
	}

	s.mu.Lock()
	s.boundTo = ln.Addr()
	s.mu.Unlock()

	s.httpServer = &http.Server{
		Handler: s.Handler(),
		// request contexts derive from ctx so SSE handlers end on shutdown
		BaseContext: func(_ net.Listener) context.Context {
			return ctx
		},
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.logger.Error("monitor server error", "error", err)
		}
	}()

	go func() {
		defer close(s.shutdown)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("monitor server shutdown error", "error", err)
		}
	}()

	s.logger.Info("monitor listening", "addr", ln.Addr().String())
	return nil
}

// Addr returns the address the server is bound to, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.boundTo
}

// Done is closed once a started server has shut down.
func (s *Server) Done() <-chan struct{} {
	return s.shutdown
}

// handleDashboard serves the live outcome page.
func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}

	if s.assets == nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	content, err := fs.ReadFile(s.assets, "assets/index.html")
	if err != nil {
		http.Error(w, "Dashboard not found", http.StatusInternalServerError)
		return
	}

	title := s.title
	if title == "" {
		title = defaultTitle
	}
	// the title usually carries the target URL, so escape it
	rendered := strings.ReplaceAll(string(content), titlePlaceholder, html.EscapeString(title))

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(rendered)); err != nil {
		s.logger.Error("failed to write dashboard response", "error", err)
	}
}

// handleOutcomes returns all recorded outcomes as JSON.
func (s *Server) handleOutcomes(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	records := s.store.GetAll()

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Cache-Control", "no-cache")

	if err := json.NewEncoder(w).Encode(records); err != nil {
		s.logger.Error("failed to encode outcomes response", "error", err)
	}
}

// handleSSE streams outcomes via Server-Sent Events.
//
// Outcomes already recorded are sent first, then new ones as they arrive.
// Write deadlines keep a slow or vanished client from pinning the handler.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	if _, ok := w.(http.Flusher); !ok {
		http.Error(w, "SSE not supported", http.StatusInternalServerError)
		return
	}

	rc := http.NewResponseController(w)

	// not every ResponseWriter supports deadlines
	deadlinesSupported := true

	writeAndFlush := func(data []byte) error {
		if deadlinesSupported {
			if err := rc.SetWriteDeadline(time.Now().Add(sseWriteTimeout)); err != nil {
				s.logger.Warn("sse write deadlines not supported", "error", err)
				deadlinesSupported = false
			}
		}

		if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
			return err
		}
		return rc.Flush()
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	// subscribe before the snapshot so nothing falls between the two
	ch := s.store.Subscribe()
	defer s.store.Unsubscribe(ch)

	// records appended between Subscribe and GetAll arrive on both paths
	sent := make(map[recordKey]struct{})
	for _, rec := range s.store.GetAll() {
		data, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		if err := writeAndFlush(data); err != nil {
			return
		}
		sent[keyOf(rec)] = struct{}{}
	}

	for {
		select {
		case rec, ok := <-ch:
			if !ok {
				return
			}
			if _, dup := sent[keyOf(rec)]; dup {
				delete(sent, keyOf(rec))
				continue
			}
			data, err := json.Marshal(rec)
			if err != nil {
				continue
			}
			if err := writeAndFlush(data); err != nil {
				return
			}

		case <-r.Context().Done():
			// fires on both client disconnect and server shutdown
			return
		}
	}
}

type recordKey struct {
	runID string
	seq   int
}

func keyOf(rec store.OutcomeRecord) recordKey {
	return recordKey{runID: rec.RunID, seq: rec.Seq}
}
