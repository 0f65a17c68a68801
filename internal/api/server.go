// Package api serves the router over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/moolen/insight/internal/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Config configures a Server.
type Config struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string

	Engine   Engine
	Adapters AdapterStatus

	// Gatherer backs /metrics. Nil serves the default registry.
	Gatherer prometheus.Gatherer

	// Now is used to resolve relative dates in requests.
	Now func() time.Time
}

// Server handles HTTP API requests and implements lifecycle.Component.
type Server struct {
	cfg    Config
	mux    *http.ServeMux
	server *http.Server
	logger *logging.Logger

	mu       sync.Mutex
	listener net.Listener
}

// New creates a new API server
func New(cfg Config) *Server {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		cfg:    cfg,
		mux:    http.NewServeMux(),
		logger: logging.GetLogger("api"),
	}
	s.registerHandlers()
	s.server = &http.Server{
		Addr:              cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

func (s *Server) registerHandlers() {
	queries := &queryHandler{engine: s.cfg.Engine, now: s.cfg.Now}

	s.mux.HandleFunc("/v1/query", withMethod(http.MethodPost, queries.handleQuery))
	s.mux.HandleFunc("/v1/classify", withMethod(http.MethodPost, queries.handleClassify))
	s.mux.HandleFunc("/v1/capabilities", withMethod(http.MethodGet, s.handleCapabilities))
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/ready", s.handleReady)
	s.mux.Handle("/metrics", promhttp.HandlerFor(s.cfg.Gatherer, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeError(w, &APIError{
			Code:       ErrorCodeNotFound,
			StatusCode: http.StatusNotFound,
			Message:    fmt.Sprintf("Endpoint not found: %s", r.URL.Path),
		})
	})
}

// Handler returns the instrumented request router.
func (s *Server) Handler() http.Handler {
	return s.instrument(s.mux)
}

// Start implements lifecycle.Component. It binds the listener synchronously
// so address conflicts fail startup.
func (s *Server) Start(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr, err)
	}
	s.mu.Lock()
	s.listener = lis
	s.mu.Unlock()

	go func() {
		if err := s.server.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server error: %v", err)
		}
	}()
	s.logger.Info("HTTP API listening on %s", lis.Addr())
	return nil
}

// Stop implements lifecycle.Component. In-flight queries finish within the
// context deadline.
func (s *Server) Stop(ctx context.Context) error {
	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Warn("HTTP server shutdown: %v", err)
		return err
	}
	return nil
}

// Name implements lifecycle.Component.
func (s *Server) Name() string {
	return "api-server"
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.cfg.Addr
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respond(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.cfg.Adapters != nil {
		if err := s.cfg.Adapters.Ready(); err != nil {
			respond(w, http.StatusServiceUnavailable, map[string]interface{}{
				"ready":  false,
				"reason": err.Error(),
			})
			return
		}
	}
	respond(w, http.StatusOK, map[string]interface{}{"ready": true})
}
