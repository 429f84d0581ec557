// Package server serves the build output over HTTP and tells connected
// browsers to reload through a websocket once a rebuild has finished.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/conneroisu/autobuild/internal/errors"
	"github.com/conneroisu/autobuild/internal/logging"
	"github.com/conneroisu/autobuild/internal/version"
)

// ReloadPath is the websocket endpoint used by the injected script.
const ReloadPath = "/websocket-reload"

// Options configures a Server.
type Options struct {
	Host           string
	Port           int
	Root           string
	AllowedOrigins []string
}

// Server serves the output directory with live reload.
type Server struct {
	opts   Options
	hub    *Hub
	logger logging.Logger

	httpServer  *http.Server
	listener    net.Listener
	serverMutex sync.RWMutex

	statsMutex sync.RWMutex
	stats      func() interface{}

	startedAt    time.Time
	shutdownOnce sync.Once
}

// New creates a server. Port 0 picks a free port when Listen is called.
func New(opts Options, logger logging.Logger) (*Server, error) {
	if opts.Root == "" {
		return nil, errors.NewValidationError(errors.ErrCodeInvalidPath, "server root directory is required")
	}
	if logger == nil {
		logger = logging.Nop()
	}
	logger = logger.WithComponent("server")

	return &Server{
		opts:      opts,
		hub:       NewHub(logger),
		logger:    logger,
		startedAt: time.Now(),
	}, nil
}

// SetStatsProvider adds extra status to the health endpoint.
func (s *Server) SetStatsProvider(fn func() interface{}) {
	s.statsMutex.Lock()
	defer s.statsMutex.Unlock()
	s.stats = fn
}

// Hub returns the websocket hub.
func (s *Server) Hub() *Hub { return s.hub }

// Reload tells every connected browser to reload.
func (s *Server) Reload(path string) {
	s.hub.Broadcast(ReloadMessage{Type: "reload", Path: path, Timestamp: time.Now()})
}

// Listen binds the listening socket. After it returns, Port reports the
// actual port even when 0 was requested.
func (s *Server) Listen() error {
	s.serverMutex.Lock()
	defer s.serverMutex.Unlock()

	if s.listener != nil {
		return nil
	}

	addr := net.JoinHostPort(s.opts.Host, strconv.Itoa(s.opts.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return errors.NewNetworkError(errors.ErrCodeServerFailed, fmt.Sprintf("cannot listen on %s", addr), err).
			WithContext("port", s.opts.Port)
	}

	s.listener = ln
	if tcp, ok := ln.Addr().(*net.TCPAddr); ok {
		s.opts.Port = tcp.Port
	}
	return nil
}

// Port returns the configured port, or the bound port after Listen.
func (s *Server) Port() int {
	s.serverMutex.RLock()
	defer s.serverMutex.RUnlock()
	return s.opts.Port
}

// URL returns the address to open in a browser.
func (s *Server) URL() string {
	host := s.opts.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, strconv.Itoa(s.Port()))
}

// Handler returns the HTTP routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(ReloadPath, s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/", newStaticHandler(s.opts.Root))
	return s.logRequests(mux)
}

// Start runs the hub and serves until Shutdown or ctx ends.
func (s *Server) Start(ctx context.Context) error {
	if err := s.Listen(); err != nil {
		return err
	}

	go s.hub.Run(ctx)

	s.serverMutex.Lock()
	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	server, ln := s.httpServer, s.listener
	s.serverMutex.Unlock()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()

	if err := server.Serve(ln); err != nil && err != http.ErrServerClosed {
		return errors.NewNetworkError(errors.ErrCodeServerFailed, "server error", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server and cleans up resources
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.logger.Debug(ctx, "shutting down server")

		s.hub.Close()

		s.serverMutex.RLock()
		server, ln := s.httpServer, s.listener
		s.serverMutex.RUnlock()

		switch {
		case server != nil:
			shutdownErr = server.Shutdown(ctx)
		case ln != nil:
			shutdownErr = ln.Close()
		}
	})

	return shutdownErr
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug(r.Context(), "request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

// handleHealth returns the server health status for health checks
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"uptime":    time.Since(s.startedAt).Round(time.Second).String(),
		"version":   version.GetShortVersion(),
		"root":      s.opts.Root,
		"clients":   s.hub.ClientCount(),
	}

	s.statsMutex.RLock()
	if s.stats != nil {
		health["stats"] = s.stats()
	}
	s.statsMutex.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(w).Encode(health); err != nil {
		s.logger.Warn(r.Context(), err, "failed to encode health response")
	}
}

// FindFreePort asks the kernel for an unused TCP port on host.
func FindFreePort(host string) (int, error) {
	ln, err := net.Listen("tcp", net.JoinHostPort(host, "0"))
	if err != nil {
		return 0, errors.NewNetworkError(errors.ErrCodeServerFailed, "cannot find a free port", err)
	}
	defer ln.Close()
	return ln.Addr().(*net.TCPAddr).Port, nil
}
