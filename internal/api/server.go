package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/nerrad567/brokerlink/internal/infrastructure/config"
	"github.com/nerrad567/brokerlink/internal/infrastructure/logging"
	"github.com/nerrad567/brokerlink/internal/link"
)

// HTTP server timeouts.
const (
	gracefulShutdownTimeout = 10 * time.Second
	readTimeout             = 5 * time.Second
	writeTimeout            = 10 * time.Second
	idleTimeout             = 60 * time.Second
)

// StatusSource provides the link snapshot served on /api/v1/status.
// *link.Link satisfies it.
type StatusSource interface {
	Snapshot() link.Snapshot
}

// HealthChecker reports whether an optional dependency is reachable.
// *influxdb.Client satisfies it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the status server.
type Deps struct {
	Config    config.StatusConfig
	Logger    *logging.Logger
	Status    StatusSource
	Telemetry HealthChecker // Optional; reported as "disabled" when nil
	Hub       *Hub          // If set, the server uses this hub instead of creating its own
	Version   string
}

// Server is the local HTTP status server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg       config.StatusConfig
	logger    *logging.Logger
	status    StatusSource
	telemetry HealthChecker
	version   string
	hub       *Hub

	startTime time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc // stops the hub on Close()
}

// New creates a new status server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Status == nil {
		return nil, fmt.Errorf("status source is required")
	}

	s := &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		status:    deps.Status,
		telemetry: deps.Telemetry,
		version:   deps.Version,
		hub:       deps.Hub,

		startTime: time.Now(),
	}
	if s.hub == nil {
		s.hub = NewHub(deps.Logger)
	}

	return s, nil
}

// Start binds the listener and serves HTTP in a background goroutine.
//
// The listener is bound before Start returns, so an address already in use
// is reported to the caller. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding status server on %s: %w", addr, err)
	}

	srvCtx, cancel := context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.mu.Lock()
	s.server = srv
	s.listener = ln
	s.cancel = cancel
	s.mu.Unlock()

	s.logger.Info("status server listening", "address", ln.Addr().String())

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the status server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.server, s.cancel = nil, nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	// Stop the hub so WebSocket connections are closed
	cancel()

	ctx, cancelShutdown := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancelShutdown()

	s.logger.Info("status server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return nil
}
