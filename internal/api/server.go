package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/skyformat99/libmqtt-3/internal/binding"
	"github.com/skyformat99/libmqtt-3/internal/host"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/config"
	"github.com/skyformat99/libmqtt-3/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// StatsSource reports per-kind event counters. *binding.Stats satisfies it.
type StatsSource interface {
	Dispatched(kind binding.EventKind) uint64
	Dropped(kind binding.EventKind) uint64
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	Stats   StatsSource
	Clients func() int // live client count, usually Binding.Len
	Version string
}

// Server is the status and event stream server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	stats   StatsSource
	clients func() int
	version string
	secret  []byte // HS256 key; empty disables auth
	hub     *Hub

	mu     sync.Mutex
	server *http.Server
	addr   net.Addr
	cancel context.CancelFunc // cancels the hub on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called. Events may be
// published before then; they reach nobody.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Stats == nil {
		return nil, fmt.Errorf("stats source is required")
	}
	if deps.Config.Auth.Secret == "" && !deps.Config.Loopback() {
		return nil, fmt.Errorf("api auth secret is required to listen on %q", deps.Config.Host)
	}
	if deps.WS.Path == "" {
		deps.WS.Path = "/events"
	}
	clients := deps.Clients
	if clients == nil {
		clients = func() int { return 0 }
	}

	log := deps.Logger.With("component", "api")
	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  log,
		stats:   deps.Stats,
		clients: clients,
		version: deps.Version,
		secret:  []byte(deps.Config.Auth.Secret),
		hub:     NewHub(deps.WS, log),
	}, nil
}

// Start binds the listener and serves in a background goroutine.
// The server can be stopped with Close().
//
// Returns:
//   - error: If the listener cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("api server already started")
	}

	ln, err := net.Listen("tcp", net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port)))
	if err != nil {
		return fmt.Errorf("binding api listener: %w", err)
	}

	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	s.addr = ln.Addr()
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	srv := s.server
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.addr.String())
	return nil
}

// Addr returns the bound address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}

// Publish broadcasts ev to WebSocket clients subscribed to its kind.
// name is the configured client label, if any.
func (s *Server) Publish(name string, ev host.Event) {
	s.hub.Broadcast(ev.Kind.String(), newEventPayload(name, ev))
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.server, s.addr, s.cancel = nil, nil, nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	// WebSocket connections are hijacked, so Shutdown does not wait for them.
	cancel()

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.Addr() == nil {
		return fmt.Errorf("api server not started")
	}
	return nil
}
