package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/lightmanager/lightmanager/internal/audit"
	"github.com/lightmanager/lightmanager/internal/channel"
	"github.com/lightmanager/lightmanager/internal/infrastructure/config"
	"github.com/lightmanager/lightmanager/internal/infrastructure/logging"
	"github.com/lightmanager/lightmanager/internal/session"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// ChannelSource returns a consistent snapshot of every channel.
type ChannelSource interface {
	Channels() []channel.Channel
}

// SessionSource reports the connection manager status.
type SessionSource interface {
	Status() session.Status
}

// HealthChecker is implemented by infrastructure clients (database, MQTT,
// InfluxDB).
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	Logger   *logging.Logger
	Channels ChannelSource
	Session  SessionSource

	// Audit is optional; /api/v1/audit answers 503 without it.
	Audit audit.Repository

	// Hub is optional; /api/v1/ws answers 503 without it.
	Hub *Hub

	// Checks are reported by /api/v1/health, keyed by component name.
	Checks map[string]HealthChecker

	Version string
}

// Server is the read-only HTTP status server.
type Server struct {
	cfg       config.APIConfig
	logger    *logging.Logger
	channels  ChannelSource
	session   SessionSource
	auditRepo audit.Repository
	hub       *Hub
	checks    map[string]HealthChecker
	version   string
	startTime time.Time
	server    *http.Server
	listener  net.Listener
}

// New creates a new API server with the given dependencies.
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
	if deps.Channels == nil {
		return nil, fmt.Errorf("channel source is required")
	}
	if deps.Session == nil {
		return nil, fmt.Errorf("session source is required")
	}

	return &Server{
		cfg:       deps.Config,
		logger:    deps.Logger,
		channels:  deps.Channels,
		session:   deps.Session,
		auditRepo: deps.Audit,
		hub:       deps.Hub,
		checks:    deps.Checks,
		version:   deps.Version,
		startTime: time.Now(),
	}, nil
}

// Start binds the listener and serves in a background goroutine. The
// server can be stopped with Close().
//
// Returns:
//   - error: If the address cannot be bound (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listener address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
