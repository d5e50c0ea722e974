// Package api exposes the relay over HTTP: the streamed agent run (SSE and
// WebSocket), the statements passthrough, demo login and key-pair JWTs.
package api

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/labstack/echo/v5/middleware"

	"github.com/codeready-toolchain/agentrelay/pkg/auth"
	"github.com/codeready-toolchain/agentrelay/pkg/config"
	"github.com/codeready-toolchain/agentrelay/pkg/events"
	"github.com/codeready-toolchain/agentrelay/pkg/orchestrator"
	"github.com/codeready-toolchain/agentrelay/pkg/sse"
)

// AgentRunner starts orchestrated agent runs.
type AgentRunner interface {
	Run(ctx context.Context, req orchestrator.RunRequest) <-chan sse.Event
}

// StatementRelay submits a raw statement and returns the upstream response
// as-is, whatever its status.
type StatementRelay interface {
	Passthrough(ctx context.Context, statement string) (*http.Response, error)
}

// TokenIssuer returns key-pair JWTs.
type TokenIssuer interface {
	Token() (*auth.Token, error)
}

// Server is the HTTP API server.
type Server struct {
	cfg           *config.Config
	echo          *echo.Echo
	mu            sync.Mutex
	httpServer    *http.Server
	runner        AgentRunner
	statements    StatementRelay
	authenticator *auth.Authenticator
	issuer        TokenIssuer
	connManager   *events.ConnectionManager
}

// NewServer creates the server and registers its routes.
func NewServer(
	cfg *config.Config,
	runner AgentRunner,
	statements StatementRelay,
	authenticator *auth.Authenticator,
	issuer TokenIssuer,
	connManager *events.ConnectionManager,
) *Server {
	e := echo.New()

	s := &Server{
		cfg:           cfg,
		echo:          e,
		runner:        runner,
		statements:    statements,
		authenticator: authenticator,
		issuer:        issuer,
		connManager:   connManager,
	}

	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	s.echo.Use(middleware.Recover())
	s.echo.Use(requestID())
	s.echo.Use(securityHeaders())
	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		// Exact origins only: the identity cookie needs credentialed requests.
		AllowOrigins:     s.cfg.Server.AllowedOrigins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Content-Type", "Authorization", headerRequestID},
		ExposeHeaders:    []string{headerRequestID},
		AllowCredentials: true,
	}))

	s.echo.GET("/health", s.healthHandler)

	api := s.echo.Group("/api")
	api.POST("/agent/run", s.runAgentHandler)
	api.GET("/agent/ws", s.wsHandler)
	api.POST("/statements", s.statementsHandler)
	api.GET("/jwt", s.jwtHandler)
	api.POST("/auth/login", s.loginHandler)
	api.POST("/auth/logout", s.logoutHandler)
}

// ServeHTTP lets the server be mounted in tests and other muxes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start listens on addr and blocks until the server stops. It returns
// http.ErrServerClosed after Shutdown.
func (s *Server) Start(addr string) error {
	return s.newHTTPServer(addr).ListenAndServe()
}

// StartWithListener serves on an existing listener, e.g. one bound to a
// random port in tests.
func (s *Server) StartWithListener(ln net.Listener) error {
	return s.newHTTPServer(ln.Addr().String()).Serve(ln)
}

func (s *Server) newHTTPServer(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.echo,
		ReadHeaderTimeout: 10 * time.Second,
		// No write timeout: agent runs stream for minutes.
	}
	s.mu.Lock()
	s.httpServer = srv
	s.mu.Unlock()
	return srv
}

// Shutdown drains in-flight requests until ctx expires.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	if err := srv.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
