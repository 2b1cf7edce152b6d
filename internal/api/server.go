// Package api provides the HTTP reporting surface: performance queries, the
// leaderboard, tracked-call listings and the inbound message endpoint used
// by the chat gateway.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/call-scanner/internal/logging"
	"github.com/call-scanner/internal/registry"
	"github.com/call-scanner/internal/types"
	"github.com/gorilla/mux"
)

// MessageHandler consumes inbound chat messages. Satisfied by
// ingest.Handler.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg types.Message)
}

// Server represents the HTTP API server.
type Server struct {
	router         *mux.Router
	httpServer     *http.Server
	registry       *registry.Registry
	messageHandler MessageHandler
	config         *ServerConfig
	logger         *logging.Logger
}

// ServerConfig holds server configuration.
type ServerConfig struct {
	Host              string
	Port              string
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	IdleTimeout       time.Duration
	ShutdownTimeout   time.Duration
	RequestsPerSecond int
}

// NewServer creates a new API server instance.
func NewServer(config *ServerConfig, reg *registry.Registry, messageHandler MessageHandler, logger *logging.Logger) *Server {
	if config.ReadTimeout == 0 {
		config.ReadTimeout = 15 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 30 * time.Second
	}
	if config.IdleTimeout == 0 {
		config.IdleTimeout = 60 * time.Second
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = 10 * time.Second
	}
	if config.RequestsPerSecond == 0 {
		config.RequestsPerSecond = 20
	}
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}

	s := &Server{
		router:         mux.NewRouter(),
		registry:       reg,
		messageHandler: messageHandler,
		config:         config,
		logger:         logger.WithField("component", "api"),
	}

	s.setupRouter()

	return s
}

// setupRouter configures the router with middleware and routes
func (s *Server) setupRouter() {
	rateLimiter := NewRateLimiter(s.config.RequestsPerSecond)

	// Middleware order matters: recovery outermost, rate limiting after CORS
	s.router.Use(LoggingMiddleware)
	s.router.Use(RecoveryMiddleware)
	s.router.Use(CORSMiddleware)
	s.router.Use(RateLimitMiddleware(rateLimiter))

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%s", s.config.Host, s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  s.config.IdleTimeout,
	}
}

// setupRoutes registers the API routes
func (s *Server) setupRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	apiV1 := s.router.PathPrefix("/api/v1").Subrouter()
	apiV1.HandleFunc("/leaderboard", s.handleLeaderboard).Methods(http.MethodGet)
	apiV1.HandleFunc("/users/{id}/performance", s.handleUserPerformance).Methods(http.MethodGet)
	apiV1.HandleFunc("/calls", s.handleListCalls).Methods(http.MethodGet)
	apiV1.HandleFunc("/calls/{address}", s.handleGetCall).Methods(http.MethodGet)
	apiV1.HandleFunc("/messages", s.handleInboundMessage).Methods(http.MethodPost)
}

// Router returns the underlying router. Used by tests.
func (s *Server) Router() http.Handler {
	return s.router
}

// Start begins serving requests. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.WithField("addr", s.httpServer.Addr).Info("API server listening")

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	return s.httpServer.Shutdown(shutdownCtx)
}
