// Package api provides the HTTP REST boundary for the user directory service.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/overlaykit/userdir/pkg/config"
	"github.com/overlaykit/userdir/pkg/interfaces"
)

// Server represents the API server instance
type Server struct {
	registry    interfaces.Registry
	overlay     interfaces.Overlay
	config      *config.Config
	metrics     interfaces.Metrics
	logger      interfaces.Logger
	router      *gin.Engine
	server      *http.Server
	authManager *AuthManager
	startTime   time.Time
}

// NewServer creates a new API server instance
func NewServer(registry interfaces.Registry, overlay interfaces.Overlay, cfg *config.Config, metrics interfaces.Metrics, logger interfaces.Logger) *Server {
	// Set Gin mode based on log level (use LogLevel as proxy for environment)
	if cfg.LogLevel == "error" || cfg.LogLevel == "warn" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	router := gin.New()

	s := &Server{
		registry:    registry,
		overlay:     overlay,
		config:      cfg,
		metrics:     metrics,
		logger:      logger,
		router:      router,
		authManager: NewAuthManager(&cfg.Server),
		startTime:   time.Now(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures middleware for the server
func (s *Server) setupMiddleware() {
	// Recovery middleware
	s.router.Use(gin.Recovery())

	// Custom logging middleware
	s.router.Use(s.loggingMiddleware())

	// CORS middleware
	if s.config.Server.CORSEnabled {
		corsConfig := cors.DefaultConfig()
		corsConfig.AllowOrigins = s.config.Server.CORSOrigins
		corsConfig.AllowMethods = []string{"GET", "POST", "PATCH", "OPTIONS"}
		corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
		s.router.Use(cors.New(corsConfig))
	}

	// Request ID middleware
	s.router.Use(s.requestIDMiddleware())

	// Request metrics
	s.router.Use(s.metricsMiddleware())

	// Authentication middleware for protected routes
	s.router.Use(s.jwtAuthMiddleware())
}

// setupRoutes configures all API routes
func (s *Server) setupRoutes() {
	// Health check endpoint
	s.router.GET("/health", s.healthCheck)

	// Token issuance endpoint
	auth := s.router.Group("/auth")
	{
		auth.POST("/token", s.issueToken)
	}

	// Directory endpoints
	users := s.router.Group("/users")
	{
		users.GET("", s.listUsers)
		users.GET("/:id", s.getUser)
		users.POST("", s.requireEditor(), s.createUser)
		users.PATCH("/:id", s.requireEditor(), s.updateUser)
	}

	// Instrumentation snapshot, readable by any authenticated client
	s.router.GET("/metrics", s.getMetrics)
}

// Start starts the API server
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.Server.ReadTimeout,
		WriteTimeout: s.config.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	s.logger.Info("Starting API server", map[string]interface{}{
		"addr": addr,
		"mode": gin.Mode(),
	})

	// Start server in a goroutine
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Failed to start server", err)
		}
	}()

	// Wait for context cancellation
	<-ctx.Done()

	// Graceful shutdown
	s.logger.Info("Shutting down API server...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(shutdownCtx)
}

// Stop gracefully stops the API server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	return s.server.Shutdown(ctx)
}

// Router exposes the underlying handler, primarily for tests.
func (s *Server) Router() http.Handler {
	return s.router
}
