// Package server provides the exthost HTTP server.
// It serves extension static files and the extension management API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/exthost/exthost/internal/extensions"
)

// Config holds the server configuration.
type Config struct {
	Host      string
	Port      int
	Token     string
	RateLimit RateLimit
}

// RateLimit configures the per-IP request limiter.
type RateLimit struct {
	Enabled bool
	RPS     float64
	Burst   int
}

// StateHook is called after an API request changed which extensions are enabled or installed.
type StateHook func(enabled map[string]bool, installed []string) error

// Server represents the exthost HTTP server.
type Server struct {
	config  *Config
	echo    *echo.Echo
	logger  zerolog.Logger
	manager *extensions.Manager
	fs      afero.Fs

	onStateChange StateHook

	// Runtime state
	mu        sync.RWMutex
	running   bool
	startTime time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithFs sets the filesystem extension files are served from.
func WithFs(fs afero.Fs) Option {
	return func(s *Server) {
		s.fs = fs
	}
}

// WithStateHook sets the function persisting extension state changes.
func WithStateHook(hook StateHook) Option {
	return func(s *Server) {
		s.onStateChange = hook
	}
}

// New creates a new server.
func New(cfg *Config, manager *extensions.Manager, logger zerolog.Logger, opts ...Option) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = NewCustomValidator()

	s := &Server{
		config:  cfg,
		echo:    e,
		logger:  logger.With().Str("component", "server").Logger(),
		manager: manager,
		fs:      afero.NewOsFs(),
	}
	for _, opt := range opts {
		opt(s)
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// Handler returns the HTTP handler serving all routes.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	s.running = true
	s.startTime = time.Now()
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", addr).Msg("Server starting")
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.echo.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	s.logger.Info().Msg("Server stopped")
	return nil
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	// Request logging
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			s.logger.Info().
				Str("method", v.Method).
				Str("uri", v.URI).
				Int("status", v.Status).
				Str("request_id", v.RequestID).
				Msg("request")
			return nil
		},
	}))

	// Recover from panics
	s.echo.Use(middleware.Recover())

	s.echo.Use(s.RateLimitMiddleware())

	s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodOptions},
	}))
}

// setupRoutes configures HTTP routes.
func (s *Server) setupRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/", s.handleRoot)

	// Extension static files
	s.echo.GET(extensions.AssetEndpoint, s.handleExtensionFile)
	s.echo.HEAD(extensions.AssetEndpoint, s.handleExtensionFile)

	// Markup for the assets registered by enabled extensions
	s.echo.GET("/head", s.handleHead)

	api := s.echo.Group("/api")
	api.Use(s.AuthMiddleware)
	{
		api.GET("/status", s.handleStatus)

		api.GET("/extensions", s.handleListExtensions)
		api.GET("/extensions/:name", s.handleGetExtension)
		api.POST("/extensions/:name/state", s.handleSetExtensionState)
		api.POST("/extensions/:name/uninstall", s.handleUninstallExtension)
	}
}

// IsRunning returns whether the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// Uptime returns how long the server has been running.
func (s *Server) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.running {
		return 0
	}
	return time.Since(s.startTime)
}
