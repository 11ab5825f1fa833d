// Package server assembles the HTTP router and runs the HTTP server.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/geneseez/geneseez/internal/api"
	"github.com/geneseez/geneseez/internal/apiroutes"
	"github.com/geneseez/geneseez/internal/config"
	"github.com/geneseez/geneseez/internal/middleware"
	"github.com/geneseez/geneseez/internal/modules/motionmodule"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
)

// Server owns the router, the motion module and the listener
type Server struct {
	cfg       *config.Config
	router    *gin.Engine
	motion    *motionmodule.Module
	limiter   *middleware.RateLimiter
	logger    hclog.Logger
	startedAt time.Time
	http      *http.Server
}

// New builds the router and every module behind it
func New(cfg *config.Config, logger hclog.Logger) *Server {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	s := &Server{
		cfg:       cfg,
		motion:    motionmodule.NewModule(cfg, logger),
		limiter:   middleware.NewRateLimiter(cfg.Security),
		logger:    logger.Named("server"),
		startedAt: time.Now(),
	}
	s.router = s.setupRouter()
	return s
}

// setupRouter configures and returns the main router
func (s *Server) setupRouter() *gin.Engine {
	if s.cfg.Server.ReleaseMode {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(api.ErrorMiddleware())
	r.Use(middleware.RequestID())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorLogger())

	if s.cfg.Server.EnableCORS {
		r.Use(middleware.CORS(s.cfg.Security.AllowedOrigins))
	}

	// Page and discovery are outside the rate limit
	r.GET("/", s.handleIndex)

	apiGroup := r.Group("/api")
	{
		apiGroup.GET("", s.handleRoutes)
		apiroutes.Register("/api", "GET", "Lists all available API endpoints.")

		apiGroup.GET("/health", s.handleHealth)
		apiroutes.Register("/api/health", "GET", "System health check.")
	}

	limited := r.Group("/")
	limited.Use(s.limiter.Middleware())
	s.motion.RegisterRoutes(limited)

	return r
}

// Router returns the HTTP handler
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Motion returns the motion module
func (s *Server) Motion() *motionmodule.Module {
	return s.motion
}

// ConfigWatcher applies a reloaded configuration to the running modules
func (s *Server) ConfigWatcher(oldConfig, newConfig *config.Config) {
	s.motion.ConfigWatcher(oldConfig, newConfig)
	s.limiter.UpdateConfig(oldConfig, newConfig)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Server.Host, strconv.Itoa(s.cfg.Server.Port))
	s.http = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		s.motion.Shutdown()
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server", "timeout", s.cfg.Server.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
	defer cancel()

	// Close sessions first so open streams end and Shutdown can drain
	s.motion.Shutdown()
	if err := s.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return <-errCh
}
