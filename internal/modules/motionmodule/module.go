// Package motionmodule is the motion transfer demo: a user uploads a still
// image and a driving video, starts a generation, watches a progress counter
// and gets a downloadable result.
//
// There is no real processing. Generation is a timed illusion: a progress
// ticker runs while a one-shot completion timer is pending, and completion
// publishes the uploaded video itself as the result.
//
// Architecture:
//
//	HTTP (api) → session.Manager → engine.Controller (one event loop per session)
package motionmodule

import (
	"github.com/geneseez/geneseez/internal/config"
	"github.com/geneseez/geneseez/internal/modules/motionmodule/api"
	"github.com/geneseez/geneseez/internal/modules/motionmodule/core/session"
	"github.com/gin-gonic/gin"
	"github.com/hashicorp/go-hclog"
)

const (
	// ModuleID is the unique identifier for the motion module
	ModuleID = "system.motion"

	// ModuleName is the display name for the motion module
	ModuleName = "Motion Transfer"

	// ModuleVersion is the version of the motion module
	ModuleVersion = "1.0.0"
)

// Module wires the session registry to its HTTP handlers
type Module struct {
	sessions *session.Manager
	handler  *api.APIHandler
	logger   hclog.Logger
}

// NewModule creates the motion module from the application configuration
func NewModule(cfg *config.Config, logger hclog.Logger) *Module {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	logger = logger.Named("motion")

	sessions := session.NewManager(cfg, logger)
	handler := api.NewAPIHandler(sessions, api.Options{
		MaxRequestBytes: cfg.Server.MaxRequestBytes,
		AllowedOrigins:  cfg.Security.AllowedOrigins,
	}, logger)

	logger.Info("motion module initialized",
		"tick_interval", cfg.Generation.TickInterval,
		"completion_delay", cfg.Generation.CompletionDelay,
		"enforce_limits", cfg.Uploads.EnforceLimits)

	return &Module{
		sessions: sessions,
		handler:  handler,
		logger:   logger,
	}
}

// ID returns the unique module identifier
func (m *Module) ID() string {
	return ModuleID
}

// Name returns the module display name
func (m *Module) Name() string {
	return ModuleName
}

// GetVersion returns the module version
func (m *Module) GetVersion() string {
	return ModuleVersion
}

// RegisterRoutes mounts the motion API on the router
func (m *Module) RegisterRoutes(router gin.IRouter) {
	api.RegisterRoutes(router, m.handler)
}

// Sessions returns the session registry
func (m *Module) Sessions() *session.Manager {
	return m.sessions
}

// ConfigWatcher forwards configuration changes to the session registry
func (m *Module) ConfigWatcher(oldConfig, newConfig *config.Config) {
	m.sessions.UpdateConfig(oldConfig, newConfig)
}

// Shutdown tears down every session
func (m *Module) Shutdown() {
	m.logger.Info("shutting down motion module", "sessions", m.sessions.Count())
	m.sessions.Shutdown()
}
