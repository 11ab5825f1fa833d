// Package session keeps the registry of live motion controllers. Each browser
// tab owns one session; idle sessions expire and their controller is closed.
package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/geneseez/geneseez/internal/config"
	apperrors "github.com/geneseez/geneseez/internal/errors"
	"github.com/geneseez/geneseez/internal/modules/motionmodule/core/engine"
	"github.com/geneseez/geneseez/internal/modules/motionmodule/types"
	"github.com/geneseez/geneseez/internal/utils"
	"github.com/hashicorp/go-hclog"
	"github.com/patrickmn/go-cache"
)

// Manager creates, looks up and expires sessions
type Manager struct {
	mu       sync.RWMutex
	cfg      *config.Config
	sessions *cache.Cache
	logger   hclog.Logger
	closed   bool
}

// NewManager creates a session registry using cfg for timings and limits
func NewManager(cfg *config.Config, logger hclog.Logger) *Manager {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}

	m := &Manager{
		cfg:      cfg,
		sessions: cache.New(cfg.Sessions.IdleTimeout, cfg.Sessions.CleanupInterval),
		logger:   logger.Named("sessions"),
	}

	m.sessions.OnEvicted(func(id string, value interface{}) {
		if ctrl, ok := value.(*engine.Controller); ok {
			ctrl.Close()
			m.logger.Debug("session evicted", "session_id", id)
		}
	})

	return m
}

// Create starts a new session with a fresh controller
func (m *Manager) Create(ctx context.Context) (*engine.Controller, error) {
	const op = "create_session"

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, apperrors.SessionError(op, apperrors.ErrClosed)
	}

	if limit := m.cfg.Sessions.MaxSessions; limit > 0 && m.sessions.ItemCount() >= limit {
		m.sessions.DeleteExpired()
		if m.sessions.ItemCount() >= limit {
			return nil, apperrors.ResourceError(op,
				fmt.Errorf("%w: %d sessions", apperrors.ErrResourceLimitExceeded, limit))
		}
	}

	id := utils.GenerateUUID()
	ctrl := engine.NewController(id, engine.ConfigFrom(m.cfg), m.logger)
	m.sessions.Set(id, ctrl, m.cfg.Sessions.IdleTimeout)

	m.logger.Info("session created", "session_id", id, "active", m.sessions.ItemCount())
	return ctrl, nil
}

// Get returns the session's controller and refreshes its idle timer
func (m *Manager) Get(id string) (*engine.Controller, error) {
	const op = "get_session"

	m.mu.RLock()
	defer m.mu.RUnlock()

	value, ok := m.sessions.Get(id)
	if !ok {
		return nil, apperrors.SessionError(op, apperrors.ErrSessionNotFound).WithSession(id)
	}
	ctrl := value.(*engine.Controller)
	if ctrl.Closed() {
		return nil, apperrors.SessionError(op, apperrors.ErrClosed).WithSession(id)
	}

	// Sliding expiration
	m.sessions.Set(id, ctrl, m.cfg.Sessions.IdleTimeout)
	return ctrl, nil
}

// Delete closes and removes a session
func (m *Manager) Delete(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.sessions.Get(id); !ok {
		return apperrors.SessionError("delete_session", apperrors.ErrSessionNotFound).WithSession(id)
	}
	m.sessions.Delete(id)
	m.logger.Info("session deleted", "session_id", id)
	return nil
}

// Count returns the number of registered sessions
func (m *Manager) Count() int {
	return m.sessions.ItemCount()
}

// Limits returns the upload hints shown by the page
func (m *Manager) Limits() types.Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u := m.cfg.Uploads
	return types.Limits{
		ImageMaxBytes: u.ImageMaxBytes,
		VideoMaxBytes: u.VideoMaxBytes,
		ImageHint:     u.ImageHint,
		VideoHint:     u.VideoHint,
		Enforced:      u.EnforceLimits,
	}
}

// IdleTimeout returns the current session expiry
func (m *Manager) IdleTimeout() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Sessions.IdleTimeout
}

// UpdateConfig is a config.ConfigWatcher. New settings apply to sessions
// created afterwards; running controllers keep their timings.
func (m *Manager) UpdateConfig(_, newConfig *config.Config) {
	if newConfig == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = newConfig
	m.logger.Info("session settings updated",
		"idle_timeout", newConfig.Sessions.IdleTimeout,
		"max_sessions", newConfig.Sessions.MaxSessions,
		"tick_interval", newConfig.Generation.TickInterval,
		"completion_delay", newConfig.Generation.CompletionDelay)
}

// Shutdown closes every session. Further Create calls fail.
func (m *Manager) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return
	}
	m.closed = true

	// Items skips entries that expired before the janitor swept them
	count := m.sessions.ItemCount()
	m.sessions.DeleteExpired()
	for id := range m.sessions.Items() {
		m.sessions.Delete(id)
	}
	m.logger.Info("sessions shut down", "closed", count)
}
