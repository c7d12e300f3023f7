// Package session manages the lifecycle of per-workspace engine backend
// processes: start on demand, readiness polling, health-checked reuse,
// serialized command delivery and idle teardown.
package session

import (
	"time"

	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/clock"
	"github.com/kompox/patchbay/internal/keylock"
	"github.com/kompox/patchbay/internal/portalloc"
	"github.com/kompox/patchbay/internal/retry"
)

// Config tunes session lifecycle timing.
type Config struct {
	Host              string
	ReadyTimeout      time.Duration
	ReadyPollInterval time.Duration
	HealthTimeout     time.Duration
	CommandTimeout    time.Duration
	IdleTimeout       time.Duration
	// LogDir receives one backend log file per workspace when set.
	LogDir string
}

func (c Config) withDefaults() Config {
	if c.Host == "" {
		c.Host = "127.0.0.1"
	}
	if c.ReadyTimeout <= 0 {
		c.ReadyTimeout = 15 * time.Second
	}
	if c.ReadyPollInterval <= 0 {
		c.ReadyPollInterval = 250 * time.Millisecond
	}
	if c.HealthTimeout <= 0 {
		c.HealthTimeout = 2 * time.Second
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = 120 * time.Second
	}
	if c.IdleTimeout <= 0 {
		c.IdleTimeout = 15 * time.Minute
	}
	return c
}

// Deps are the collaborators shared by every manager of a Registry.
type Deps struct {
	Workspaces domain.WorkspaceRepository
	Sessions   domain.SessionStore
	Launcher   model.ProcessLauncher
	Backend    model.BackendClient
	Ports      *portalloc.Allocator
	Locks      *keylock.Locker
	// Retry is used for session starts and command delivery. The zero
	// value means retry.Default().
	Retry retry.Policy
	Clock clock.Clock
}

func (d Deps) withDefaults() Deps {
	if d.Locks == nil {
		d.Locks = keylock.New()
	}
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Retry.MaxAttempts == 0 {
		d.Retry = retry.Default()
	}
	if d.Retry.Clock == nil {
		d.Retry.Clock = d.Clock
	}
	return d
}
