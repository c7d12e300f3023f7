package model

import "time"

// Health is the observed state of an execution session.
type Health string

const (
	HealthHealthy   Health = "healthy"
	HealthUnhealthy Health = "unhealthy"
	HealthUnknown   Health = "unknown"
)

// ExecutionSession is a running backend process bound to one workspace.
// Sessions are runtime-only and never persisted across restarts.
type ExecutionSession struct {
	ID          string
	WorkspaceID string
	EngineType  EngineType
	Port        int
	PID         int
	BaseURL     string
	Health      Health
	StartedAt   time.Time
	LastUsedAt  time.Time

	// Process is the live handle. Nil for sessions restored from a binding.
	Process Process `json:"-"`
}

// Target returns the backend address of the session.
func (s *ExecutionSession) Target(ep BackendEndpoints) BackendTarget {
	return BackendTarget{BaseURL: s.BaseURL, Endpoints: ep}
}

// Alive reports whether the session process is still running.
func (s *ExecutionSession) Alive() bool {
	return s.Process != nil && s.Process.Alive()
}

// IdleSince returns how long the session has been unused at now.
func (s *ExecutionSession) IdleSince(now time.Time) time.Duration {
	return now.Sub(s.LastUsedAt)
}
