package session

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/logging"
	"github.com/kompox/patchbay/internal/naming"
	"github.com/kompox/patchbay/internal/retry"
)

// Manager owns the sessions of one engine family.
type Manager struct {
	driver model.EngineDriver
	deps   Deps
	cfg    Config

	// probes coalesces concurrent health checks of the same session.
	probes singleflight.Group
}

// NewManager creates a manager for driver's engine.
func NewManager(driver model.EngineDriver, deps Deps, cfg Config) *Manager {
	return &Manager{driver: driver, deps: deps.withDefaults(), cfg: cfg.withDefaults()}
}

// Engine returns the engine family of the manager.
func (m *Manager) Engine() model.EngineType { return m.driver.Engine() }

// Driver returns the engine driver.
func (m *Manager) Driver() model.EngineDriver { return m.driver }

func (m *Manager) logger(ctx context.Context, ws string) logging.Logger {
	return logging.FromContext(ctx).With("engine", string(m.driver.Engine()), "workspace", ws)
}

func (m *Manager) checkEngine(ws *model.Workspace) error {
	if ws.EngineType != m.driver.Engine() {
		return model.NewError(model.KindUnsupportedEngine, "workspace %s is %s, manager serves %s", ws.ID, ws.EngineType, m.driver.Engine())
	}
	return nil
}

// GetOrCreateSession returns a healthy session for ws, starting or
// restarting the backend as needed.
func (m *Manager) GetOrCreateSession(ctx context.Context, ws *model.Workspace) (*model.ExecutionSession, error) {
	if err := m.checkEngine(ws); err != nil {
		return nil, err
	}
	unlock, err := m.deps.Locks.Lock(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return m.ensure(ctx, ws)
}

// ensure must be called with the workspace lock held.
func (m *Manager) ensure(ctx context.Context, ws *model.Workspace) (*model.ExecutionSession, error) {
	log := m.logger(ctx, ws.ID)
	if sess, ok := m.deps.Sessions.Get(ctx, ws.ID); ok {
		if sess.Health != model.HealthUnhealthy && m.HealthCheck(ctx, sess) == model.HealthHealthy {
			sess.LastUsedAt = m.deps.Clock.Now()
			m.deps.Sessions.Put(ctx, sess)
			return sess, nil
		}
		log.Info(ctx, "session unhealthy, restarting", "session", sess.ID, "port", sess.Port, "pid", sess.PID)
		m.teardown(ctx, sess)
	} else if ws.HasSessionBinding() {
		// A binding without a live session belongs to a process this
		// manager does not own (crash or restart); start over.
		log.Info(ctx, "discarding stale session binding", "port", ws.SessionPort, "pid", ws.SessionPID)
	}

	var sess *model.ExecutionSession
	err := m.deps.Retry.Do(ctx, "session.start", func(ctx context.Context, attempt int) error {
		s, err := m.start(ctx, ws)
		if err != nil {
			return err
		}
		sess = s
		return nil
	})
	if err != nil {
		log.Warn(ctx, "session start failed", "err", err)
		return nil, err
	}
	return sess, nil
}

func startFailed(err error, retryable bool, format string, args ...any) *model.Error {
	e := model.WrapError(model.KindSessionStartFailed, err, format, args...)
	e.Retryable = retryable
	return e
}

func (m *Manager) start(ctx context.Context, ws *model.Workspace) (*model.ExecutionSession, error) {
	log := m.logger(ctx, ws.ID)
	port, err := m.deps.Ports.Reserve()
	if err != nil {
		return nil, startFailed(err, false, "reserve port")
	}
	spec := m.driver.LaunchSpec(ws, port)
	if m.cfg.LogDir != "" {
		spec.LogPath = filepath.Join(m.cfg.LogDir, ws.ID+".log")
	}
	proc, err := m.deps.Launcher.Launch(ctx, spec)
	if err != nil {
		m.deps.Ports.Release(port)
		return nil, startFailed(err, true, "launch %s", spec.Command)
	}

	now := m.deps.Clock.Now()
	sess := &model.ExecutionSession{
		ID:          naming.NewSessionID(),
		WorkspaceID: ws.ID,
		EngineType:  m.driver.Engine(),
		Port:        port,
		PID:         proc.PID(),
		BaseURL:     model.LocalBaseURL(m.cfg.Host, port),
		Health:      model.HealthUnknown,
		StartedAt:   now,
		LastUsedAt:  now,
		Process:     proc,
	}
	log.Info(ctx, "session starting", "session", sess.ID, "port", port, "pid", sess.PID)

	if err := m.waitReady(ctx, sess); err != nil {
		m.kill(ctx, sess)
		m.deps.Ports.Release(port)
		return nil, startFailed(err, ctx.Err() == nil, "backend on port %d not ready", port)
	}
	sess.Health = model.HealthHealthy
	m.deps.Sessions.Put(ctx, sess)

	b := model.SessionBinding{Port: port, PID: sess.PID, PreviewURL: m.driver.PreviewURL(ws, port)}
	if err := m.deps.Workspaces.SetBinding(ctx, ws.ID, b); err != nil {
		log.Warn(ctx, "record session binding failed", "err", err)
	}
	b.Apply(ws)
	log.Info(ctx, "session ready", "session", sess.ID, "port", port, "elapsed", m.deps.Clock.Now().Sub(now).String())
	return sess, nil
}

// waitReady polls the health endpoint until it answers, the process
// exits, or ReadyTimeout passes.
func (m *Manager) waitReady(ctx context.Context, sess *model.ExecutionSession) error {
	deadline := m.deps.Clock.After(m.cfg.ReadyTimeout)
	target := sess.Target(m.driver.Endpoints())
	var lastErr error
	for {
		if !sess.Process.Alive() {
			return errors.New("backend process exited during startup")
		}
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.HealthTimeout)
		lastErr = m.deps.Backend.Health(probeCtx, target)
		cancel()
		if lastErr == nil {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline:
			return fmt.Errorf("timed out after %s: %w", m.cfg.ReadyTimeout, lastErr)
		case <-m.deps.Clock.After(m.cfg.ReadyPollInterval):
		}
	}
}

// HealthCheck probes a session. It reports unknown when no process is
// attached, unhealthy when the process is gone or the probe fails.
func (m *Manager) HealthCheck(ctx context.Context, sess *model.ExecutionSession) model.Health {
	if sess == nil || sess.Process == nil {
		return model.HealthUnknown
	}
	if !sess.Process.Alive() {
		sess.Health = model.HealthUnhealthy
		return sess.Health
	}
	v, _, _ := m.probes.Do(sess.ID, func() (any, error) {
		probeCtx, cancel := context.WithTimeout(ctx, m.cfg.HealthTimeout)
		defer cancel()
		if err := m.deps.Backend.Health(probeCtx, sess.Target(m.driver.Endpoints())); err != nil {
			return model.HealthUnhealthy, nil
		}
		return model.HealthHealthy, nil
	})
	sess.Health = v.(model.Health)
	return sess.Health
}

// SendOptions carries the optional parts of a backend command.
type SendOptions struct {
	Messages []model.BackendMessage
	System   string
	Context  map[string]any
}

// SendCommand delivers env to the workspace backend. Commands for the same
// workspace never overlap, and the workspace status is checked again once
// the workspace lock is held. Failures before the request reached the backend
// are retried once on a fresh session; anything later is surfaced as is.
func (m *Manager) SendCommand(ctx context.Context, ws *model.Workspace, env *model.CommandEnvelope, opts SendOptions) (*model.BackendResponse, error) {
	if err := m.checkEngine(ws); err != nil {
		return nil, err
	}
	unlock, err := m.deps.Locks.Lock(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	cur, err := m.deps.Workspaces.Get(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	if err := cur.CheckAcceptsCommands(); err != nil {
		return nil, err
	}

	req := &model.BackendRequest{Command: env, Messages: opts.Messages, System: opts.System, Context: opts.Context}
	if req.System == "" {
		req.System = env.System
	}
	var resp *model.BackendResponse
	err = m.deps.Retry.Do(ctx, "backend.command", func(ctx context.Context, attempt int) error {
		sess, err := m.ensure(ctx, ws)
		if err != nil {
			return retry.Permanent(err)
		}
		r, err := m.call(ctx, sess, func(callCtx context.Context) (any, error) {
			return m.deps.Backend.Command(callCtx, sess.Target(m.driver.Endpoints()), req)
		})
		if err != nil {
			return err
		}
		resp = r.(*model.BackendResponse)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// call runs fn with the command timeout and records the session outcome.
func (m *Manager) call(ctx context.Context, sess *model.ExecutionSession, fn func(context.Context) (any, error)) (any, error) {
	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CommandTimeout)
	defer cancel()
	v, err := fn(callCtx)
	if err != nil {
		// A timeout or a broken reply leaves the backend in an unknown
		// state; the next call restarts it.
		sess.Health = model.HealthUnhealthy
		m.deps.Sessions.Put(ctx, sess)
		m.logger(ctx, sess.WorkspaceID).Warn(ctx, "backend call failed", "session", sess.ID, "retryable", model.IsRetryable(err), "err", err)
		return nil, err
	}
	sess.LastUsedAt = m.deps.Clock.Now()
	m.deps.Sessions.Put(ctx, sess)
	return v, nil
}

// Undo asks the backend to reverse patchID. Engines without undo support
// fail with UndoUnsupported before any session or backend is touched.
func (m *Manager) Undo(ctx context.Context, ws *model.Workspace, patchID, etag string) (*model.ReverseResult, error) {
	if !m.driver.SupportsUndo() {
		return nil, model.NewError(model.KindUndoUnsupported, "engine %s does not support undo", m.driver.Engine()).
			WithDetail("engine_type", string(m.driver.Engine()))
	}
	if err := m.checkEngine(ws); err != nil {
		return nil, err
	}
	unlock, err := m.deps.Locks.Lock(ctx, ws.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var res *model.ReverseResult
	err = m.deps.Retry.Do(ctx, "backend.undo", func(ctx context.Context, attempt int) error {
		sess, err := m.ensure(ctx, ws)
		if err != nil {
			return retry.Permanent(err)
		}
		r, err := m.call(ctx, sess, func(callCtx context.Context) (any, error) {
			return m.deps.Backend.Undo(callCtx, sess.Target(m.driver.Endpoints()), &model.UndoRequest{PatchID: patchID, ETag: etag})
		})
		if err != nil {
			return err
		}
		res = r.(*model.ReverseResult)
		return nil
	})
	if err != nil {
		if errors.Is(err, model.ErrUndoUnsupported) {
			return nil, err
		}
		return nil, model.WrapError(model.KindUndoFailed, err, "undo %s", patchID).WithDetail("patch_id", patchID)
	}
	if !res.Success {
		msg := res.Message
		if msg == "" {
			msg = "backend refused the reverse call"
		}
		return nil, model.NewError(model.KindUndoFailed, "undo %s: %s", patchID, msg).WithDetail("patch_id", patchID)
	}
	m.logger(ctx, ws.ID).Info(ctx, "patch undone", "patch", patchID)
	return res, nil
}

// Stop terminates the workspace session, releases its port and clears the
// workspace binding. Stopping a workspace without a session only clears
// the binding.
func (m *Manager) Stop(ctx context.Context, workspaceID string) error {
	unlock, err := m.deps.Locks.Lock(ctx, workspaceID)
	if err != nil {
		return err
	}
	defer unlock()
	return m.stopLocked(ctx, workspaceID, "stop")
}

func (m *Manager) stopLocked(ctx context.Context, workspaceID, reason string) error {
	if sess, ok := m.deps.Sessions.Get(ctx, workspaceID); ok {
		m.logger(ctx, workspaceID).Info(ctx, "session stopping", "session", sess.ID, "reason", reason)
		m.teardown(ctx, sess)
		return nil
	}
	return m.clearBinding(ctx, workspaceID)
}

// teardown kills the process, releases the port, forgets the session and
// clears the workspace binding.
func (m *Manager) teardown(ctx context.Context, sess *model.ExecutionSession) {
	m.kill(ctx, sess)
	m.deps.Ports.Release(sess.Port)
	m.deps.Sessions.Delete(ctx, sess.WorkspaceID)
	if err := m.clearBinding(ctx, sess.WorkspaceID); err != nil {
		m.logger(ctx, sess.WorkspaceID).Warn(ctx, "clear session binding failed", "err", err)
	}
}

func (m *Manager) clearBinding(ctx context.Context, workspaceID string) error {
	err := m.deps.Workspaces.SetBinding(ctx, workspaceID, model.SessionBinding{})
	if errors.Is(err, model.ErrWorkspaceNotFound) {
		return nil
	}
	return err
}

func (m *Manager) kill(ctx context.Context, sess *model.ExecutionSession) {
	if sess.Process == nil {
		return
	}
	// Termination must finish even when the caller's context is done.
	tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	if err := sess.Process.Terminate(tctx); err != nil {
		m.logger(ctx, sess.WorkspaceID).Warn(ctx, "terminate backend failed", "pid", sess.PID, "err", err)
	}
}

// List returns the live sessions of this engine.
func (m *Manager) List(ctx context.Context) []*model.ExecutionSession {
	var out []*model.ExecutionSession
	for _, s := range m.deps.Sessions.List(ctx) {
		if s.EngineType == m.driver.Engine() {
			out = append(out, s)
		}
	}
	return out
}

// Reap stops sessions idle longer than IdleTimeout and sessions whose
// process has exited. Sessions busy with a command are skipped.
func (m *Manager) Reap(ctx context.Context) int {
	now := m.deps.Clock.Now()
	n := 0
	for _, s := range m.List(ctx) {
		if s.Alive() && s.IdleSince(now) < m.cfg.IdleTimeout {
			continue
		}
		unlock, ok := m.deps.Locks.TryLock(s.WorkspaceID)
		if !ok {
			continue
		}
		cur, found := m.deps.Sessions.Get(ctx, s.WorkspaceID)
		if found && cur.ID == s.ID && (!cur.Alive() || cur.IdleSince(now) >= m.cfg.IdleTimeout) {
			reason := "idle"
			if !cur.Alive() {
				reason = "exited"
			}
			m.logger(ctx, cur.WorkspaceID).Info(ctx, "session stopping", "session", cur.ID, "reason", reason)
			m.teardown(ctx, cur)
			n++
		}
		unlock()
	}
	return n
}

// StopAll stops every session of this engine.
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	for _, s := range m.List(ctx) {
		if err := m.Stop(ctx, s.WorkspaceID); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
