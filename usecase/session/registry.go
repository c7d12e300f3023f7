package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/logging"
)

// Registry holds one Manager per engine family over shared ports, locks
// and session store.
type Registry struct {
	managers map[model.EngineType]*Manager
	deps     Deps
}

// NewRegistry builds a manager for every driver.
func NewRegistry(drivers map[model.EngineType]model.EngineDriver, deps Deps, cfg Config) *Registry {
	deps = deps.withDefaults()
	r := &Registry{managers: make(map[model.EngineType]*Manager, len(drivers)), deps: deps}
	for e, d := range drivers {
		r.managers[e] = NewManager(d, deps, cfg)
	}
	return r
}

// Manager returns the manager of engine.
func (r *Registry) Manager(engine model.EngineType) (*Manager, error) {
	m, ok := r.managers[engine]
	if !ok {
		return nil, model.NewError(model.KindUnsupportedEngine, "no backend registered for engine %q", engine).
			WithDetail("engine_type", string(engine))
	}
	return m, nil
}

// Engines lists the engines with a manager.
func (r *Registry) Engines() []model.EngineType {
	out := make([]model.EngineType, 0, len(r.managers))
	for e := range r.managers {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// List returns every live session.
func (r *Registry) List(ctx context.Context) []*model.ExecutionSession {
	return r.deps.Sessions.List(ctx)
}

// Stop stops the session of a workspace through its engine's manager.
func (r *Registry) Stop(ctx context.Context, workspaceID string) error {
	ws, err := r.deps.Workspaces.Get(ctx, workspaceID)
	if err != nil {
		return err
	}
	m, err := r.Manager(ws.EngineType)
	if err != nil {
		return err
	}
	return m.Stop(ctx, workspaceID)
}

// StopAll stops every session.
func (r *Registry) StopAll(ctx context.Context) error {
	var errs []error
	for _, e := range r.Engines() {
		errs = append(errs, r.managers[e].StopAll(ctx))
	}
	return errors.Join(errs...)
}

// Reap runs Reap on every manager and returns the number of stopped sessions.
func (r *Registry) Reap(ctx context.Context) int {
	n := 0
	for _, e := range r.Engines() {
		n += r.managers[e].Reap(ctx)
	}
	return n
}

// RunReaper calls Reap every interval until ctx is done.
func (r *Registry) RunReaper(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	t := r.deps.Clock.NewTicker(interval)
	defer t.Stop()
	log := logging.FromContext(ctx)
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			if n := r.Reap(ctx); n > 0 {
				log.Info(ctx, "reaped sessions", "count", n)
			}
		}
	}
}

// SendCommand routes to the manager of the workspace engine.
func (r *Registry) SendCommand(ctx context.Context, ws *model.Workspace, env *model.CommandEnvelope, opts SendOptions) (*model.BackendResponse, error) {
	m, err := r.Manager(ws.EngineType)
	if err != nil {
		return nil, err
	}
	return m.SendCommand(ctx, ws, env, opts)
}

// Undo routes to the manager of the workspace engine.
func (r *Registry) Undo(ctx context.Context, ws *model.Workspace, patchID, etag string) (*model.ReverseResult, error) {
	m, err := r.Manager(ws.EngineType)
	if err != nil {
		return nil, err
	}
	return m.Undo(ctx, ws, patchID, etag)
}
