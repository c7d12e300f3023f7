// Package sessiontest provides in-process fakes for the session manager's
// collaborators: engine drivers, process launchers and backends.
package sessiontest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/kompox/patchbay/domain/model"
)

// Driver is a configurable model.EngineDriver.
type Driver struct {
	EngineType model.EngineType
	Undo       bool
	Extra      int64
	Vocab      model.Vocabulary
	Preview    string
}

func (d *Driver) Engine() model.EngineType     { return d.EngineType }
func (d *Driver) SupportsUndo() bool           { return d.Undo }
func (d *Driver) Surcharge() int64             { return d.Extra }
func (d *Driver) Vocabulary() model.Vocabulary { return d.Vocab }

func (d *Driver) Endpoints() model.BackendEndpoints {
	ep := model.BackendEndpoints{HealthPath: "/health", CommandPath: "/command"}
	if d.Undo {
		ep.UndoPath = "/undo"
	}
	return ep
}

func (d *Driver) LaunchSpec(ws *model.Workspace, port int) model.LaunchSpec {
	return model.LaunchSpec{Command: "fake-" + string(d.EngineType), Dir: ws.ProjectDir}
}

func (d *Driver) PreviewURL(ws *model.Workspace, port int) string { return d.Preview }

// Process is a fake model.Process.
type Process struct {
	pid        int
	alive      atomic.Bool
	terminated atomic.Int32
}

func (p *Process) PID() int    { return p.pid }
func (p *Process) Alive() bool { return p.alive.Load() }

func (p *Process) Terminate(context.Context) error {
	p.alive.Store(false)
	p.terminated.Add(1)
	return nil
}

// Kill simulates a crash.
func (p *Process) Kill() { p.alive.Store(false) }

// Terminated returns how many times Terminate was called.
func (p *Process) Terminated() int { return int(p.terminated.Load()) }

// Launcher is a fake model.ProcessLauncher.
type Launcher struct {
	mu      sync.Mutex
	specs   []model.LaunchSpec
	procs   []*Process
	nextPID int

	// Err fails every launch when set.
	Err error
	// DeadOnStart launches processes that have already exited.
	DeadOnStart bool
}

func (l *Launcher) Launch(ctx context.Context, spec model.LaunchSpec) (model.Process, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.Err != nil {
		return nil, l.Err
	}
	l.nextPID++
	p := &Process{pid: 1000 + l.nextPID}
	p.alive.Store(!l.DeadOnStart)
	l.specs = append(l.specs, spec)
	l.procs = append(l.procs, p)
	return p, nil
}

// Launches returns the number of processes started.
func (l *Launcher) Launches() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.procs)
}

// Process returns the i-th launched process.
func (l *Launcher) Process(i int) *Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.procs[i]
}

// Last returns the most recently launched process.
func (l *Launcher) Last() *Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	if len(l.procs) == 0 {
		return nil
	}
	return l.procs[len(l.procs)-1]
}

// Specs returns the launch specs in order.
func (l *Launcher) Specs() []model.LaunchSpec {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]model.LaunchSpec(nil), l.specs...)
}

// Unreachable returns a transport failure that happened before the request
// was sent.
func Unreachable() error {
	e := model.NewError(model.KindBackendError, "connection refused")
	e.Retryable = true
	return e
}

// Backend is a fake model.BackendClient. Handlers default to success.
type Backend struct {
	mu       sync.Mutex
	down     bool
	commands []*model.BackendRequest
	undos    []*model.UndoRequest
	inFlight int
	maxInFl  int

	// OnCommand answers the n-th (1-based) command call.
	OnCommand func(ctx context.Context, n int, req *model.BackendRequest) (*model.BackendResponse, error)
	// OnUndo answers undo calls.
	OnUndo func(ctx context.Context, req *model.UndoRequest) (*model.ReverseResult, error)
}

// SetDown makes health checks fail.
func (b *Backend) SetDown(down bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.down = down
}

func (b *Backend) Health(ctx context.Context, t model.BackendTarget) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.down {
		return errors.New("health: 503")
	}
	return nil
}

func (b *Backend) Command(ctx context.Context, t model.BackendTarget, req *model.BackendRequest) (*model.BackendResponse, error) {
	b.mu.Lock()
	b.commands = append(b.commands, req)
	n := len(b.commands)
	b.inFlight++
	if b.inFlight > b.maxInFl {
		b.maxInFl = b.inFlight
	}
	fn := b.OnCommand
	b.mu.Unlock()
	defer func() {
		b.mu.Lock()
		b.inFlight--
		b.mu.Unlock()
	}()
	if fn != nil {
		return fn(ctx, n, req)
	}
	return &model.BackendResponse{Success: true}, nil
}

func (b *Backend) Undo(ctx context.Context, t model.BackendTarget, req *model.UndoRequest) (*model.ReverseResult, error) {
	b.mu.Lock()
	b.undos = append(b.undos, req)
	fn := b.OnUndo
	b.mu.Unlock()
	if fn != nil {
		return fn(ctx, req)
	}
	return &model.ReverseResult{Success: true}, nil
}

// Commands returns the number of command calls.
func (b *Backend) Commands() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.commands)
}

// LastCommand returns the most recent command request.
func (b *Backend) LastCommand() *model.BackendRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.commands) == 0 {
		return nil
	}
	return b.commands[len(b.commands)-1]
}

// Undos returns the number of undo calls.
func (b *Backend) Undos() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.undos)
}

// MaxInFlight returns the highest number of concurrent command calls seen.
func (b *Backend) MaxInFlight() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.maxInFl
}

var (
	_ model.EngineDriver    = (*Driver)(nil)
	_ model.ProcessLauncher = (*Launcher)(nil)
	_ model.BackendClient   = (*Backend)(nil)
)
