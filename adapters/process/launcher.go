// Package process starts and stops engine backend processes on the local host.
package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/kompox/patchbay/domain/model"
	"github.com/kompox/patchbay/internal/logging"
)

// DefaultGracePeriod is how long Terminate waits after the stop signal
// before killing the process.
const DefaultGracePeriod = 5 * time.Second

// Launcher implements model.ProcessLauncher with os/exec.
type Launcher struct {
	GracePeriod time.Duration
}

// New returns a Launcher with the given grace period (DefaultGracePeriod if <= 0).
func New(grace time.Duration) *Launcher {
	if grace <= 0 {
		grace = DefaultGracePeriod
	}
	return &Launcher{GracePeriod: grace}
}

// Launch starts spec. The process is not bound to ctx: it outlives the
// request that started it and is stopped only through Terminate.
func (l *Launcher) Launch(ctx context.Context, spec model.LaunchSpec) (model.Process, error) {
	if spec.Command == "" {
		return nil, errors.New("launch: empty command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(spec.Command, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	setProcessGroup(cmd)

	var logFile *os.File
	if spec.LogPath != "" {
		if err := os.MkdirAll(filepath.Dir(spec.LogPath), 0o755); err != nil {
			return nil, fmt.Errorf("create log dir: %w", err)
		}
		f, err := os.OpenFile(spec.LogPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open process log: %w", err)
		}
		logFile = f
		cmd.Stdout = f
		cmd.Stderr = f
	}

	if err := cmd.Start(); err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, fmt.Errorf("start %s: %w", spec.Command, err)
	}

	p := &Process{cmd: cmd, done: make(chan struct{}), grace: l.GracePeriod}
	go func() {
		err := cmd.Wait()
		if logFile != nil {
			_ = logFile.Close()
		}
		p.mu.Lock()
		p.exitErr = err
		p.mu.Unlock()
		close(p.done)
	}()

	logging.FromContext(ctx).Debug(ctx, "process started", "cmd", spec.Command, "pid", cmd.Process.Pid, "dir", spec.Dir)
	return p, nil
}

// Process is a started backend process.
type Process struct {
	cmd   *exec.Cmd
	done  chan struct{}
	grace time.Duration

	mu      sync.Mutex
	exitErr error
}

func (p *Process) PID() int { return p.cmd.Process.Pid }

func (p *Process) Alive() bool {
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// Done is closed when the process exits.
func (p *Process) Done() <-chan struct{} { return p.done }

// ExitErr returns the error reported by Wait once the process has exited.
func (p *Process) ExitErr() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.exitErr
}

// Terminate sends the stop signal, waits up to the grace period (or until
// ctx is done) and then kills the process group.
func (p *Process) Terminate(ctx context.Context) error {
	if !p.Alive() {
		return nil
	}
	if err := signalStop(p.cmd); err != nil && p.Alive() {
		_ = kill(p.cmd)
	}
	timer := time.NewTimer(p.grace)
	defer timer.Stop()
	select {
	case <-p.done:
		return nil
	case <-timer.C:
	case <-ctx.Done():
	}
	if err := kill(p.cmd); err != nil && p.Alive() {
		return fmt.Errorf("kill pid %d: %w", p.PID(), err)
	}
	<-p.done
	return nil
}

var (
	_ model.ProcessLauncher = (*Launcher)(nil)
	_ model.Process         = (*Process)(nil)
)
