package model

import (
	"context"
	"fmt"
	"strings"
)

// EngineType identifies one engine family. The set is closed.
type EngineType string

const (
	EnginePlayCanvas EngineType = "playcanvas"
	EngineUnreal     EngineType = "unreal"
	EngineGodot      EngineType = "godot"
)

// KnownEngines lists every supported engine family in a stable order.
var KnownEngines = []EngineType{EnginePlayCanvas, EngineUnreal, EngineGodot}

// Valid reports whether e is a known engine family.
func (e EngineType) Valid() bool {
	for _, k := range KnownEngines {
		if k == e {
			return true
		}
	}
	return false
}

// ParseEngineType parses a case-insensitive engine name.
func ParseEngineType(s string) (EngineType, error) {
	e := EngineType(strings.ToLower(strings.TrimSpace(s)))
	if !e.Valid() {
		return "", NewError(KindUnsupportedEngine, "unknown engine %q", s)
	}
	return e, nil
}

// Vocabulary is the heuristic word list of an engine family.
//
// Keywords are case-insensitive terms that suggest the engine. Signatures are
// case-sensitive API tokens specific enough that a match unambiguously points
// at the engine; only signatures are used to reject cross-engine commands.
type Vocabulary struct {
	Keywords   []string
	Signatures []string
}

// BackendEndpoints are the HTTP paths served by an engine backend.
type BackendEndpoints struct {
	HealthPath  string
	CommandPath string
	UndoPath    string
}

// LaunchSpec describes how to start an engine backend process.
type LaunchSpec struct {
	Command string
	Args    []string
	Dir     string
	Env     []string
	LogPath string
}

// EngineDriver abstracts engine-specific behavior of a backend family.
// Implementations live under adapters/drivers/engine/<name>.
type EngineDriver interface {
	// Engine returns the engine family served by this driver.
	Engine() EngineType
	// SupportsUndo reports whether the backend implements reverse calls.
	SupportsUndo() bool
	// Surcharge is the per-command credit overhead for this engine.
	Surcharge() int64
	Vocabulary() Vocabulary
	Endpoints() BackendEndpoints
	// LaunchSpec returns the process to start for ws bound to port.
	LaunchSpec(ws *Workspace, port int) LaunchSpec
	// PreviewURL returns the preview URL of a session, or "".
	PreviewURL(ws *Workspace, port int) string
}

// Process is a running backend process handle.
type Process interface {
	PID() int
	// Alive reports whether the process has not exited.
	Alive() bool
	// Terminate stops the process and waits for it to exit.
	Terminate(ctx context.Context) error
}

// ProcessLauncher starts backend processes.
type ProcessLauncher interface {
	Launch(ctx context.Context, spec LaunchSpec) (Process, error)
}

// BackendTarget addresses one running backend.
type BackendTarget struct {
	BaseURL   string
	Endpoints BackendEndpoints
}

// URL joins the base URL with path.
func (t BackendTarget) URL(path string) string {
	return strings.TrimRight(t.BaseURL, "/") + "/" + strings.TrimLeft(path, "/")
}

// LocalBaseURL returns the loopback base URL of a session port.
func LocalBaseURL(host string, port int) string {
	if host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, port)
}

// BackendClient talks to a running engine backend over HTTP.
type BackendClient interface {
	// Health returns nil when the health endpoint answers 2xx.
	Health(ctx context.Context, t BackendTarget) error
	Command(ctx context.Context, t BackendTarget, req *BackendRequest) (*BackendResponse, error)
	Undo(ctx context.Context, t BackendTarget, req *UndoRequest) (*ReverseResult, error)
}
