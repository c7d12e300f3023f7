// Package enginedrv holds the engine driver registry and the configurable
// driver shared by every engine family.
package enginedrv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/kompox/patchbay/config/patchbaycfg"
	"github.com/kompox/patchbay/domain/model"
)

// Defaults describe an engine family before configuration overrides.
type Defaults struct {
	Engine       model.EngineType
	SupportsUndo bool
	Surcharge    int64
	Command      string
	Args         []string
	Endpoints    model.BackendEndpoints
	PreviewURL   string // template with {host}, {port} and {workspace}
	Vocabulary   model.Vocabulary
}

// Driver is a model.EngineDriver assembled from Defaults and overrides.
type Driver struct {
	engine       model.EngineType
	supportsUndo bool
	surcharge    int64
	command      string
	args         []string
	env          []string
	endpoints    model.BackendEndpoints
	previewURL   string
	vocabulary   model.Vocabulary
}

// New merges overrides into defaults. Empty override fields keep the default.
func New(def Defaults, o patchbaycfg.Engine) (*Driver, error) {
	d := &Driver{
		engine:       def.Engine,
		supportsUndo: def.SupportsUndo,
		surcharge:    def.Surcharge,
		command:      def.Command,
		args:         append([]string(nil), def.Args...),
		env:          append([]string(nil), o.Env...),
		endpoints:    def.Endpoints,
		previewURL:   def.PreviewURL,
		vocabulary:   def.Vocabulary,
	}
	if o.Command != "" {
		d.command = o.Command
	}
	if o.Args != nil {
		d.args = append([]string(nil), o.Args...)
	}
	if o.Surcharge != nil {
		if *o.Surcharge < 0 {
			return nil, fmt.Errorf("surcharge must not be negative")
		}
		d.surcharge = *o.Surcharge
	}
	if o.HealthPath != "" {
		d.endpoints.HealthPath = o.HealthPath
	}
	if o.CommandPath != "" {
		d.endpoints.CommandPath = o.CommandPath
	}
	if o.UndoPath != "" {
		d.endpoints.UndoPath = o.UndoPath
	}
	if o.PreviewURL != "" {
		d.previewURL = o.PreviewURL
	}
	if d.command == "" {
		return nil, fmt.Errorf("no backend command configured")
	}
	if d.endpoints.HealthPath == "" || d.endpoints.CommandPath == "" {
		return nil, fmt.Errorf("health and command paths are required")
	}
	if d.supportsUndo && d.endpoints.UndoPath == "" {
		return nil, fmt.Errorf("undo path is required when undo is supported")
	}
	return d, nil
}

func (d *Driver) Engine() model.EngineType           { return d.engine }
func (d *Driver) SupportsUndo() bool                 { return d.supportsUndo }
func (d *Driver) Surcharge() int64                   { return d.surcharge }
func (d *Driver) Vocabulary() model.Vocabulary       { return d.vocabulary }
func (d *Driver) Endpoints() model.BackendEndpoints { return d.endpoints }

func expand(s string, ws *model.Workspace, port int) string {
	return strings.NewReplacer(
		"{port}", strconv.Itoa(port),
		"{dir}", ws.ProjectDir,
		"{workspace}", ws.ID,
	).Replace(s)
}

// LaunchSpec substitutes {port}, {dir} and {workspace} in the argv and runs
// the process in the project directory.
func (d *Driver) LaunchSpec(ws *model.Workspace, port int) model.LaunchSpec {
	args := make([]string, len(d.args))
	for i, a := range d.args {
		args[i] = expand(a, ws, port)
	}
	env := make([]string, 0, len(d.env)+3)
	for _, e := range d.env {
		env = append(env, expand(e, ws, port))
	}
	env = append(env,
		"PATCHBAY_PORT="+strconv.Itoa(port),
		"PATCHBAY_WORKSPACE="+ws.ID,
		"PATCHBAY_ENGINE="+string(d.engine),
	)
	return model.LaunchSpec{
		Command: expand(d.command, ws, port),
		Args:    args,
		Dir:     ws.ProjectDir,
		Env:     env,
	}
}

// PreviewURL expands the preview template, or returns "" without one.
func (d *Driver) PreviewURL(ws *model.Workspace, port int) string {
	if d.previewURL == "" {
		return ""
	}
	return strings.ReplaceAll(expand(d.previewURL, ws, port), "{host}", "127.0.0.1")
}

var _ model.EngineDriver = (*Driver)(nil)
