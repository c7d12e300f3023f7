package enginedrv

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kompox/patchbay/config/patchbaycfg"
	"github.com/kompox/patchbay/domain/model"
)

func testDefaults() Defaults {
	return Defaults{
		Engine:       model.EngineGodot,
		SupportsUndo: true,
		Surcharge:    2,
		Command:      "bridge",
		Args:         []string{"--port", "{port}", "--path", "{dir}", "--ws={workspace}"},
		Endpoints:    model.BackendEndpoints{HealthPath: "/health", CommandPath: "/command", UndoPath: "/undo"},
		PreviewURL:   "http://{host}:{port}/ws/{workspace}",
	}
}

func TestDriverLaunchSpec(t *testing.T) {
	d, err := New(testDefaults(), patchbaycfg.Engine{Env: []string{"BRIDGE_ROOT={dir}"}})
	require.NoError(t, err)

	ws := &model.Workspace{ID: "ws-1", ProjectDir: "/srv/ws-1"}
	spec := d.LaunchSpec(ws, 17100)

	assert.Equal(t, "bridge", spec.Command)
	assert.Equal(t, []string{"--port", "17100", "--path", "/srv/ws-1", "--ws=ws-1"}, spec.Args)
	assert.Equal(t, "/srv/ws-1", spec.Dir)
	assert.Contains(t, spec.Env, "BRIDGE_ROOT=/srv/ws-1")
	assert.Contains(t, spec.Env, "PATCHBAY_PORT=17100")
	assert.Contains(t, spec.Env, "PATCHBAY_ENGINE=godot")
	assert.Equal(t, "http://127.0.0.1:17100/ws/ws-1", d.PreviewURL(ws, 17100))
}

func TestDriverOverrides(t *testing.T) {
	zero := int64(0)
	d, err := New(testDefaults(), patchbaycfg.Engine{
		Command:    "/opt/bridge",
		Args:       []string{"{port}"},
		Surcharge:  &zero,
		HealthPath: "/ready",
	})
	require.NoError(t, err)

	assert.Equal(t, int64(0), d.Surcharge())
	assert.Equal(t, "/ready", d.Endpoints().HealthPath)
	assert.Equal(t, "/command", d.Endpoints().CommandPath)
	spec := d.LaunchSpec(&model.Workspace{ID: "ws-2"}, 9)
	assert.Equal(t, "/opt/bridge", spec.Command)
	assert.Equal(t, []string{"9"}, spec.Args)
}

func TestNewRejectsInvalid(t *testing.T) {
	neg := int64(-1)
	noUndo := testDefaults()
	noUndo.Endpoints.UndoPath = ""

	tests := []struct {
		name string
		def  Defaults
		o    patchbaycfg.Engine
	}{
		{"negative surcharge", testDefaults(), patchbaycfg.Engine{Surcharge: &neg}},
		{"undo without path", noUndo, patchbaycfg.Engine{}},
		{"no command", Defaults{Endpoints: model.BackendEndpoints{HealthPath: "/h", CommandPath: "/c"}}, patchbaycfg.Engine{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.def, tt.o); err == nil {
				t.Errorf("New() error = nil, want error")
			}
		})
	}
}

func TestPreviewURLEmpty(t *testing.T) {
	def := testDefaults()
	def.PreviewURL = ""
	d, err := New(def, patchbaycfg.Engine{})
	require.NoError(t, err)
	if got := d.PreviewURL(&model.Workspace{ID: "ws"}, 1); got != "" {
		t.Errorf("PreviewURL() = %q, want empty", got)
	}
}
