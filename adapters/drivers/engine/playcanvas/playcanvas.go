// Package playcanvas registers the PlayCanvas engine driver.
package playcanvas

import (
	enginedrv "github.com/kompox/patchbay/adapters/drivers/engine"
	"github.com/kompox/patchbay/config/patchbaycfg"
	"github.com/kompox/patchbay/domain/model"
)

// Defaults for the PlayCanvas bridge: a Node.js editor server that applies
// patches to the scene graph and keeps a reverse journal for undo.
var Defaults = enginedrv.Defaults{
	Engine:       model.EnginePlayCanvas,
	SupportsUndo: true,
	Surcharge:    0,
	Command:      "node",
	Args:         []string{"playcanvas-bridge/server.js", "--port", "{port}", "--project", "{dir}"},
	Endpoints: model.BackendEndpoints{
		HealthPath:  "/health",
		CommandPath: "/command",
		UndoPath:    "/undo",
	},
	PreviewURL: "http://{host}:{port}/preview",
	Vocabulary: model.Vocabulary{
		Keywords: []string{"playcanvas", "webgl"},
		Signatures: []string{
			"pc.Application", "pc.AppBase", "pc.Entity", "pc.createScript", "pc.Vec3",
			"pc.Color", "pc.Quat", "this.entity", "this.app", "app.root", "addComponent(",
		},
	},
}

func init() {
	enginedrv.Register(model.EnginePlayCanvas, func(settings patchbaycfg.Engine) (model.EngineDriver, error) {
		return enginedrv.New(Defaults, settings)
	})
}
