// Package godot registers the Godot engine driver.
package godot

import (
	enginedrv "github.com/kompox/patchbay/adapters/drivers/engine"
	"github.com/kompox/patchbay/config/patchbaycfg"
	"github.com/kompox/patchbay/domain/model"
)

// Defaults for a headless Godot editor running the patchbay bridge plugin.
var Defaults = enginedrv.Defaults{
	Engine:       model.EngineGodot,
	SupportsUndo: true,
	Surcharge:    0,
	Command:      "godot",
	Args:         []string{"--headless", "--editor", "--path", "{dir}", "--", "--bridge-port={port}"},
	Endpoints: model.BackendEndpoints{
		HealthPath:  "/health",
		CommandPath: "/command",
		UndoPath:    "/undo",
	},
	Vocabulary: model.Vocabulary{
		Keywords: []string{"godot", "gdscript", "tscn"},
		Signatures: []string{
			"extends Node", "extends Node2D", "extends Node3D", "extends CharacterBody2D",
			"extends CharacterBody3D", "func _ready", "func _process", "func _physics_process",
			"get_node(", "@export", "@onready", "queue_free(", "GDScript",
		},
	},
}

func init() {
	enginedrv.Register(model.EngineGodot, func(settings patchbaycfg.Engine) (model.EngineDriver, error) {
		return enginedrv.New(Defaults, settings)
	})
}
