// Package unreal registers the Unreal Engine driver.
package unreal

import (
	enginedrv "github.com/kompox/patchbay/adapters/drivers/engine"
	"github.com/kompox/patchbay/config/patchbaycfg"
	"github.com/kompox/patchbay/domain/model"
)

// Defaults for the Unreal remote-control bridge. Commands are relayed to a
// remote editor, hence the surcharge, and changes cannot be reversed.
var Defaults = enginedrv.Defaults{
	Engine:       model.EngineUnreal,
	SupportsUndo: false,
	Surcharge:    5,
	Command:      "ue-bridge",
	Args:         []string{"--listen", "127.0.0.1:{port}", "--project", "{dir}"},
	Endpoints: model.BackendEndpoints{
		HealthPath:  "/health",
		CommandPath: "/command",
	},
	Vocabulary: model.Vocabulary{
		Keywords: []string{"unreal", "ue5", "ue4", "blueprint", "uasset", "niagara"},
		Signatures: []string{
			"BeginPlay", "UCLASS", "UPROPERTY", "UFUNCTION", "USTRUCT", "GENERATED_BODY",
			"AActor", "UObject", "APawn", "ACharacter", "UWorld", "TickComponent", "FVector", "Super::",
		},
	},
}

func init() {
	enginedrv.Register(model.EngineUnreal, func(settings patchbaycfg.Engine) (model.EngineDriver, error) {
		return enginedrv.New(Defaults, settings)
	})
}
