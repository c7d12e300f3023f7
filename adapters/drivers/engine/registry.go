package enginedrv

import (
	"fmt"
	"sort"

	"github.com/kompox/patchbay/config/patchbaycfg"
	"github.com/kompox/patchbay/domain/model"
)

// driverFactory is a constructor function for an engine driver. settings
// holds the patchbay.yml overrides for the engine and may be zero.
type driverFactory func(settings patchbaycfg.Engine) (model.EngineDriver, error)

// registry holds registered drivers by engine name.
var registry = map[model.EngineType]driverFactory{}

// Register makes a driver available for the given engine. Drivers should
// call this from their init() function.
func Register(engine model.EngineType, factory driverFactory) {
	registry[engine] = factory
}

// GetDriverFactory returns the driver factory function for the given engine.
func GetDriverFactory(engine model.EngineType) (driverFactory, bool) {
	factory, exists := registry[engine]
	return factory, exists
}

// Registered lists the engines with a registered driver in name order.
func Registered() []model.EngineType {
	out := make([]model.EngineType, 0, len(registry))
	for e := range registry {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Build instantiates every registered driver with its overrides from cfg.
func Build(engines map[string]patchbaycfg.Engine) (map[model.EngineType]model.EngineDriver, error) {
	for name := range engines {
		et, err := model.ParseEngineType(name)
		if err != nil {
			return nil, err
		}
		if _, ok := registry[et]; !ok {
			return nil, fmt.Errorf("engine %q has settings but no registered driver", name)
		}
	}
	out := make(map[model.EngineType]model.EngineDriver, len(registry))
	for _, et := range Registered() {
		d, err := registry[et](engines[string(et)])
		if err != nil {
			return nil, fmt.Errorf("engine %s: %w", et, err)
		}
		out[et] = d
	}
	return out, nil
}

// Vocabularies collects the vocabulary of each driver.
func Vocabularies(drivers map[model.EngineType]model.EngineDriver) map[model.EngineType]model.Vocabulary {
	out := make(map[model.EngineType]model.Vocabulary, len(drivers))
	for e, d := range drivers {
		out[e] = d.Vocabulary()
	}
	return out
}
