package classify

import (
	"sort"

	"github.com/kompox/patchbay/domain/model"
)

// FeatureMultiplayer is the plan feature required by networked gameplay commands.
const FeatureMultiplayer = "multiplayer"

// DefaultFeatures maps plan features to the words that imply them.
var DefaultFeatures = map[string][]string{
	FeatureMultiplayer: {"multiplayer", "networked", "netcode", "matchmaking", "lobby", "replication"},
}

// Capabilities returns the plan features implied by text, sorted.
func (c *Classifier) Capabilities(text string) []string {
	var out []string
	for f, m := range c.features {
		if len(m.find(text)) > 0 {
			out = append(out, f)
		}
	}
	sort.Strings(out)
	return out
}

// CheckReady fails with WorkspaceNotReady unless ws accepts commands.
func CheckReady(ws *model.Workspace) error {
	return ws.CheckAcceptsCommands()
}

// CheckPlan fails with CapabilityNotAllowed when plan does not admit the
// engine or one of the features.
func CheckPlan(plan model.Plan, engine model.EngineType, features []string) error {
	if !plan.AllowsEngine(engine) {
		return model.NewError(model.KindCapabilityNotAllowed, "plan does not include engine %s", engine).
			WithDetail("engine_type", string(engine))
	}
	for _, f := range features {
		if !plan.HasFeature(f) {
			return model.NewError(model.KindCapabilityNotAllowed, "plan does not include %s", f).
				WithDetail("feature", f)
		}
	}
	return nil
}
