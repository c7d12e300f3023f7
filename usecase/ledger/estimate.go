package ledger

import (
	"unicode/utf8"

	"github.com/kompox/patchbay/domain/model"
)

// EstimateCost returns the admission estimate for env: the character count
// of all its text, times 0.3, rounded up and clipped to [MinCost, MaxCost].
// It never contacts a backend.
func (u *UseCase) EstimateCost(env *model.CommandEnvelope) int64 {
	if env == nil {
		return u.clip(0)
	}
	return u.EstimateText(env.Text())
}

// EstimateText applies the cost formula to raw text.
func (u *UseCase) EstimateText(text string) int64 {
	chars := int64(utf8.RuneCountInString(text))
	// ceil(chars / 4 * 1.2) == ceil(chars * 3 / 10)
	return u.clip((chars*3 + 9) / 10)
}

func (u *UseCase) clip(n int64) int64 {
	lo, hi := u.Config.MinCost, u.Config.MaxCost
	if lo <= 0 {
		lo = DefaultMinCost
	}
	if hi < lo {
		hi = DefaultMaxCost
	}
	return max(lo, min(hi, n))
}

// Surcharge returns the per-command overhead for engine.
func (u *UseCase) Surcharge(engine model.EngineType) int64 {
	return u.Config.Surcharges[engine]
}
