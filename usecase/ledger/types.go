// Package ledger owns company credit balances: cost estimation, advisory
// affordability checks and the authoritative debit.
package ledger

import (
	"github.com/kompox/patchbay/domain"
	"github.com/kompox/patchbay/domain/model"
)

// Cost bounds applied by EstimateCost when Config leaves them unset.
const (
	DefaultMinCost int64 = 10
	DefaultMaxCost int64 = 4000
)

// Repos holds repositories needed for ledger use cases.
type Repos struct {
	Company domain.CompanyRepository
	Credit  domain.CreditRepository
}

// Config tunes cost estimation.
type Config struct {
	MinCost int64
	MaxCost int64
	// Surcharges is the per-command overhead by engine. Missing engines cost 0.
	Surcharges map[model.EngineType]int64
}

// UseCase wires repositories needed for ledger use cases.
type UseCase struct {
	Repos  *Repos
	Config Config
}

// New returns a UseCase with cost bounds defaulted.
func New(repos *Repos, cfg Config) *UseCase {
	if cfg.MinCost <= 0 {
		cfg.MinCost = DefaultMinCost
	}
	if cfg.MaxCost < cfg.MinCost {
		cfg.MaxCost = DefaultMaxCost
	}
	return &UseCase{Repos: repos, Config: cfg}
}
